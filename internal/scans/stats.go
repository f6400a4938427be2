package scans

import (
	"sort"
	"strings"
)

const unknownLabel = "unknown"

// Series is a chart-ready list of labels with their counts at matching indexes.
type Series struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Stats is the aggregate view of a link's scans.
type Stats struct {
	Total    int    `json:"total"`
	Devices  Series `json:"devices"`
	Browsers Series `json:"browsers"`
	OSes     Series `json:"oses"`
	Dates    Series `json:"dates"`
}

// counter counts labels, remembering the order they were first seen in.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{order: []string{}, counts: make(map[string]int)}
}

func (c *counter) add(label string) {
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}

	c.counts[label]++
}

func (c *counter) series(labels []string) Series {
	data := make([]int, 0, len(labels))
	for _, l := range labels {
		data = append(data, c.counts[l])
	}

	return Series{Labels: labels, Data: data}
}

func dimension(value string) string {
	if value == "" {
		return unknownLabel
	}

	return strings.ToLower(value)
}

func day(e *Event) string {
	if e.ScannedAt.IsZero() {
		return unknownLabel
	}

	return e.ScannedAt.UTC().Format("2006-01-02")
}

// Aggregate computes statistics over events. It keeps no state, so the
// same events always produce the same Stats.
func Aggregate(events []*Event) Stats {
	devices, browsers, oses, dates := newCounter(), newCounter(), newCounter(), newCounter()

	for _, e := range events {
		devices.add(dimension(e.Device))
		browsers.add(dimension(e.Browser))
		oses.add(dimension(e.OS))
		dates.add(day(e))
	}

	days := append([]string{}, dates.order...)
	sort.Strings(days)

	return Stats{
		Total:    len(events),
		Devices:  devices.series(devices.order),
		Browsers: browsers.series(browsers.order),
		OSes:     oses.series(oses.order),
		Dates:    dates.series(days),
	}
}
