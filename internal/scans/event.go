package scans

import (
	"time"

	"github.com/google/uuid"
)

// TopicScanRecorded is the stream topic scan events are published to in stream mode.
const TopicScanRecorded = "scan.recorded"

// Event is one redirect traversal of a dynamic link. Events are never mutated.
type Event struct {
	ID        uuid.UUID `json:"id"`
	LinkID    uuid.UUID `json:"linkId"`
	Code      string    `json:"code"`
	ScannedAt time.Time `json:"scannedAt"`
	IP        string    `json:"ip,omitempty"`
	Country   string    `json:"country,omitempty"`
	Region    string    `json:"region,omitempty"`
	City      string    `json:"city,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Device    string    `json:"device,omitempty"`
	OS        string    `json:"os,omitempty"`
	Browser   string    `json:"browser,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// LinkRef identifies the link a scan belongs to.
type LinkRef struct {
	ID   uuid.UUID
	Code string
}

// Visit carries the request attributes of a redirect.
type Visit struct {
	IP        string
	UserAgent string
	Referrer  string
	Country   string
	Region    string
	City      string
}
