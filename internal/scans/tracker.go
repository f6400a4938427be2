package scans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/serroba/qrlinks/internal/scans"

// Tracker turns a redirect into at most one recorded scan event.
type Tracker struct {
	dedup    *Deduplicator
	recorder Recorder
	metrics  *Metrics
	now      Clock
	tracer   trace.Tracer
}

// NewTracker creates a tracker. The clock stamps events and should match the
// deduplicator's clock.
func NewTracker(dedup *Deduplicator, recorder Recorder, metrics *Metrics, clock Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}

	return &Tracker{
		dedup:    dedup,
		recorder: recorder,
		metrics:  metrics,
		now:      clock,
		tracer:   otel.Tracer(tracerName),
	}
}

// Track records a scan of link unless it repeats one admitted within the
// dedup window. It reports whether an event was handed to the recorder.
// Recorder errors are returned so the caller can log them; they are not retried.
func (t *Tracker) Track(ctx context.Context, link LinkRef, v Visit) (bool, error) {
	ctx, span := t.tracer.Start(ctx, "scans.Track", trace.WithAttributes(
		attribute.String("link.code", link.Code),
	))
	defer span.End()

	if !t.dedup.Admit(Fingerprint(link.Code, v.IP, v.UserAgent)) {
		t.metrics.Deduplicated.Inc()
		span.SetAttributes(attribute.Bool("scan.deduplicated", true))

		return false, nil
	}

	class := Classify(v.UserAgent)
	event := &Event{
		ID:        uuid.New(),
		LinkID:    link.ID,
		Code:      link.Code,
		ScannedAt: t.now(),
		IP:        v.IP,
		Country:   v.Country,
		Region:    v.Region,
		City:      v.City,
		UserAgent: v.UserAgent,
		Device:    class.Device,
		OS:        class.OS,
		Browser:   class.Browser,
		Referrer:  v.Referrer,
	}

	span.SetAttributes(
		attribute.String("scan.device", class.Device),
		attribute.String("scan.os", class.OS),
		attribute.String("scan.browser", class.Browser),
	)

	if err := t.recorder.Record(ctx, event); err != nil {
		t.metrics.Failures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")

		return false, fmt.Errorf("record scan: %w", err)
	}

	t.metrics.Recorded.Inc()

	return true, nil
}
