package scans

import (
	"context"
	"errors"

	"github.com/serroba/qrlinks/internal/messaging"
	"go.uber.org/zap"
)

// Recorder persists or forwards a scan event.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// StoreRecorder writes events straight to the store within the request.
type StoreRecorder struct {
	store Store
}

// NewStoreRecorder creates a recorder that saves synchronously.
func NewStoreRecorder(store Store) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) Record(ctx context.Context, event *Event) error {
	return r.store.SaveScan(ctx, event)
}

// StreamRecorder publishes events for the consumer process to persist.
type StreamRecorder struct {
	publish messaging.Publish[Event]
}

// NewStreamRecorder creates a recorder that publishes to TopicScanRecorded.
func NewStreamRecorder(publish messaging.Publish[Event]) *StreamRecorder {
	return &StreamRecorder{publish: publish}
}

func (r *StreamRecorder) Record(ctx context.Context, event *Event) error {
	return r.publish(ctx, event)
}

// PersistHandler returns the consumer handler that saves published events.
//
// Storage failures are logged and counted, then acknowledged: scan loss is
// tolerated and a redelivered message would fail the same way. A duplicate is
// a redelivery of an event that was already saved and counts as success.
func PersistHandler(store Store, metrics *Metrics, logger *zap.Logger) messaging.Handler[Event] {
	return func(ctx context.Context, event *Event) error {
		err := store.SaveScan(ctx, event)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrDuplicateScan):
			logger.Debug("scan already recorded", zap.Stringer("scan_id", event.ID))

			return nil
		default:
			metrics.Failures.Inc()
			logger.Error("failed to persist scan",
				zap.String("code", event.Code),
				zap.Stringer("scan_id", event.ID),
				zap.Error(err),
			)

			return nil
		}
	}
}
