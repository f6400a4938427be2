package scans

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrUnknownLink is returned when a scan references a link that no longer exists.
	ErrUnknownLink = errors.New("scan references unknown link")
	// ErrDuplicateScan is returned when an event with the same ID was already saved.
	ErrDuplicateScan = errors.New("scan already recorded")
)

// Store defines the interface for persisting and reading scan events.
type Store interface {
	SaveScan(ctx context.Context, event *Event) error
	ListScans(ctx context.Context, linkID uuid.UUID) ([]*Event, error)
}
