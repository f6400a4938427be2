package links

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for unknown codes and for links owned by someone else.
	ErrNotFound = errors.New("link not found")
	// ErrDuplicateCode is returned by a repository when the short code is already taken.
	ErrDuplicateCode = errors.New("short code already exists")
	// ErrCodeSpaceExhausted is returned when no free code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("could not generate unique short code")
	// ErrInvalidDestination is returned when the destination URL is blank.
	ErrInvalidDestination = errors.New("destination url is required")
)

// Repository defines storage operations for dynamic links.
type Repository interface {
	// Create stores a new link. Returns ErrDuplicateCode if the code exists.
	Create(ctx context.Context, link *DynamicLink) error
	GetByCode(ctx context.Context, code Code) (*DynamicLink, error)
	ListByOwner(ctx context.Context, owner OwnerID) ([]*DynamicLink, error)
	// Update applies patch to the link with the given code and returns the result.
	Update(ctx context.Context, code Code, patch Patch) (*DynamicLink, error)
	// Delete removes the link and, with it, every scan recorded for it.
	Delete(ctx context.Context, code Code) error
}
