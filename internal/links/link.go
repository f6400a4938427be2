package links

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Code is the short code identifying a dynamic link in its redirect path.
type Code string

// OwnerID identifies the user owning a link.
type OwnerID string

// DynamicLink is a user-owned redirect whose destination can change over time.
type DynamicLink struct {
	ID             uuid.UUID
	Code           Code // immutable once assigned
	DestinationURL string
	Title          string // empty when not set
	OwnerID        OwnerID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RedirectPath returns the relative redirect path for a code.
func RedirectPath(code Code) string {
	return "/r/" + string(code)
}

// Patch holds the fields of a link that an owner may change.
// A nil field is left untouched.
type Patch struct {
	DestinationURL *string
	Title          *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.DestinationURL == nil && p.Title == nil
}

// Apply sets the present fields on link and bumps UpdatedAt.
func (p Patch) Apply(link *DynamicLink, now time.Time) {
	if p.IsEmpty() {
		return
	}

	if p.DestinationURL != nil {
		link.DestinationURL = *p.DestinationURL
	}

	if p.Title != nil {
		link.Title = *p.Title
	}

	link.UpdatedAt = now
}

// normalize trims the present fields and rejects a blank destination.
func (p Patch) normalize() (Patch, error) {
	out := Patch{}

	if p.DestinationURL != nil {
		dest := strings.TrimSpace(*p.DestinationURL)
		if dest == "" {
			return Patch{}, ErrInvalidDestination
		}

		out.DestinationURL = &dest
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		out.Title = &title
	}

	return out, nil
}
