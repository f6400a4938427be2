package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/scans"
)

// MemoryStore is an in-memory implementation of links.Repository and scans.Store.
type MemoryStore struct {
	mu    sync.RWMutex
	links map[links.Code]*links.DynamicLink
	scans map[uuid.UUID][]*scans.Event // link id -> events in insertion order
	now   func() time.Time
}

// NewMemoryStore creates a new in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links: make(map[links.Code]*links.DynamicLink),
		scans: make(map[uuid.UUID][]*scans.Event),
		now:   time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, link *links.DynamicLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[link.Code]; ok {
		return links.ErrDuplicateCode
	}

	stored := *link
	m.links[link.Code] = &stored

	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code links.Code) (*links.DynamicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[code]
	if !ok {
		return nil, links.ErrNotFound
	}

	out := *link

	return &out, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, owner links.OwnerID) ([]*links.DynamicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*links.DynamicLink, 0)

	for _, link := range m.links {
		if link.OwnerID == owner {
			l := *link
			out = append(out, &l)
		}
	}

	// Newest first, matching the Postgres ordering.
	slices.SortFunc(out, func(a, b *links.DynamicLink) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, code links.Code, patch links.Patch) (*links.DynamicLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[code]
	if !ok {
		return nil, links.ErrNotFound
	}

	patch.Apply(link, m.now())
	out := *link

	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, code links.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[code]
	if !ok {
		return links.ErrNotFound
	}

	delete(m.links, code)
	delete(m.scans, link.ID)

	return nil
}

func (m *MemoryStore) SaveScan(_ context.Context, event *scans.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasLinkID(event.LinkID) {
		return scans.ErrUnknownLink
	}

	for _, e := range m.scans[event.LinkID] {
		if e.ID == event.ID {
			return scans.ErrDuplicateScan
		}
	}

	stored := *event
	m.scans[event.LinkID] = append(m.scans[event.LinkID], &stored)

	return nil
}

func (m *MemoryStore) hasLinkID(id uuid.UUID) bool {
	for _, link := range m.links {
		if link.ID == id {
			return true
		}
	}

	return false
}

func (m *MemoryStore) ListScans(_ context.Context, linkID uuid.UUID) ([]*scans.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.scans[linkID]
	out := make([]*scans.Event, len(events))

	for i, e := range events {
		ev := *e
		out[i] = &ev
	}

	return out, nil
}

// Compile-time checks.
var (
	_ links.Repository = (*MemoryStore)(nil)
	_ scans.Store      = (*MemoryStore)(nil)
)
