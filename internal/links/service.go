package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxCodeAttempts bounds how many codes Create tries before giving up.
const MaxCodeAttempts = 5

// CreateInput holds the owner-supplied fields of a new link.
type CreateInput struct {
	DestinationURL string
	Title          string
}

// Service implements link management on top of a Repository.
type Service struct {
	repo         Repository
	generateCode CodeGenerator
	now          func() time.Time
}

// NewService creates a new link service.
func NewService(repo Repository, generator CodeGenerator) *Service {
	return &Service{
		repo:         repo,
		generateCode: generator,
		now:          time.Now,
	}
}

// Create registers a new link for owner under a freshly generated code.
func (s *Service) Create(ctx context.Context, owner OwnerID, in CreateInput) (*DynamicLink, error) {
	dest := strings.TrimSpace(in.DestinationURL)
	if dest == "" {
		return nil, ErrInvalidDestination
	}

	for range MaxCodeAttempts {
		code := Code(s.generateCode())

		_, err := s.repo.GetByCode(ctx, code)
		if err == nil {
			continue
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check code: %w", err)
		}

		now := s.now()
		link := &DynamicLink{
			ID:             uuid.New(),
			Code:           code,
			DestinationURL: dest,
			Title:          strings.TrimSpace(in.Title),
			OwnerID:        owner,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		err = s.repo.Create(ctx, link)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("create link: %w", err)
		}

		return link, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// Resolve returns the link for a code regardless of owner. Used by the redirect path.
func (s *Service) Resolve(ctx context.Context, code Code) (*DynamicLink, error) {
	return s.repo.GetByCode(ctx, code)
}

// Get returns the link only if owner owns it; otherwise ErrNotFound.
func (s *Service) Get(ctx context.Context, owner OwnerID, code Code) (*DynamicLink, error) {
	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if link.OwnerID != owner {
		return nil, ErrNotFound
	}

	return link, nil
}

// List returns every link owned by owner.
func (s *Service) List(ctx context.Context, owner OwnerID) ([]*DynamicLink, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Update applies patch to an owned link.
func (s *Service) Update(ctx context.Context, owner OwnerID, code Code, patch Patch) (*DynamicLink, error) {
	patch, err := patch.normalize()
	if err != nil {
		return nil, err
	}

	link, err := s.Get(ctx, owner, code)
	if err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return link, nil
	}

	return s.repo.Update(ctx, code, patch)
}

// Delete removes an owned link together with its scans.
func (s *Service) Delete(ctx context.Context, owner OwnerID, code Code) error {
	if _, err := s.Get(ctx, owner, code); err != nil {
		return err
	}

	return s.repo.Delete(ctx, code)
}
