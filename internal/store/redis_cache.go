package store

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/qrlinks/internal/links"
)

// RedisCacheRepository wraps a Repository with Redis caching for code lookups.
type RedisCacheRepository struct {
	store  links.Repository
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store links.Repository, client *redis.Client, ttl time.Duration,
) *RedisCacheRepository {
	return &RedisCacheRepository{
		store:  store,
		client: client,
		prefix: "link:",
		ttl:    ttl,
	}
}

// Create stores a link in the underlying store and updates the cache.
func (r *RedisCacheRepository) Create(ctx context.Context, link *links.DynamicLink) error {
	if err := r.store.Create(ctx, link); err != nil {
		return err
	}

	// Write-through: update cache after successful save
	r.cacheLink(ctx, link)

	return nil
}

// GetByCode retrieves a link by its code, checking cache first.
func (r *RedisCacheRepository) GetByCode(ctx context.Context, code links.Code) (*links.DynamicLink, error) {
	if link, err := r.getFromCache(ctx, code); err == nil {
		return link, nil
	}

	link, err := r.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cacheLink(ctx, link)

	return link, nil
}

// ListByOwner is not cached.
func (r *RedisCacheRepository) ListByOwner(ctx context.Context, owner links.OwnerID) ([]*links.DynamicLink, error) {
	return r.store.ListByOwner(ctx, owner)
}

// Update writes through and drops the cached entry so redirects see the new destination.
func (r *RedisCacheRepository) Update(ctx context.Context, code links.Code, patch links.Patch) (*links.DynamicLink, error) {
	r.evict(ctx, code)

	link, err := r.store.Update(ctx, code, patch)
	if err != nil {
		return nil, err
	}

	r.evict(ctx, code)

	return link, nil
}

// Delete removes the link from the store and the cache.
func (r *RedisCacheRepository) Delete(ctx context.Context, code links.Code) error {
	if err := r.store.Delete(ctx, code); err != nil {
		return err
	}

	r.evict(ctx, code)

	return nil
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code links.Code) (*links.DynamicLink, error) {
	result, err := r.client.HGetAll(ctx, r.prefix+string(code)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, links.ErrNotFound
	}

	id, err := uuid.Parse(result["id"])
	if err != nil {
		return nil, err
	}

	return &links.DynamicLink{
		ID:             id,
		Code:           links.Code(result["code"]),
		DestinationURL: result["destination_url"],
		Title:          result["title"],
		OwnerID:        links.OwnerID(result["owner_id"]),
		CreatedAt:      parseNanos(result["created_at"]),
		UpdatedAt:      parseNanos(result["updated_at"]),
	}, nil
}

func (r *RedisCacheRepository) cacheLink(ctx context.Context, link *links.DynamicLink) {
	pipe := r.client.Pipeline()
	key := r.prefix + string(link.Code)

	pipe.HSet(ctx, key, map[string]any{
		"id":              link.ID.String(),
		"code":            string(link.Code),
		"destination_url": link.DestinationURL,
		"title":           link.Title,
		"owner_id":        string(link.OwnerID),
		"created_at":      link.CreatedAt.UnixNano(),
		"updated_at":      link.UpdatedAt.UnixNano(),
	})

	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	_, _ = pipe.Exec(ctx)
}

func (r *RedisCacheRepository) evict(ctx context.Context, code links.Code) {
	_ = r.client.Del(ctx, r.prefix+string(code)).Err()
}

func parseNanos(s string) time.Time {
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(0, nanos).UTC()
}

// Shutdown is a no-op for RedisCacheRepository (client managed externally).
func (r *RedisCacheRepository) Shutdown() error {
	return nil
}

// Compile-time check.
var _ links.Repository = (*RedisCacheRepository)(nil)
