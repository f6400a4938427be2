package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store counts requests in a sliding window. Record adds one request under key
// and returns how many fall inside the trailing window, the new one included.
type Store interface {
	Record(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Request is one call to be counted.
type Request struct {
	// Client identifies the caller, typically a hash of its address.
	Client string
	Scopes []Scope
	// Route is the operation path template, used to key RouteLimits.
	Route       string
	RouteLimits []LimitConfig
}

// Violation reports the first limit a request went over.
type Violation struct {
	// Scope is empty when a route limit was hit.
	Scope Scope
	Route string
	Limit LimitConfig
	Count int64
}

// RetryAfter is the number of whole seconds a client should back off.
func (v *Violation) RetryAfter() int {
	return max(1, int(v.Limit.Window.Seconds()))
}

func (v *Violation) Error() string {
	if v.Scope == "" {
		return fmt.Sprintf("rate limit exceeded: %d/%d requests to %s in %s", v.Count, v.Limit.Max, v.Route, v.Limit.Window)
	}

	return fmt.Sprintf("rate limit exceeded: %s scope, %d/%d requests in %s", v.Scope, v.Count, v.Limit.Max, v.Limit.Window)
}

// Limiter checks requests against a Policy plus per-route limits.
type Limiter struct {
	store  Store
	policy *Policy
}

func NewLimiter(store Store, policy *Policy) *Limiter {
	return &Limiter{store: store, policy: policy}
}

// Check counts req against every applicable limit and returns the first
// violation, or nil when the request is within budget. Scope limits are
// checked before route limits.
func (l *Limiter) Check(ctx context.Context, req Request) (*Violation, error) {
	for _, scope := range req.Scopes {
		for _, limit := range l.policy.Limits[scope] {
			key := fmt.Sprintf("%s:%s:%d", req.Client, scope, limit.Window.Milliseconds())

			v, err := l.count(ctx, key, limit)
			if err != nil || v != nil {
				if v != nil {
					v.Scope = scope
				}

				return v, err
			}
		}
	}

	for _, limit := range req.RouteLimits {
		key := fmt.Sprintf("%s:route:%s:%d", req.Client, req.Route, limit.Window.Milliseconds())

		v, err := l.count(ctx, key, limit)
		if err != nil || v != nil {
			if v != nil {
				v.Route = req.Route
			}

			return v, err
		}
	}

	return nil, nil //nolint:nilnil // nil violation means allowed
}

func (l *Limiter) count(ctx context.Context, key string, limit LimitConfig) (*Violation, error) {
	n, err := l.store.Record(ctx, key, limit.Window)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", key, err)
	}

	if n > limit.Max {
		return &Violation{Limit: limit, Count: n}, nil
	}

	return nil, nil //nolint:nilnil // within budget
}
