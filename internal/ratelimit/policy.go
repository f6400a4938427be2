package ratelimit

import "time"

// LimitConfig allows at most Max requests per sliding Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// Policy maps each scope to the limits enforced on it. A request must satisfy
// every limit of every scope it resolves to.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// PolicyBuilder assembles a Policy.
type PolicyBuilder struct {
	limits map[Scope][]LimitConfig
}

// NewPolicyBuilder creates an empty policy builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{limits: make(map[Scope][]LimitConfig)}
}

// AddLimit appends a limit of max requests per window to scope.
func (b *PolicyBuilder) AddLimit(scope Scope, maxRequests int64, window time.Duration) *PolicyBuilder {
	b.limits[scope] = append(b.limits[scope], LimitConfig{Window: window, Max: maxRequests})

	return b
}

// Build returns the assembled policy.
func (b *PolicyBuilder) Build() *Policy {
	limits := make(map[Scope][]LimitConfig, len(b.limits))
	for scope, l := range b.limits {
		limits[scope] = append([]LimitConfig(nil), l...)
	}

	return &Policy{Limits: limits}
}

// DefaultPolicy is the per-client budget of the service. Scans get a larger
// allowance than owner writes since a shared NAT may front many scanners.
func DefaultPolicy() *Policy {
	return NewPolicyBuilder().
		AddLimit(ScopeGlobal, 1000, time.Minute).
		AddLimit(ScopeRead, 600, time.Minute).
		AddLimit(ScopeWrite, 60, time.Minute).
		AddLimit(ScopeWrite, 1000, 24*time.Hour).
		AddLimit(ScopeScan, 300, time.Minute).
		AddLimit(ScopeScan, 5000, time.Hour).
		Build()
}
