package ratelimit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Scope names a family of operations that share a request budget.
type Scope string

const (
	// ScopeGlobal is counted for every limited request.
	ScopeGlobal Scope = "global"
	// ScopeRead covers owner reads of links and their stats.
	ScopeRead Scope = "read"
	// ScopeWrite covers link creation, patches and deletes.
	ScopeWrite Scope = "write"
	// ScopeScan covers public redirect traversals, the QR scans themselves.
	ScopeScan Scope = "scan"
)

// MetadataKey is the operation metadata key holding an EndpointConfig.
const MetadataKey = "rateLimit"

// EndpointConfig tunes limiting for one operation.
type EndpointConfig struct {
	// Scope replaces the method-derived scope. Global always applies.
	Scope Scope
	// Limits are counted per route template on top of the scope limits.
	Limits []LimitConfig
	// Disabled exempts the operation entirely.
	Disabled bool
}

// EndpointConfigOf returns the config attached to op, if any.
func EndpointConfigOf(op *huma.Operation) (EndpointConfig, bool) {
	if op == nil || op.Metadata == nil {
		return EndpointConfig{}, false
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)

	return cfg, ok
}

// ScopeResolver determines which scopes a request is counted against.
type ScopeResolver interface {
	Resolve(ctx huma.Context) []Scope
}

// OperationScopeResolver uses the operation's configured scope and falls back
// to read for safe methods and write for everything else.
type OperationScopeResolver struct{}

func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{}
}

func (r *OperationScopeResolver) Resolve(ctx huma.Context) []Scope {
	if cfg, ok := EndpointConfigOf(ctx.Operation()); ok && cfg.Scope != "" {
		return []Scope{ScopeGlobal, cfg.Scope}
	}

	return []Scope{ScopeGlobal, methodScope(ctx.Method())}
}

func methodScope(method string) Scope {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeRead
	default:
		return ScopeWrite
	}
}
