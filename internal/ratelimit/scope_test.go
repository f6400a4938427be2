package ratelimit_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

var errNoMultipart = errors.New("multipart not supported")

// opContext is a huma.Context carrying only a method and an operation.
type opContext struct {
	method    string
	operation *huma.Operation
}

func (c *opContext) Operation() *huma.Operation                 { return c.operation }
func (c *opContext) Context() context.Context                   { return context.Background() }
func (c *opContext) TLS() *tls.ConnectionState                  { return nil }
func (c *opContext) Version() huma.ProtoVersion                 { return huma.ProtoVersion{} }
func (c *opContext) Method() string                             { return c.method }
func (c *opContext) Host() string                               { return "" }
func (c *opContext) RemoteAddr() string                         { return "" }
func (c *opContext) URL() url.URL                               { return url.URL{} }
func (c *opContext) Param(_ string) string                      { return "" }
func (c *opContext) Query(_ string) string                      { return "" }
func (c *opContext) Header(_ string) string                     { return "" }
func (c *opContext) EachHeader(_ func(string, string))          {}
func (c *opContext) BodyReader() io.Reader                      { return nil }
func (c *opContext) GetMultipartForm() (*multipart.Form, error) { return nil, errNoMultipart }
func (c *opContext) SetReadDeadline(_ time.Time) error          { return nil }
func (c *opContext) SetStatus(_ int)                            {}
func (c *opContext) Status() int                                { return 0 }
func (c *opContext) AppendHeader(_, _ string)                   {}
func (c *opContext) SetHeader(_, _ string)                      {}
func (c *opContext) BodyWriter() io.Writer                      { return nil }

func withConfig(method, path string, cfg ratelimit.EndpointConfig) *opContext {
	return &opContext{
		method: method,
		operation: &huma.Operation{
			Method:   method,
			Path:     path,
			Metadata: map[string]any{ratelimit.MetadataKey: cfg},
		},
	}
}

func TestOperationScopeResolver_Resolve(t *testing.T) {
	resolver := ratelimit.NewOperationScopeResolver()

	tests := []struct {
		name string
		ctx  *opContext
		want ratelimit.Scope
	}{
		{
			name: "listing links is a read",
			ctx:  &opContext{method: http.MethodGet, operation: &huma.Operation{Path: "/api/links"}},
			want: ratelimit.ScopeRead,
		},
		{
			name: "patching a link is a write",
			ctx:  &opContext{method: http.MethodPatch, operation: &huma.Operation{Path: "/api/links/{code}"}},
			want: ratelimit.ScopeWrite,
		},
		{
			name: "deleting a link is a write",
			ctx:  &opContext{method: http.MethodDelete},
			want: ratelimit.ScopeWrite,
		},
		{
			name: "redirect uses its configured scan scope",
			ctx:  withConfig(http.MethodGet, "/r/{code}", ratelimit.EndpointConfig{Scope: ratelimit.ScopeScan}),
			want: ratelimit.ScopeScan,
		},
		{
			name: "route limits alone keep the method scope",
			ctx: withConfig(http.MethodPost, "/api/links", ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 10}},
			}),
			want: ratelimit.ScopeWrite,
		},
		{
			name: "foreign metadata is ignored",
			ctx: &opContext{method: http.MethodGet, operation: &huma.Operation{
				Metadata: map[string]any{ratelimit.MetadataKey: "not a config"},
			}},
			want: ratelimit.ScopeRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, tt.want}, resolver.Resolve(tt.ctx))
		})
	}
}

func TestEndpointConfigOf(t *testing.T) {
	t.Run("nil operation", func(t *testing.T) {
		_, ok := ratelimit.EndpointConfigOf(nil)
		assert.False(t, ok)
	})

	t.Run("operation without metadata", func(t *testing.T) {
		_, ok := ratelimit.EndpointConfigOf(&huma.Operation{})
		assert.False(t, ok)
	})

	t.Run("health is exempt", func(t *testing.T) {
		cfg, ok := ratelimit.EndpointConfigOf(withConfig(http.MethodGet, "/health",
			ratelimit.EndpointConfig{Disabled: true}).operation)

		assert.True(t, ok)
		assert.True(t, cfg.Disabled)
	})
}
