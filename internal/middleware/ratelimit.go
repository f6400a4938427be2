package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/clientip"
	"github.com/serroba/qrlinks/internal/ratelimit"
	"go.uber.org/zap"
)

// ClientKeyFunc derives the rate limit identity of a request.
type ClientKeyFunc func(ctx huma.Context) string

// PeerClientKey keys clients on the transport peer address and User-Agent.
// Forwarding headers are ignored, so a client cannot rotate them to reset its budget.
func PeerClientKey(ctx huma.Context) string {
	return hashKey(clientip.Peer(ctx.RemoteAddr()), ctx.Header("User-Agent"))
}

// ForwardedClientKey keys clients on the header-resolved IP and User-Agent.
// Use it only behind a proxy that overwrites the forwarding headers.
func ForwardedClientKey(ctx huma.Context) string {
	return hashKey(clientIP(ctx), ctx.Header("User-Agent"))
}

func hashKey(ip, userAgent string) string {
	hash := sha256.Sum256([]byte(ip + "|" + userAgent))

	return hex.EncodeToString(hash[:])
}

// RateLimiter returns a Huma middleware enforcing limiter on every operation
// that is not marked Disabled in its ratelimit.EndpointConfig.
func RateLimiter(
	api huma.API,
	limiter *ratelimit.Limiter,
	resolver ratelimit.ScopeResolver,
	clientKey ClientKeyFunc,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil {
			logger.Error("missing operation in context for rate limiting")
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error")

			return
		}

		cfg, _ := ratelimit.EndpointConfigOf(op)
		if cfg.Disabled {
			next(ctx)

			return
		}

		violation, err := limiter.Check(ctx.Context(), ratelimit.Request{
			Client:      clientKey(ctx),
			Scopes:      resolver.Resolve(ctx),
			Route:       op.Path,
			RouteLimits: cfg.Limits,
		})
		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", op.Path), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if violation != nil {
			logger.Warn("rate limit exceeded",
				zap.String("path", op.Path),
				zap.String("scope", string(violation.Scope)),
				zap.Int64("count", violation.Count),
				zap.Int64("max", violation.Limit.Max),
				zap.Duration("window", violation.Limit.Window),
				zap.String("client_ip", clientIP(ctx)),
			)
			ctx.SetHeader("Retry-After", strconv.Itoa(violation.RetryAfter()))
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, violation.Error())

			return
		}

		next(ctx)
	}
}
