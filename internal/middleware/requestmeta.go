package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/clientip"
	"github.com/serroba/qrlinks/internal/handlers"
)

// RequestMeta is a middleware that adds client IP, location, user-agent, and referrer to the request context.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		h := requestHeaders(ctx)

		meta := handlers.RequestMeta{
			ClientIP:  clientip.Resolve(h, ctx.RemoteAddr()),
			Location:  clientip.Geo(h),
			UserAgent: h.Get("User-Agent"),
			Referrer:  h.Get("Referer"),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

// requestHeaders copies the request headers out of a huma context.
func requestHeaders(ctx huma.Context) http.Header {
	h := make(http.Header)

	ctx.EachHeader(func(name, value string) {
		h.Add(name, value)
	})

	return h
}

// clientIP resolves the client address the same way the redirect path does.
func clientIP(ctx huma.Context) string {
	return clientip.Resolve(requestHeaders(ctx), ctx.RemoteAddr())
}
