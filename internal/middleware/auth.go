package middleware

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/auth"
	"github.com/serroba/qrlinks/internal/links"
	"go.uber.org/zap"
)

// OwnerVerifier resolves a bearer token to the owner it was issued to.
type OwnerVerifier interface {
	Verify(token string) (links.OwnerID, error)
}

// Auth returns a Huma middleware that requires a valid bearer token on
// operations declaring a security requirement and stores the owner in the
// request context. Operations without security pass through untouched.
func Auth(api huma.API, verifier OwnerVerifier, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || len(op.Security) == 0 {
			next(ctx)

			return
		}

		owner, err := verifier.Verify(bearerToken(ctx.Header("Authorization")))
		if err != nil {
			logger.Debug("rejected bearer token", zap.String("path", op.Path), zap.Error(err))
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="qrlinks"`)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing or invalid bearer token")

			return
		}

		next(huma.WithContext(ctx, auth.ContextWithOwner(ctx.Context(), owner)))
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
