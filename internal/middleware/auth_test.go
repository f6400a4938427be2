package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/qrlinks/internal/auth"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/middleware"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	token string
	owner links.OwnerID
}

func (s stubVerifier) Verify(token string) (links.OwnerID, error) {
	if token != s.token {
		return "", errors.New("bad token")
	}

	return s.owner, nil
}

type ownerOutput struct {
	Body struct {
		Owner string `json:"owner"`
	}
}

func newAuthAPI() *chi.Mux {
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.Auth(api, stubVerifier{token: "good", owner: "alice"}, zap.NewNop()))

	handler := func(ctx context.Context, _ *struct{}) (*ownerOutput, error) {
		out := &ownerOutput{}
		owner, _ := auth.OwnerFromContext(ctx)
		out.Body.Owner = string(owner)

		return out, nil
	}

	huma.Register(api, huma.Operation{
		Method:   http.MethodGet,
		Path:     "/secure",
		Security: []map[string][]string{{"bearer": {}}},
	}, handler)

	huma.Register(api, huma.Operation{
		Method: http.MethodGet,
		Path:   "/open",
	}, handler)

	return router
}

func TestAuth(t *testing.T) {
	router := newAuthAPI()

	serve := func(path, authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	t.Run("stores owner for valid token", func(t *testing.T) {
		w := serve("/secure", "Bearer good")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"owner":"alice"`)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve("/secure", "bearer good").Code)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		w := serve("/secure", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("/secure", "Bearer nope").Code)
	})

	t.Run("rejects other schemes", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("/secure", "Basic good").Code)
	})

	t.Run("open operations pass through", func(t *testing.T) {
		w := serve("/open", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"owner":""`)
	})
}
