package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/scans"
	"go.uber.org/zap"
)

// RedirectHandler resolves short codes, records scans, and redirects.
type RedirectHandler struct {
	service *links.Service
	tracker *scans.Tracker
	logger  *zap.Logger
}

// NewRedirectHandler creates a new redirect handler.
func NewRedirectHandler(service *links.Service, tracker *scans.Tracker, logger *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		service: service,
		tracker: tracker,
		logger:  logger,
	}
}

// Redirect answers 302 with the current destination. A failed scan record is
// logged and does not block the redirect.
func (h *RedirectHandler) Redirect(ctx context.Context, req *CodeParam) (*RedirectResponse, error) {
	link, err := h.service.Resolve(ctx, links.Code(req.Code))
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			return nil, huma.Error404NotFound("link not found")
		}

		h.logger.Error("failed to resolve link", zap.String("code", req.Code), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to resolve link")
	}

	meta := RequestMetaFromContext(ctx)

	_, err = h.tracker.Track(ctx, scans.LinkRef{ID: link.ID, Code: string(link.Code)}, scans.Visit{
		IP:        meta.ClientIP,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
		Country:   meta.Location.Country,
		Region:    meta.Location.Region,
		City:      meta.Location.City,
	})
	if err != nil {
		h.logger.Error("failed to record scan",
			zap.String("code", req.Code),
			zap.Error(err),
		)
	}

	return &RedirectResponse{
		Status:   http.StatusFound,
		Location: link.DestinationURL,
	}, nil
}
