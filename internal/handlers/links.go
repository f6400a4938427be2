package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/auth"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/scans"
	"go.uber.org/zap"
)

// LinkHandler handles link management for authenticated owners.
type LinkHandler struct {
	service *links.Service
	scans   scans.Store
	baseURL string
	logger  *zap.Logger
}

// NewLinkHandler creates a new link handler. baseURL prefixes absolute redirect URLs.
func NewLinkHandler(service *links.Service, scanStore scans.Store, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		scans:   scanStore,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (h *LinkHandler) CreateLink(ctx context.Context, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	link, err := h.service.Create(ctx, owner, links.CreateInput{
		DestinationURL: req.Body.DestinationURL,
		Title:          req.Body.Title,
	})
	if err != nil {
		return nil, h.mapError(err, "create link")
	}

	h.logger.Info("link created",
		zap.String("code", string(link.Code)),
		zap.String("owner", string(owner)),
	)

	resp := &CreateLinkResponse{}
	resp.Body.ShortCode = string(link.Code)
	resp.Body.RedirectURL = links.RedirectPath(link.Code)
	resp.Body.AbsoluteRedirectURL = h.absolute(link.Code)
	resp.Location = "/api/links/" + string(link.Code)

	return resp, nil
}

func (h *LinkHandler) ListLinks(ctx context.Context, _ *struct{}) (*ListLinksResponse, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	owned, err := h.service.List(ctx, owner)
	if err != nil {
		return nil, h.mapError(err, "list links")
	}

	resp := &ListLinksResponse{}
	resp.Body.Links = make([]LinkBody, 0, len(owned))

	for _, link := range owned {
		resp.Body.Links = append(resp.Body.Links, h.linkBody(link))
	}

	return resp, nil
}

func (h *LinkHandler) GetLink(ctx context.Context, req *CodeParam) (*GetLinkResponse, error) {
	link, err := h.ownedLink(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	stats, err := h.stats(ctx, link)
	if err != nil {
		return nil, err
	}

	return &GetLinkResponse{Body: LinkDetails{LinkBody: h.linkBody(link), Stats: stats}}, nil
}

func (h *LinkHandler) GetStats(ctx context.Context, req *CodeParam) (*StatsResponse, error) {
	link, err := h.ownedLink(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	stats, err := h.stats(ctx, link)
	if err != nil {
		return nil, err
	}

	return &StatsResponse{Body: stats}, nil
}

func (h *LinkHandler) UpdateLink(ctx context.Context, req *UpdateLinkRequest) (*UpdateLinkResponse, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	link, err := h.service.Update(ctx, owner, links.Code(req.Code), req.patch())
	if err != nil {
		return nil, h.mapError(err, "update link")
	}

	return &UpdateLinkResponse{Body: h.linkBody(link)}, nil
}

func (h *LinkHandler) DeleteLink(ctx context.Context, req *CodeParam) (*struct{}, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, owner, links.Code(req.Code)); err != nil {
		return nil, h.mapError(err, "delete link")
	}

	h.logger.Info("link deleted", zap.String("code", req.Code), zap.String("owner", string(owner)))

	return nil, nil
}

func (h *LinkHandler) ownedLink(ctx context.Context, code string) (*links.DynamicLink, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	link, err := h.service.Get(ctx, owner, links.Code(code))
	if err != nil {
		return nil, h.mapError(err, "get link")
	}

	return link, nil
}

func (h *LinkHandler) stats(ctx context.Context, link *links.DynamicLink) (scans.Stats, error) {
	events, err := h.scans.ListScans(ctx, link.ID)
	if err != nil {
		h.logger.Error("failed to list scans", zap.String("code", string(link.Code)), zap.Error(err))

		return scans.Stats{}, huma.Error500InternalServerError("failed to load statistics")
	}

	return scans.Aggregate(events), nil
}

func (h *LinkHandler) absolute(code links.Code) string {
	return h.baseURL + links.RedirectPath(code)
}

func (h *LinkHandler) linkBody(link *links.DynamicLink) LinkBody {
	return LinkBody{
		ShortCode:           string(link.Code),
		DestinationURL:      link.DestinationURL,
		Title:               link.Title,
		RedirectURL:         links.RedirectPath(link.Code),
		AbsoluteRedirectURL: h.absolute(link.Code),
		CreatedAt:           link.CreatedAt,
		UpdatedAt:           link.UpdatedAt,
	}
}

// mapError converts domain errors to HTTP errors. Unknown errors are logged and hidden.
func (h *LinkHandler) mapError(err error, action string) error {
	switch {
	case errors.Is(err, links.ErrInvalidDestination):
		return huma.Error422UnprocessableEntity("destination_url is required")
	case errors.Is(err, links.ErrNotFound):
		return huma.Error404NotFound("link not found")
	case errors.Is(err, links.ErrCodeSpaceExhausted):
		h.logger.Error("short code space exhausted", zap.Int("attempts", links.MaxCodeAttempts))

		return huma.Error500InternalServerError("could not allocate a short code")
	default:
		h.logger.Error("failed to "+action, zap.Error(err))

		return huma.Error500InternalServerError("failed to " + action)
	}
}

func requireOwner(ctx context.Context) (links.OwnerID, error) {
	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		return "", huma.NewError(http.StatusUnauthorized, "missing or invalid bearer token")
	}

	return owner, nil
}
