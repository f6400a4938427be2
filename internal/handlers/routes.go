package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/qrlinks/internal/ratelimit"
)

// SecurityScheme is the OpenAPI security scheme name for owner bearer tokens.
const SecurityScheme = "bearer"

var ownerSecurity = []map[string][]string{{SecurityScheme: {}}}

// RegisterSecurityScheme declares the bearer scheme in the OpenAPI document.
func RegisterSecurityScheme(api huma.API) {
	components := api.OpenAPI().Components
	if components.SecuritySchemes == nil {
		components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}

	components.SecuritySchemes[SecurityScheme] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
}

// RegisterRoutes registers the link management and redirect routes with
// per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, linkHandler *LinkHandler, redirectHandler *RedirectHandler) {
	RegisterSecurityScheme(api)

	// Link creation carries route limits on top of the write scope
	huma.Register(api, huma.Operation{
		OperationID:   "create-link",
		Method:        http.MethodPost,
		Path:          "/api/links",
		Summary:       "Create dynamic link",
		Description:   "Creates a dynamic link with a generated short code for the caller.",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusCreated,
		Security:      ownerSecurity,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{
					{Window: time.Minute, Max: 10},
					{Window: time.Hour, Max: 100},
					{Window: 24 * time.Hour, Max: 500},
				},
			},
		},
	}, linkHandler.CreateLink)

	huma.Register(api, huma.Operation{
		OperationID: "list-links",
		Method:      http.MethodGet,
		Path:        "/api/links",
		Summary:     "List dynamic links",
		Tags:        []string{"Links"},
		Security:    ownerSecurity,
	}, linkHandler.ListLinks)

	huma.Register(api, huma.Operation{
		OperationID: "get-link",
		Method:      http.MethodGet,
		Path:        "/api/links/{code}",
		Summary:     "Get dynamic link with statistics",
		Tags:        []string{"Links"},
		Security:    ownerSecurity,
	}, linkHandler.GetLink)

	huma.Register(api, huma.Operation{
		OperationID: "get-link-stats",
		Method:      http.MethodGet,
		Path:        "/api/links/{code}/stats",
		Summary:     "Get scan statistics",
		Description: "Scan counts by device, browser, operating system and day.",
		Tags:        []string{"Links"},
		Security:    ownerSecurity,
	}, linkHandler.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "update-link",
		Method:      http.MethodPatch,
		Path:        "/api/links/{code}",
		Summary:     "Update dynamic link",
		Description: "Changes the destination or title. The short code never changes.",
		Tags:        []string{"Links"},
		Security:    ownerSecurity,
	}, linkHandler.UpdateLink)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-link",
		Method:        http.MethodDelete,
		Path:          "/api/links/{code}",
		Summary:       "Delete dynamic link",
		Description:   "Deletes the link and all of its scans.",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusNoContent,
		Security:      ownerSecurity,
	}, linkHandler.DeleteLink)

	// Scans draw from their own budget so owners' API use cannot starve them
	huma.Register(api, huma.Operation{
		OperationID: "redirect",
		Method:      http.MethodGet,
		Path:        "/r/{code}",
		Summary:     "Redirect to destination",
		Description: "Records a scan and redirects to the link's current destination.",
		Tags:        []string{"Redirect"},
		Errors:      []int{http.StatusNotFound},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeScan},
		},
	}, redirectHandler.Redirect)
}
