package handlers

import (
	"time"

	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/scans"
)

// CodeParam addresses a single link by its short code.
type CodeParam struct {
	Code string `doc:"The short code" example:"Ab3_x9Zq" path:"code"`
}

// CreateLinkRequest is the request body for creating a dynamic link.
type CreateLinkRequest struct {
	Body struct {
		DestinationURL string `doc:"Where the link redirects to" example:"https://example.com/menu" json:"destination_url"`
		Title          string `doc:"Optional label"              example:"Lunch menu"               json:"title,omitempty" required:"false"`
	}
}

// CreateLinkResponse is the response for a successfully created link.
type CreateLinkResponse struct {
	Location string `header:"Location"`
	Body     struct {
		ShortCode           string `doc:"The short code"                     example:"Ab3_x9Zq"                          json:"short_code"`
		RedirectURL         string `doc:"Relative redirect path"             example:"/r/Ab3_x9Zq"                       json:"redirect_url"`
		AbsoluteRedirectURL string `doc:"Redirect URL to encode in QR codes" example:"http://localhost:8888/r/Ab3_x9Zq" json:"absolute_redirect_url"`
	}
}

// LinkBody is the public representation of a dynamic link.
type LinkBody struct {
	ShortCode           string    `json:"short_code"`
	DestinationURL      string    `json:"destination_url"`
	Title               string    `json:"title,omitempty"`
	RedirectURL         string    `json:"redirect_url"`
	AbsoluteRedirectURL string    `json:"absolute_redirect_url"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ListLinksResponse lists the caller's links.
type ListLinksResponse struct {
	Body struct {
		Links []LinkBody `json:"links"`
	}
}

// LinkDetails is a link together with its scan statistics.
type LinkDetails struct {
	LinkBody

	Stats scans.Stats `json:"stats"`
}

// GetLinkResponse returns one link with statistics.
type GetLinkResponse struct {
	Body LinkDetails
}

// StatsResponse returns scan statistics only.
type StatsResponse struct {
	Body scans.Stats
}

// UpdateLinkRequest patches a link. Omitted fields are left unchanged.
type UpdateLinkRequest struct {
	CodeParam

	Body struct {
		DestinationURL *string `doc:"New destination" json:"destination_url,omitempty" required:"false"`
		Title          *string `doc:"New label"       json:"title,omitempty"           required:"false"`
	}
}

// UpdateLinkResponse returns the patched link.
type UpdateLinkResponse struct {
	Body LinkBody
}

// RedirectResponse sends the scanner on to the destination.
type RedirectResponse struct {
	Status   int
	Location string `header:"Location"`
}

func (p UpdateLinkRequest) patch() links.Patch {
	return links.Patch{
		DestinationURL: p.Body.DestinationURL,
		Title:          p.Body.Title,
	}
}
