// Package clientip extracts the originating client address and edge-provided
// geo hints from request headers.
//
// None of these headers are authenticated. Without a trusted reverse proxy in
// front of the service a client can put any value in them.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// EdgeHeaders are single-value client IP headers set by CDNs and proxies,
// in priority order.
var EdgeHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Client-IP",
	"Fastly-Client-IP",
}

// Resolve returns the best guess of the client IP, or "" if nothing is known.
func Resolve(h http.Header, remoteAddr string) string {
	for _, name := range EdgeHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}

	if ip := firstForwardedFor(h.Get("X-Forwarded-For")); ip != "" {
		return ip
	}

	if ip := forwardedFor(h.Get("Forwarded")); ip != "" {
		return ip
	}

	return Peer(remoteAddr)
}

func firstForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")

	return strings.TrimSpace(first)
}

// forwardedFor extracts the for= value of an RFC 7239 Forwarded header,
// e.g. `for=203.0.113.43;proto=https` or `for="[2001:db8::1]:4711"`.
func forwardedFor(header string) string {
	if header == "" {
		return ""
	}

	// Only the first element of a comma-separated list names the client.
	element, _, _ := strings.Cut(header, ",")

	for _, pair := range strings.Split(element, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
			continue
		}

		return stripPort(strings.Trim(strings.TrimSpace(value), `"`))
	}

	return ""
}

func stripPort(v string) string {
	if strings.HasPrefix(v, "[") {
		end := strings.Index(v, "]")
		if end < 0 {
			return ""
		}

		return v[1:end]
	}

	// An unbracketed value with more than one colon is a bare IPv6 address.
	if strings.Count(v, ":") == 1 {
		host, _, _ := strings.Cut(v, ":")

		return host
	}

	return v
}

// Peer returns the host part of the transport peer address, ignoring every header.
func Peer(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

// Location holds geo hints injected by a trusted edge.
type Location struct {
	Country string
	Region  string
	City    string
}

// Geo reads the edge geo headers. Missing values are left empty.
func Geo(h http.Header) Location {
	country := h.Get("CF-IPCountry")
	if country == "" {
		country = h.Get("X-Country")
	}

	return Location{
		Country: country,
		Region:  h.Get("X-Region"),
		City:    h.Get("X-City"),
	}
}
