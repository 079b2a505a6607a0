package auth

import (
	"net/url"
	"strings"
)

// Fragment parameters used for the one-time login handoff. They travel in
// the URL fragment, never the query string, so the destination server never
// sees the token.
const (
	handoffTokenParam = "dramarama_token"
	handoffHQParam    = "dramarama_hq"
)

// Handoff is the result of reading the login handoff from a URL fragment.
type Handoff struct {
	Token string
	// HQOrigin, when present, rewires the worker's endpoints: the API base
	// becomes <origin>/api/backend-api and the frontend base the origin itself.
	HQOrigin string
	// CleanURL is the original URL with both handoff parameters stripped,
	// suitable for replacing in place without navigation.
	CleanURL string
}

// APIBaseURL returns the proxied API base derived from the HQ origin, or ""
// when no origin was handed off.
func (h *Handoff) APIBaseURL() string {
	if h.HQOrigin == "" {
		return ""
	}
	return h.HQOrigin + "/api/backend-api"
}

// ParseHandoff reads the one-time token and optional HQ origin from a URL's
// fragment. The second return is false when the URL carries no handoff
// parameters or cannot be parsed at all.
func ParseHandoff(rawURL string) (*Handoff, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Fragment == "" {
		return nil, false
	}

	params, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil, false
	}

	token := params.Get(handoffTokenParam)
	hq := params.Get(handoffHQParam)
	if token == "" && hq == "" {
		return nil, false
	}

	params.Del(handoffTokenParam)
	params.Del(handoffHQParam)
	u.Fragment = params.Encode()

	return &Handoff{
		Token:    token,
		HQOrigin: strings.TrimRight(hq, "/"),
		CleanURL: u.String(),
	}, true
}
