// Package auth manages the worker's bearer credential and the identity
// claims derived from it.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Claims holds identity fields read from a JWT payload. The payload is
// decoded without signature verification: these are untrusted hints for
// display and identity-change detection only. Authorization is entirely the
// backend's responsibility.
type Claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	Nickname          string `json:"nickname"`
	PreferredUsername string `json:"preferred_username"`
}

// DisplayName returns the best available human-readable name.
func (c *Claims) DisplayName() string {
	for _, name := range []string{c.Name, c.GivenName, c.Nickname, c.PreferredUsername} {
		if name != "" {
			return name
		}
	}
	return ""
}

// DecodeClaims parses the second segment of a dot-delimited token as
// base64url JSON. It returns nil on any malformed input and never panics;
// a bad token degrades to "identity unknown".
func DecodeClaims(token string) *Claims {
	if token == "" {
		return nil
	}
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return &claims
}

// DecodeSubject returns the sub claim of a token, or "" when the token
// cannot be parsed.
func DecodeSubject(token string) string {
	claims := DecodeClaims(token)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
