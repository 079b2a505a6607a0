package domain

// Credential is the single active bearer token plus the identity claims
// derived from it. The claims are decoded without signature verification and
// must never be treated as authorization; the backend authorizes every call.
type Credential struct {
	Token   string `json:"token"`
	Subject string `json:"subject,omitempty"`
	Email   string `json:"email,omitempty"`
}

// HasToken reports whether a bearer token is present.
func (c *Credential) HasToken() bool {
	return c != nil && c.Token != ""
}

// SameIdentity reports whether the credential belongs to the given subject.
// An unknown subject on either side counts as a different identity only when
// both are known and differ; a rotation that keeps the subject is the same
// identity.
func (c *Credential) SameIdentity(subject string) bool {
	if c == nil || c.Subject == "" || subject == "" {
		return true
	}
	return c.Subject == subject
}
