package backend

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned before any network I/O when no bearer
// token is available.
var ErrNotAuthenticated = errors.New("Not authenticated. Please login at DramaRama.")

// TokenExpiredError marks a backend rejection caused by the credential no
// longer being accepted. Callers offer a re-authentication flow instead of a
// generic retry.
type TokenExpiredError struct {
	Detail string
}

func (e *TokenExpiredError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("session expired: %s", e.Detail)
	}
	return "session expired, please login again"
}

// ConnectivityError marks a failure of the network call itself (DNS, refused
// connection, offline) as opposed to an application-level rejection.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not reach DramaRama backend (check your connection): %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// APIError is a structured non-2xx backend response. Detail is surfaced to
// the caller verbatim.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// IsTokenExpired reports whether err is a credential-expiry rejection.
func IsTokenExpired(err error) bool {
	var expired *TokenExpiredError
	return errors.As(err, &expired)
}
