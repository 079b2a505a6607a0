// Package store provides durable persistence for worker state.
package store

import (
	"context"

	"github.com/dramarama/companion/internal/domain"
)

// Well-known worker_state keys.
const (
	StateCurrentSessionURL = "current_session_url"
	StateAPIBaseURL        = "api_base_url"
	StateFrontendBaseURL   = "frontend_base_url"
)

// Repository defines the interface for persisting the credential, the
// per-problem session map, and the worker's key/value state. All three must
// survive worker restarts.
type Repository interface {
	// GetCredential retrieves the active credential, or nil when none is stored.
	GetCredential(ctx context.Context) (*domain.Credential, error)

	// PutCredential stores the active credential, replacing any existing one.
	PutCredential(ctx context.Context, cred *domain.Credential) error

	// DeleteCredential removes the active credential.
	DeleteCredential(ctx context.Context) error

	// GetSession retrieves the session for a problem URL, or nil when absent.
	GetSession(ctx context.Context, algorithmURL string) (*domain.Session, error)

	// UpsertSession creates or replaces the session for its problem URL.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes the session for a problem URL.
	DeleteSession(ctx context.Context, algorithmURL string) error

	// ListSessions returns every persisted session.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// ClearSessions removes every persisted session.
	ClearSessions(ctx context.Context) error

	// GetState retrieves a worker_state value; empty string when unset.
	GetState(ctx context.Context, key string) (string, error)

	// SetState stores a worker_state value.
	SetState(ctx context.Context, key, value string) error

	// DeleteState removes a worker_state value.
	DeleteState(ctx context.Context, key string) error

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying storage.
	Close() error
}
