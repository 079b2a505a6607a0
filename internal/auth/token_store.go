package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dramarama/companion/internal/domain"
	"github.com/dramarama/companion/internal/store"
)

// SessionInvalidator is notified when the active identity changes so all
// session state tied to the previous identity can be dropped.
type SessionInvalidator interface {
	ClearAll(ctx context.Context) error
}

// Store holds the single active credential: an in-memory read-through cache
// over durable storage. At most one credential is active at a time.
type Store struct {
	repo store.Repository

	mu       sync.Mutex
	cred     *domain.Credential
	loaded   bool
	sessions SessionInvalidator
}

// NewStore creates a credential store backed by the repository.
func NewStore(repo store.Repository) *Store {
	return &Store{repo: repo}
}

// SetSessionInvalidator wires the registry cleared on identity change.
func (s *Store) SetSessionInvalidator(inv SessionInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = inv
}

// SetToken stores a new bearer token in memory and durable storage. When the
// new token's decoded subject differs from the current one, every session is
// invalidated first; a rotation that keeps the subject leaves sessions alone.
func (s *Store) SetToken(ctx context.Context, token string) error {
	claims := DecodeClaims(token)

	cred := &domain.Credential{Token: token}
	if claims != nil {
		cred.Subject = claims.Subject
		cred.Email = claims.Email
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.currentLocked(ctx)
	if err != nil {
		// Storage trouble reading the old credential must not block a login.
		slog.Warn("could not load previous credential", "error", err)
	}

	if prev.HasToken() && !prev.SameIdentity(cred.Subject) {
		slog.Info("identity changed, invalidating sessions",
			"old_subject", prev.Subject, "new_subject", cred.Subject)
		if s.sessions != nil {
			if err := s.sessions.ClearAll(ctx); err != nil {
				return fmt.Errorf("invalidate sessions on identity change: %w", err)
			}
		}
	}

	if err := s.repo.PutCredential(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	s.cred = cred
	s.loaded = true
	return nil
}

// Token returns the active bearer token, loading it from durable storage on
// first access. Returns "" when no credential exists anywhere.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.currentLocked(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}
	return cred.Token, nil
}

// Credential returns the active credential, or nil when none exists.
func (s *Store) Credential(ctx context.Context) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(ctx)
}

// currentLocked is the read-through load. Callers hold s.mu.
func (s *Store) currentLocked(ctx context.Context) (*domain.Credential, error) {
	if s.loaded {
		return s.cred, nil
	}
	cred, err := s.repo.GetCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	s.cred = cred
	s.loaded = true
	return cred, nil
}

// Clear removes the credential from memory and durable storage.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteCredential(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.cred = nil
	s.loaded = true
	return nil
}
