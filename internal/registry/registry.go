// Package registry tracks at most one live session per problem URL, mirrored
// in memory and persisted after every mutation so a restarted worker can
// reconstruct the map.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dramarama/companion/internal/domain"
	"github.com/dramarama/companion/internal/store"
)

// Registry is the per-problem session map plus the current-session pointer.
// The in-memory map is a best-effort read-through cache over the repository;
// concurrent writers to the same key are last-writer-wins.
type Registry struct {
	repo store.Repository

	mu            sync.Mutex
	sessions      map[string]*domain.Session
	loaded        bool
	currentURL    string
	currentLoaded bool
}

// New creates a registry backed by the repository.
func New(repo store.Repository) *Registry {
	return &Registry{
		repo:     repo,
		sessions: make(map[string]*domain.Session),
	}
}

// GetForProblem returns the session for a problem URL only if one exists and
// is not complete or cancelled. URL matching is exact and case-sensitive.
func (r *Registry) GetForProblem(ctx context.Context, algorithmURL string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	session := r.sessions[algorithmURL]
	if !session.Live() {
		return nil, nil
	}
	return session, nil
}

// CheckActive reports whether an in-progress session (not complete, at least
// one prompt answered) exists for the URL, without promoting it to current.
func (r *Registry) CheckActive(ctx context.Context, algorithmURL string) (*domain.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	session := r.sessions[algorithmURL]
	if !session.InProgress() {
		return nil, false, nil
	}
	return session, true, nil
}

// Put upserts the session keyed by its problem URL, replacing any existing
// entry (last-writer-wins, no merge).
func (r *Registry) Put(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if err := r.repo.UpsertSession(ctx, session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	r.sessions[session.AlgorithmURL] = session
	return nil
}

// Remove deletes the entry for a problem URL.
func (r *Registry) Remove(ctx context.Context, algorithmURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if err := r.repo.DeleteSession(ctx, algorithmURL); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	delete(r.sessions, algorithmURL)
	if r.currentURL == algorithmURL {
		if err := r.clearCurrentLocked(ctx); err != nil {
			slog.Warn("could not clear current pointer with removed session", "error", err)
		}
	}
	return nil
}

// ClearAll empties the registry and the current pointer. Used on identity
// change and logout.
func (r *Registry) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.ClearSessions(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	r.sessions = make(map[string]*domain.Session)
	r.loaded = true
	return r.clearCurrentLocked(ctx)
}

// FindByID returns the session with the given backend-assigned identifier,
// or nil when no mirror for it exists.
func (r *Registry) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	for _, session := range r.sessions {
		if session.ID == sessionID {
			return session, nil
		}
	}
	return nil, nil
}

// Current resolves the current-session pointer, or nil when unset or the
// pointed-at session no longer exists.
func (r *Registry) Current(ctx context.Context) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	if err := r.loadCurrentLocked(ctx); err != nil {
		return nil, err
	}
	if r.currentURL == "" {
		return nil, nil
	}
	return r.sessions[r.currentURL], nil
}

// SetCurrent marks the session for a problem URL as current.
func (r *Registry) SetCurrent(ctx context.Context, algorithmURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.SetState(ctx, store.StateCurrentSessionURL, algorithmURL); err != nil {
		return fmt.Errorf("persist current pointer: %w", err)
	}
	r.currentURL = algorithmURL
	r.currentLoaded = true
	return nil
}

// ClearCurrent discards the current-session pointer without touching the map.
func (r *Registry) ClearCurrent(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearCurrentLocked(ctx)
}

func (r *Registry) clearCurrentLocked(ctx context.Context) error {
	if err := r.repo.DeleteState(ctx, store.StateCurrentSessionURL); err != nil {
		return fmt.Errorf("clear current pointer: %w", err)
	}
	r.currentURL = ""
	r.currentLoaded = true
	return nil
}

// loadLocked reconstructs the in-memory map from durable storage on first
// access after a worker start.
func (r *Registry) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	sessions, err := r.repo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("restore session registry: %w", err)
	}
	for _, session := range sessions {
		r.sessions[session.AlgorithmURL] = session
	}
	r.loaded = true
	if len(sessions) > 0 {
		slog.Info("session registry restored", "sessions", len(sessions))
	}
	return nil
}

func (r *Registry) loadCurrentLocked(ctx context.Context) error {
	if r.currentLoaded {
		return nil
	}
	url, err := r.repo.GetState(ctx, store.StateCurrentSessionURL)
	if err != nil {
		return fmt.Errorf("restore current pointer: %w", err)
	}
	r.currentURL = url
	r.currentLoaded = true
	return nil
}
