// Package storetest provides an in-memory Repository for tests.
package storetest

import (
	"context"
	"sync"

	"github.com/dramarama/companion/internal/domain"
)

// Repo is an in-memory store.Repository. Error fields, when set, are
// returned by the corresponding operation to exercise failure paths.
type Repo struct {
	mu       sync.Mutex
	cred     *domain.Credential
	sessions map[string]*domain.Session
	state    map[string]string

	ClearSessionsErr error
	UpsertErr        error
}

// New creates an empty in-memory repository.
func New() *Repo {
	return &Repo{
		sessions: make(map[string]*domain.Session),
		state:    make(map[string]string),
	}
}

func (r *Repo) GetCredential(_ context.Context) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return nil, nil
	}
	cred := *r.cred
	return &cred, nil
}

func (r *Repo) PutCredential(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cred
	r.cred = &c
	return nil
}

func (r *Repo) DeleteCredential(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cred = nil
	return nil
}

func (r *Repo) GetSession(_ context.Context, algorithmURL string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[algorithmURL], nil
}

func (r *Repo) UpsertSession(_ context.Context, session *domain.Session) error {
	if r.UpsertErr != nil {
		return r.UpsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.AlgorithmURL] = session
	return nil
}

func (r *Repo) DeleteSession(_ context.Context, algorithmURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, algorithmURL)
	return nil
}

func (r *Repo) ListSessions(_ context.Context) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *Repo) ClearSessions(_ context.Context) error {
	if r.ClearSessionsErr != nil {
		return r.ClearSessionsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*domain.Session)
	return nil
}

func (r *Repo) GetState(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[key], nil
}

func (r *Repo) SetState(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[key] = value
	return nil
}

func (r *Repo) DeleteState(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, key)
	return nil
}

func (r *Repo) Ping(_ context.Context) error { return nil }
func (r *Repo) Close() error                 { return nil }

// SessionCount reports how many sessions are persisted.
func (r *Repo) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
