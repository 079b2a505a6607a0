package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dramarama/companion/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "companion.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCredentialRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	cred, err := repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred != nil {
		t.Fatalf("Expected no credential in fresh store, got %+v", cred)
	}

	want := &domain.Credential{Token: "tok-1", Subject: "auth0|u1", Email: "u1@example.com"}
	if err := repo.PutCredential(ctx, want); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}

	cred, err = repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred == nil || cred.Token != "tok-1" || cred.Subject != "auth0|u1" || cred.Email != "u1@example.com" {
		t.Errorf("Credential round-trip mismatch: %+v", cred)
	}

	// Single-row table: a second put replaces, never appends.
	if err := repo.PutCredential(ctx, &domain.Credential{Token: "tok-2", Subject: "auth0|u2"}); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}
	cred, err = repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred.Token != "tok-2" || cred.Subject != "auth0|u2" || cred.Email != "" {
		t.Errorf("Expected replaced credential, got %+v", cred)
	}

	if err := repo.DeleteCredential(ctx); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	cred, err = repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred != nil {
		t.Errorf("Expected credential deleted, got %+v", cred)
	}
}

func TestCredentialWithoutIdentity(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	// A malformed token yields no decoded identity; subject/email stay NULL.
	if err := repo.PutCredential(ctx, &domain.Credential{Token: "opaque"}); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}
	cred, err := repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred.Token != "opaque" || cred.Subject != "" || cred.Email != "" {
		t.Errorf("Unexpected credential: %+v", cred)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session := &domain.Session{
		ID:                 "sess-1",
		AlgorithmTitle:     "Two Sum",
		AlgorithmURL:       "https://leetcode.com/problems/two-sum",
		CurrentPromptIndex: 3,
		Responses: []domain.RecordedResponse{
			{PromptIndex: 0, ResponseText: "It asks for indices.", TimeSpentSeconds: 40},
		},
	}
	if err := repo.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, session.AlgorithmURL)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.ID != "sess-1" || got.CurrentPromptIndex != 3 || len(got.Responses) != 1 {
		t.Errorf("Session round-trip mismatch: %+v", got)
	}

	missing, err := repo.GetSession(ctx, "https://leetcode.com/problems/other")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown URL, got %+v", missing)
	}
}

func TestUpsertReplacesByProblemURL(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	url := "https://leetcode.com/problems/two-sum"

	if err := repo.UpsertSession(ctx, &domain.Session{ID: "old", AlgorithmURL: url}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if err := repo.UpsertSession(ctx, &domain.Session{ID: "new", AlgorithmURL: url}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected one session per problem URL, got %d", len(sessions))
	}
	if sessions[0].ID != "new" {
		t.Errorf("Expected last writer to win, got %q", sessions[0].ID)
	}
}

func TestDeleteAndClearSessions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		session := &domain.Session{ID: id, AlgorithmURL: "https://leetcode.com/problems/" + id}
		if err := repo.UpsertSession(ctx, session); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
	}

	if err := repo.DeleteSession(ctx, "https://leetcode.com/problems/b"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions after delete, got %d", len(sessions))
	}

	if err := repo.ClearSessions(ctx); err != nil {
		t.Fatalf("ClearSessions failed: %v", err)
	}
	sessions, err = repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected empty store after clear, got %d sessions", len(sessions))
	}
}

func TestWorkerStateRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	value, err := repo.GetState(ctx, StateCurrentSessionURL)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if value != "" {
		t.Fatalf("Expected empty value for unset key, got %q", value)
	}

	if err := repo.SetState(ctx, StateCurrentSessionURL, "https://leetcode.com/problems/two-sum"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := repo.SetState(ctx, StateCurrentSessionURL, "https://leetcode.com/problems/lru-cache"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	value, err = repo.GetState(ctx, StateCurrentSessionURL)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if value != "https://leetcode.com/problems/lru-cache" {
		t.Errorf("Expected overwritten value, got %q", value)
	}

	if err := repo.DeleteState(ctx, StateCurrentSessionURL); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}
	value, err = repo.GetState(ctx, StateCurrentSessionURL)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if value != "" {
		t.Errorf("Expected deleted key to read empty, got %q", value)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "companion.db")
	ctx := context.Background()

	repo, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	session := &domain.Session{ID: "sess-1", AlgorithmURL: "https://leetcode.com/problems/two-sum", CurrentPromptIndex: 5}
	if err := repo.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession(ctx, session.AlgorithmURL)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.CurrentPromptIndex != 5 {
		t.Errorf("Expected session to survive reopen, got %+v", got)
	}
}
