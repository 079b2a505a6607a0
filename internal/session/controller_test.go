package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dramarama/companion/internal/backend"
	"github.com/dramarama/companion/internal/domain"
	"github.com/dramarama/companion/internal/registry"
	"github.com/dramarama/companion/internal/store/storetest"
)

const problemURL = "https://leetcode.com/problems/two-sum"

type staticTokens struct {
	token string
}

func (s staticTokens) Token(_ context.Context) (string, error) { return s.token, nil }

type staticHints struct {
	text string
	err  error
}

func (s staticHints) FetchHint(_ context.Context, _, _ string) (string, error) {
	return s.text, s.err
}

// testHarness bundles a controller wired against a scripted backend.
type testHarness struct {
	controller *Controller
	registry   *registry.Registry
	srv        *httptest.Server
	requests   *int
}

func newHarness(t *testing.T, handler http.HandlerFunc) *testHarness {
	t.Helper()
	requests := 0
	counting := func(w http.ResponseWriter, r *http.Request) {
		requests++
		handler(w, r)
	}
	srv := httptest.NewServer(http.HandlerFunc(counting))
	t.Cleanup(srv.Close)

	repo := storetest.New()
	reg := registry.New(repo)
	client := backend.NewClient(srv.URL, staticTokens{token: "tok"})
	controller := NewController(client, reg, staticTokens{token: "tok"}, staticHints{text: "nudge"})
	return &testHarness{controller: controller, registry: reg, srv: srv, requests: &requests}
}

func writeStart(w http.ResponseWriter, sessionID string, cursor int) {
	json.NewEncoder(w).Encode(map[string]any{
		"session_id":           sessionID,
		"algorithm_title":      "Two Sum",
		"current_prompt_index": cursor,
		"current_prompt": map[string]any{
			"element":     "earth",
			"sub_element": "1.0",
			"prompt":      "What is really being asked?",
		},
	})
}

func writeRespond(w http.ResponseWriter, completed int, complete bool) {
	resp := map[string]any{
		"success":           true,
		"prompts_completed": completed,
		"session_complete":  complete,
	}
	if !complete {
		resp["next_prompt"] = map[string]any{
			"element":     "fire",
			"sub_element": "2.0",
			"prompt":      "What would a brute force look like?",
		}
	}
	json.NewEncoder(w).Encode(resp)
}

func TestStartMirrorsBackendSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		writeStart(w, "sess-1", 0)
	})

	ctx := context.Background()
	sess, err := h.controller.Start(ctx, "Two Sum", problemURL)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.ID != "sess-1" || sess.CurrentPromptIndex != 0 || sess.SessionComplete {
		t.Errorf("Unexpected session: %+v", sess)
	}

	mirrored, err := h.registry.GetForProblem(ctx, problemURL)
	if err != nil {
		t.Fatalf("GetForProblem failed: %v", err)
	}
	if mirrored == nil || mirrored.ID != "sess-1" {
		t.Errorf("Expected mirrored session, got %+v", mirrored)
	}
	current, err := h.registry.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current == nil || current.ID != "sess-1" {
		t.Errorf("Expected session promoted to current, got %+v", current)
	}
}

func TestStartResumesExistingBackendSession(t *testing.T) {
	// The backend answers a start for a problem that already has an active
	// session with that session's cursor, not zero.
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		writeStart(w, "sess-old", 7)
	})

	sess, err := h.controller.Start(context.Background(), "Two Sum", problemURL)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.CurrentPromptIndex != 7 {
		t.Errorf("Expected resumed cursor 7, got %d", sess.CurrentPromptIndex)
	}
}

func TestStartBackendFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad request"})
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err == nil {
		t.Fatal("Expected error from backend failure")
	}

	mirrored, err := h.registry.GetForProblem(ctx, problemURL)
	if err != nil {
		t.Fatalf("GetForProblem failed: %v", err)
	}
	if mirrored != nil {
		t.Errorf("Failed start must not mirror anything, got %+v", mirrored)
	}
}

func TestSubmitResponseCursorMonotonic(t *testing.T) {
	completed := 0
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/start":
			writeStart(w, "sess-1", 0)
		case "/session/respond":
			writeRespond(w, completed, false)
		}
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Three successful submits with increasing backend counts.
	for i := 0; i < 3; i++ {
		completed = i + 1
		if _, err := h.controller.SubmitResponse(ctx, "sess-1", i, "a long enough reflective answer", 30); err != nil {
			t.Fatalf("SubmitResponse %d failed: %v", i, err)
		}
	}

	sess, err := h.registry.FindByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if sess.CurrentPromptIndex != 3 {
		t.Fatalf("Expected cursor 3, got %d", sess.CurrentPromptIndex)
	}

	// A stale backend answer (race loser) must not move the cursor back.
	completed = 2
	if _, err := h.controller.SubmitResponse(ctx, "sess-1", 3, "another answer", 30); err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	sess, err = h.registry.FindByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if sess.CurrentPromptIndex != 3 {
		t.Errorf("Cursor must never decrease, got %d", sess.CurrentPromptIndex)
	}
	if len(sess.Responses) != 4 {
		t.Errorf("Expected 4 recorded responses, got %d", len(sess.Responses))
	}
}

func TestCompletedSessionRejectsFurtherSubmits(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/start":
			writeStart(w, "sess-1", 0)
		case "/session/respond":
			writeRespond(w, domain.TotalPrompts, true)
		}
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := h.controller.SubmitResponse(ctx, "sess-1", 11, "final answer", 30)
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if !result.SessionComplete {
		t.Fatal("Expected completion reported")
	}

	before := *h.requests
	_, err = h.controller.SubmitResponse(ctx, "sess-1", 12, "one more", 30)
	if !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("Expected ErrSessionComplete, got %v", err)
	}
	if *h.requests != before {
		t.Error("A completed session must not generate backend traffic")
	}
}

func TestSubmitExpiredTokenIsDistinct(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/start":
			writeStart(w, "sess-1", 0)
		case "/session/respond":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Token expired"})
		}
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := h.controller.SubmitResponse(ctx, "sess-1", 0, "answer", 30)
	if !backend.IsTokenExpired(err) {
		t.Fatalf("Expected distinct token-expired category, got %v", err)
	}

	// Failed submit leaves the mirror untouched.
	sess, lookupErr := h.registry.FindByID(ctx, "sess-1")
	if lookupErr != nil {
		t.Fatalf("FindByID failed: %v", lookupErr)
	}
	if sess.CurrentPromptIndex != 0 || len(sess.Responses) != 0 {
		t.Errorf("Mirror changed on failed submit: %+v", sess)
	}
}

func TestRequestHintRequiresCompletion(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		writeStart(w, "sess-1", 0)
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := h.controller.RequestHint(ctx, "sess-1"); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("Expected ErrNotComplete, got %v", err)
	}
	if _, err := h.controller.RequestHint(ctx, "missing"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Expected ErrUnknownSession, got %v", err)
	}
}

func TestRequestHintReturnsStreamHandle(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/start":
			writeStart(w, "sess-1", 0)
		case "/session/respond":
			writeRespond(w, domain.TotalPrompts, true)
		}
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := h.controller.SubmitResponse(ctx, "sess-1", 11, "final", 30); err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}

	handle, err := h.controller.RequestHint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("RequestHint failed: %v", err)
	}
	if handle.Token != "tok" {
		t.Errorf("Expected token on handle, got %q", handle.Token)
	}
	want := h.srv.URL + "/session/sess-1/analyze"
	if handle.SSEURL != want {
		t.Errorf("Expected stream URL %q, got %q", want, handle.SSEURL)
	}

	text, err := h.controller.FetchHintText(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FetchHintText failed: %v", err)
	}
	if text != "nudge" {
		t.Errorf("Expected fetched hint text, got %q", text)
	}
}

func TestCompleteClearsLocallyDespiteServerFailure(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/start":
			writeStart(w, "sess-1", 0)
		case "/session/complete":
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"detail": "storage down"})
		}
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := h.controller.Complete(ctx, "sess-1")
	if err == nil {
		t.Fatal("Expected server failure reported for diagnostics")
	}

	// Local cleanup proceeds regardless.
	sess, lookupErr := h.registry.GetForProblem(ctx, problemURL)
	if lookupErr != nil {
		t.Fatalf("GetForProblem failed: %v", lookupErr)
	}
	if sess != nil {
		t.Errorf("Expected session cleared after complete, got %+v", sess)
	}
}

func TestCancelCleansUpOnSuccessAndFailure(t *testing.T) {
	for _, serverFails := range []bool{false, true} {
		h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/session/start":
				writeStart(w, "sess-1", 0)
			case "/session/cancel":
				if serverFails {
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{"detail": "down"})
					return
				}
				json.NewEncoder(w).Encode(map[string]any{"success": true})
			}
		})

		ctx := context.Background()
		if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		_, err := h.controller.Cancel(ctx, "sess-1", "changed my mind")
		if serverFails && err == nil {
			t.Error("Expected server failure surfaced")
		}
		if !serverFails && err != nil {
			t.Errorf("Cancel failed: %v", err)
		}

		sess, lookupErr := h.registry.GetForProblem(ctx, problemURL)
		if lookupErr != nil {
			t.Fatalf("GetForProblem failed: %v", lookupErr)
		}
		if sess != nil {
			t.Errorf("serverFails=%v: expected no session after cancel, got %+v", serverFails, sess)
		}
		current, currErr := h.registry.Current(ctx)
		if currErr != nil {
			t.Fatalf("Current failed: %v", currErr)
		}
		if current != nil {
			t.Errorf("serverFails=%v: expected no current session after cancel", serverFails)
		}
	}
}

func TestResetDropsPointerOnly(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		writeStart(w, "sess-1", 0)
	})

	ctx := context.Background()
	if _, err := h.controller.Start(ctx, "Two Sum", problemURL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	before := *h.requests
	if err := h.controller.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if *h.requests != before {
		t.Error("Reset must not contact the backend")
	}

	current, err := h.registry.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current != nil {
		t.Errorf("Expected no current session after reset, got %+v", current)
	}
	// The registry entry itself survives a reset.
	sess, err := h.registry.GetForProblem(ctx, problemURL)
	if err != nil {
		t.Fatalf("GetForProblem failed: %v", err)
	}
	if sess == nil {
		t.Error("Reset must not touch the registry map")
	}
}
