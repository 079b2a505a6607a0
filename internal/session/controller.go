// Package session implements the lifecycle of a reflective-prompt session:
// NotStarted -> InProgress -> {Completed, Cancelled}, with a 0..12 prompt
// cursor while in progress. The backend owns sequencing; the controller
// mirrors whatever the backend reports back.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dramarama/companion/internal/backend"
	"github.com/dramarama/companion/internal/domain"
	"github.com/dramarama/companion/internal/registry"
)

// ErrSessionComplete rejects a response submitted to an already completed
// session; completed sessions only move through completion or cancellation.
var ErrSessionComplete = errors.New("session already complete")

// ErrUnknownSession is returned for a session ID with no local mirror.
var ErrUnknownSession = errors.New("no session found for that id")

// ErrNotComplete rejects a hint request before all prompts are answered.
var ErrNotComplete = errors.New("session is not complete yet")

// TokenSource supplies the bearer token attached to hint stream handles.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HintFetcher turns a stream handle into accumulated hint text.
type HintFetcher interface {
	FetchHint(ctx context.Context, sseURL, token string) (string, error)
}

// StreamHandle is everything a caller needs to consume a hint stream itself:
// the SSE endpoint plus the token, passable as either an Authorization header
// or a ?token= query parameter where headers cannot be set.
type StreamHandle struct {
	SSEURL string `json:"sseUrl"`
	Token  string `json:"token"`
}

// Controller drives session state transitions against the backend and keeps
// the local registry mirror in sync.
type Controller struct {
	backend  *backend.Client
	registry *registry.Registry
	tokens   TokenSource
	hints    HintFetcher
}

// NewController wires a lifecycle controller.
func NewController(client *backend.Client, reg *registry.Registry, tokens TokenSource, hints HintFetcher) *Controller {
	return &Controller{
		backend:  client,
		registry: reg,
		tokens:   tokens,
		hints:    hints,
	}
}

// Start creates a session for the given problem and makes it current. The
// backend resumes an existing active session for the same URL, so the mirror
// starts at whatever cursor the backend reports. On backend failure nothing
// changes locally.
func (c *Controller) Start(ctx context.Context, algorithmTitle, algorithmURL string) (*domain.Session, error) {
	result, err := c.backend.StartSession(ctx, algorithmTitle, algorithmURL)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:                 result.SessionID,
		AlgorithmTitle:     result.AlgorithmTitle,
		AlgorithmURL:       algorithmURL,
		CurrentPromptIndex: result.CurrentPromptIndex,
		CurrentPrompt:      result.CurrentPrompt,
		Responses:          []domain.RecordedResponse{},
		SessionComplete:    result.CurrentPromptIndex >= domain.TotalPrompts,
	}

	if err := c.registry.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("mirror started session: %w", err)
	}
	if err := c.registry.SetCurrent(ctx, algorithmURL); err != nil {
		return nil, fmt.Errorf("set current session: %w", err)
	}

	slog.Info("session started",
		"session_id", session.ID,
		"algorithm_url", algorithmURL,
		"prompt_index", session.CurrentPromptIndex,
	)
	return session, nil
}

// SubmitResponse forwards one response to the backend and advances the local
// mirror to the backend-reported state. The prompt index is sent as given
// even when it does not match the local cursor. An expired credential is
// surfaced as backend.TokenExpiredError so callers can re-authenticate
// without restarting the session.
func (c *Controller) SubmitResponse(ctx context.Context, sessionID string, promptIndex int, responseText string, timeSpentSeconds int) (*backend.RespondResult, error) {
	session, err := c.registry.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil && session.SessionComplete {
		return nil, ErrSessionComplete
	}

	result, err := c.backend.SubmitResponse(ctx, sessionID, promptIndex, responseText, timeSpentSeconds)
	if err != nil {
		return nil, err
	}

	if session != nil {
		session.RecordResponse(domain.RecordedResponse{
			PromptIndex:      promptIndex,
			ResponseText:     responseText,
			TimeSpentSeconds: timeSpentSeconds,
		}, result.PromptsCompleted, result.NextPrompt, result.SessionComplete)

		if err := c.registry.Put(ctx, session); err != nil {
			// The backend accepted the response; a stale mirror only affects
			// UI freshness, so log and return the backend's answer.
			slog.Warn("could not persist session mirror", "session_id", sessionID, "error", err)
		}
	}

	return result, nil
}

// RequestHint returns a stream handle for a completed session's hint. Hint
// transport is decoupled: the caller feeds the handle to an SSE aggregator
// or asks the worker to fetch via FetchHintText.
func (c *Controller) RequestHint(ctx context.Context, sessionID string) (*StreamHandle, error) {
	session, err := c.registry.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrUnknownSession
	}
	if !session.SessionComplete && session.CurrentPromptIndex < domain.TotalPrompts {
		return nil, ErrNotComplete
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return nil, backend.ErrNotAuthenticated
	}

	return &StreamHandle{
		SSEURL: c.backend.HintStreamURL(sessionID),
		Token:  token,
	}, nil
}

// FetchHintText fetches the hint through the worker: the stream handle fed
// through the SSE aggregator, with a non-streaming retry when the streaming
// channel fails.
func (c *Controller) FetchHintText(ctx context.Context, sessionID string) (string, error) {
	handle, err := c.RequestHint(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return c.hints.FetchHint(ctx, handle.SSEURL, handle.Token)
}

// Complete persists completion server-side. Completion is best-effort: the
// local session is cleared from the registry whether or not the server call
// succeeds, and a server failure is still returned for diagnostics.
func (c *Controller) Complete(ctx context.Context, sessionID string) (map[string]any, error) {
	result, serverErr := c.backend.CompleteSession(ctx, sessionID)
	if serverErr != nil {
		slog.Warn("server-side completion failed, clearing local session anyway",
			"session_id", sessionID, "error", serverErr)
	}

	c.clearMirror(ctx, sessionID)
	return result, serverErr
}

// Cancel requests server-side abandonment. Regardless of the server outcome
// the session is removed from the registry and the lifecycle returns to
// NotStarted. Caller policy requires explicit user confirmation first.
func (c *Controller) Cancel(ctx context.Context, sessionID, reason string) (map[string]any, error) {
	result, serverErr := c.backend.CancelSession(ctx, sessionID, reason)
	if serverErr != nil {
		slog.Warn("server-side cancellation failed, clearing local session anyway",
			"session_id", sessionID, "error", serverErr)
	}

	c.clearMirror(ctx, sessionID)
	return result, serverErr
}

// Reset discards the current-session pointer without contacting the backend
// or touching the registry map. Used when the user abandons the UI without
// cancelling.
func (c *Controller) Reset(ctx context.Context) error {
	return c.registry.ClearCurrent(ctx)
}

// clearMirror removes a session's registry entry and, when it was current,
// the current pointer. Failures here are logged, not surfaced: terminal
// cleanup must not block the user.
func (c *Controller) clearMirror(ctx context.Context, sessionID string) {
	session, err := c.registry.FindByID(ctx, sessionID)
	if err != nil {
		slog.Warn("could not look up session for cleanup", "session_id", sessionID, "error", err)
		return
	}
	if session == nil {
		return
	}
	if err := c.registry.Remove(ctx, session.AlgorithmURL); err != nil {
		slog.Warn("could not remove session mirror", "session_id", sessionID, "error", err)
	}
}
