// Package backend wraps the DramaRama REST/SSE API. The backend is an
// external collaborator: this client mirrors its contract and owns the
// error taxonomy for everything that can go wrong talking to it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dramarama/companion/internal/domain"
)

// TokenSource supplies the active bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the session backend.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource

	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a backend client rooted at baseURL, e.g.
// "http://localhost:8000/api".
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewClientWithHTTPClient creates a backend client with a custom HTTP client,
// used by tests.
func NewClientWithHTTPClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	c := NewClient(baseURL, tokens)
	c.httpClient = httpClient
	return c
}

// BaseURL returns the current API base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL rewires the API base at runtime (HQ handoff).
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// StartResult is the backend's answer to a session start.
type StartResult struct {
	SessionID          string         `json:"session_id"`
	AlgorithmTitle     string         `json:"algorithm_title"`
	CurrentPromptIndex int            `json:"current_prompt_index"`
	CurrentPrompt      *domain.Prompt `json:"current_prompt"`
}

// RespondResult is the backend's answer to a submitted response.
type RespondResult struct {
	Success          bool           `json:"success"`
	PromptsCompleted int            `json:"prompts_completed"`
	NextPrompt       *domain.Prompt `json:"next_prompt"`
	SessionComplete  bool           `json:"session_complete"`
}

// StartSession creates (or resumes) a session for the given problem.
func (c *Client) StartSession(ctx context.Context, algorithmTitle, algorithmURL string) (*StartResult, error) {
	body := map[string]string{
		"algorithm_title": algorithmTitle,
		"algorithm_url":   algorithmURL,
	}
	var result StartResult
	if err := c.post(ctx, "/session/start", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitResponse forwards one prompt response. The prompt index is sent as
// given; the backend owns sequencing.
func (c *Client) SubmitResponse(ctx context.Context, sessionID string, promptIndex int, responseText string, timeSpentSeconds int) (*RespondResult, error) {
	body := map[string]any{
		"session_id":         sessionID,
		"prompt_index":       promptIndex,
		"response_text":      responseText,
		"time_spent_seconds": timeSpentSeconds,
	}
	var result RespondResult
	if err := c.post(ctx, "/session/respond", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteSession persists completion server-side.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (map[string]any, error) {
	body := map[string]string{"session_id": sessionID}
	var result map[string]any
	if err := c.post(ctx, "/session/complete", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelSession requests server-side abandonment.
func (c *Client) CancelSession(ctx context.Context, sessionID, reason string) (map[string]any, error) {
	body := map[string]string{"session_id": sessionID, "reason": reason}
	var result map[string]any
	if err := c.post(ctx, "/session/cancel", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// HintStreamURL builds the SSE endpoint for a completed session's hint.
func (c *Client) HintStreamURL(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/analyze", c.BaseURL(), sessionID)
}

func (c *Client) post(ctx context.Context, endpoint string, body, result any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return ErrNotAuthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readDetail(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			return &TokenExpiredError{Detail: detail}
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readDetail extracts the backend's structured {"detail": ...} message; an
// empty string makes the error types fall back to their generic text.
func readDetail(resp *http.Response) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}
