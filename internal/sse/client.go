package sse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client fetches a hint as text: SSE streaming first, plain fetch second.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a hint fetch client. The HTTP client must not carry a
// short timeout: hint streams stay open while the model generates.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// FetchHint retrieves the hint text for a stream handle. The primary path
// streams the SSE endpoint and aggregates it; when the streaming channel
// fails outright, a non-streaming fetch of the same endpoint is tried before
// reporting failure.
func (c *Client) FetchHint(ctx context.Context, sseURL, token string) (string, error) {
	text, err := c.streamOnce(ctx, sseURL, token)
	if err == nil {
		return text, nil
	}

	slog.Warn("hint stream failed, retrying with plain fetch", "error", err)
	text, plainErr := c.fetchPlain(ctx, sseURL, token)
	if plainErr != nil {
		return "", fmt.Errorf("hint stream failed (%v) and fallback fetch failed: %w", err, plainErr)
	}
	return text, nil
}

func (c *Client) streamOnce(ctx context.Context, sseURL, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		return "", fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open hint stream: %w", err)
	}
	// Closing the body tears the stream down once [DONE] or an error ends
	// aggregation, so the connection never leaks.
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("hint stream returned status %d", resp.StatusCode)
	}

	text, err := Aggregate(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read hint stream: %w", err)
	}
	return text, nil
}

func (c *Client) fetchPlain(ctx context.Context, sseURL, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		return "", fmt.Errorf("build fallback request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fallback fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fallback fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read fallback body: %w", err)
	}

	text := string(body)
	// The fallback may still answer with SSE framing; reduce it if so.
	if strings.Contains(text, "data:") {
		reduced, aggErr := Aggregate(strings.NewReader(text))
		if aggErr == nil && reduced != "" {
			return reduced, nil
		}
	}
	return strings.TrimSpace(text), nil
}
