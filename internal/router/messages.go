// Package router dispatches typed requests from UI surfaces (popup, injected
// panel, tabs) to the worker's components and returns a JSON-serializable
// result or an error payload. Nothing ever panics across this boundary.
package router

import (
	"github.com/dramarama/companion/internal/domain"
)

// Message types accepted by the dispatcher.
const (
	TypeSetAuthToken         = "SET_AUTH_TOKEN"
	TypeGetAuthToken         = "GET_AUTH_TOKEN"
	TypeGetUser              = "GET_USER"
	TypeHandoffURL           = "HANDOFF_URL"
	TypeSetConfig            = "SET_CONFIG"
	TypeStartSession         = "START_SESSION"
	TypeSubmitResponse       = "SUBMIT_RESPONSE"
	TypeGetHint              = "GET_HINT"
	TypeFetchHintText        = "FETCH_HINT_TEXT"
	TypeCompleteSession      = "COMPLETE_SESSION"
	TypeCancelSession        = "CANCEL_SESSION"
	TypeGetCurrentSession    = "GET_CURRENT_SESSION"
	TypeGetSessionForProblem = "GET_SESSION_FOR_PROBLEM"
	TypeCheckActiveSession   = "CHECK_ACTIVE_SESSION_FOR_PROBLEM"
	TypeClearSession         = "CLEAR_SESSION"
	TypeLogout               = "LOGOUT"
)

// Error codes distinguishing failure categories the UI treats differently.
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeAuthExpired      = "AUTH_EXPIRED"
	CodeConnectivity     = "CONNECTIVITY"
	CodeUnknownType      = "UNKNOWN_MESSAGE_TYPE"
)

// Request is the discriminated request union: a type tag plus the payload
// fields the tagged operation reads.
type Request struct {
	Type string `json:"type"`

	// SET_AUTH_TOKEN
	Token string `json:"token,omitempty"`

	// HANDOFF_URL
	URL string `json:"url,omitempty"`

	// SET_CONFIG
	APIBaseURL      string `json:"apiBaseUrl,omitempty"`
	FrontendBaseURL string `json:"frontendBaseUrl,omitempty"`

	// START_SESSION
	AlgorithmTitle string `json:"algorithmTitle,omitempty"`
	AlgorithmURL   string `json:"algorithmUrl,omitempty"`

	// SUBMIT_RESPONSE / GET_HINT / FETCH_HINT_TEXT / COMPLETE_SESSION / CANCEL_SESSION
	SessionID        string `json:"sessionId,omitempty"`
	PromptIndex      int    `json:"promptIndex,omitempty"`
	ResponseText     string `json:"responseText,omitempty"`
	TimeSpentSeconds int    `json:"timeSpentSeconds,omitempty"`
	Reason           string `json:"reason,omitempty"`

	// GET_SESSION_FOR_PROBLEM / CHECK_ACTIVE_SESSION_FOR_PROBLEM
	ProblemURL string `json:"problemUrl,omitempty"`
}

// ErrorResult is the normalized failure payload. A human-readable Error is
// always present; Code marks the categories callers remedy differently.
type ErrorResult struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResult acknowledges an operation with no other payload.
type SuccessResult struct {
	Success bool `json:"success"`
}

// HandoffResult reports whether a surface-supplied URL carried a login
// handoff. When it did, CleanURL is the URL with the handoff parameters
// stripped for the surface to replace in place.
type HandoffResult struct {
	Handled  bool   `json:"handled"`
	CleanURL string `json:"cleanUrl,omitempty"`
}

// TokenResult carries the stored bearer token, empty when none.
type TokenResult struct {
	Token string `json:"token"`
}

// UserResult describes the logged-in identity as far as the stored token
// reveals it. The fields are display hints, not authorization.
type UserResult struct {
	LoggedIn    bool   `json:"loggedIn"`
	Subject     string `json:"subject,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// StartResult carries the freshly mirrored session.
type StartResult struct {
	Success bool            `json:"success"`
	Session *domain.Session `json:"session"`
}

// SubmitResult mirrors the backend's answer to a submitted response.
type SubmitResult struct {
	Success          bool           `json:"success"`
	PromptsCompleted int            `json:"promptsCompleted"`
	NextPrompt       *domain.Prompt `json:"nextPrompt"`
	SessionComplete  bool           `json:"sessionComplete"`
}

// HintHandleResult carries a hint stream handle for caller-side streaming.
type HintHandleResult struct {
	Success bool   `json:"success"`
	SSEURL  string `json:"sseUrl"`
	Token   string `json:"token"`
}

// HintTextResult carries worker-fetched hint text.
type HintTextResult struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// OutcomeResult carries the backend's raw answer to complete/cancel calls.
type OutcomeResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
}

// SessionResult carries a session lookup; Session is null when none exists.
type SessionResult struct {
	Session *domain.Session `json:"session"`
}

// ActiveSessionResult answers an active-session check without promoting the
// session to current.
type ActiveSessionResult struct {
	HasActiveSession bool            `json:"hasActiveSession"`
	Session          *domain.Session `json:"session,omitempty"`
}
