package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dramarama/companion/internal/auth"
	"github.com/dramarama/companion/internal/backend"
	"github.com/dramarama/companion/internal/registry"
	"github.com/dramarama/companion/internal/session"
	"github.com/dramarama/companion/internal/store"
)

// Dispatcher routes requests to the token store, the session registry, and
// the lifecycle controller. It is constructed once per worker instance with
// its dependencies injected, so it carries no ambient state of its own.
type Dispatcher struct {
	tokens     *auth.Store
	controller *session.Controller
	registry   *registry.Registry
	backend    *backend.Client
	repo       store.Repository
}

// NewDispatcher wires a message dispatcher.
func NewDispatcher(tokens *auth.Store, controller *session.Controller, reg *registry.Registry, client *backend.Client, repo store.Repository) *Dispatcher {
	return &Dispatcher{
		tokens:     tokens,
		controller: controller,
		registry:   reg,
		backend:    client,
		repo:       repo,
	}
}

// Dispatch executes one request and returns its result. Every failure is
// normalized into an ErrorResult; the response is not produced until the
// operation has fully resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (result any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher panic recovered", "type", req.Type, "panic", r)
			result = ErrorResult{Error: fmt.Sprintf("internal error handling %s", req.Type)}
		}
	}()

	switch req.Type {
	case TypeSetAuthToken:
		return d.setAuthToken(ctx, req)
	case TypeGetAuthToken:
		return d.getAuthToken(ctx)
	case TypeGetUser:
		return d.getUser(ctx)
	case TypeHandoffURL:
		return d.handoffURL(ctx, req)
	case TypeSetConfig:
		return d.setConfig(ctx, req)
	case TypeStartSession:
		return d.startSession(ctx, req)
	case TypeSubmitResponse:
		return d.submitResponse(ctx, req)
	case TypeGetHint:
		return d.getHint(ctx, req)
	case TypeFetchHintText:
		return d.fetchHintText(ctx, req)
	case TypeCompleteSession:
		return d.completeSession(ctx, req)
	case TypeCancelSession:
		return d.cancelSession(ctx, req)
	case TypeGetCurrentSession:
		return d.getCurrentSession(ctx)
	case TypeGetSessionForProblem:
		return d.getSessionForProblem(ctx, req)
	case TypeCheckActiveSession:
		return d.checkActiveSession(ctx, req)
	case TypeClearSession:
		return d.clearSession(ctx)
	case TypeLogout:
		return d.logout(ctx)
	default:
		return ErrorResult{Error: "Unknown message type", Code: CodeUnknownType}
	}
}

func (d *Dispatcher) setAuthToken(ctx context.Context, req Request) any {
	if req.Token == "" {
		return ErrorResult{Error: "token is required"}
	}
	if err := d.tokens.SetToken(ctx, req.Token); err != nil {
		return errorFor(err)
	}
	return SuccessResult{Success: true}
}

func (d *Dispatcher) getAuthToken(ctx context.Context) any {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return errorFor(err)
	}
	return TokenResult{Token: token}
}

// getUser answers the "logged in as" surface query from the stored
// credential's decoded claims.
func (d *Dispatcher) getUser(ctx context.Context) any {
	cred, err := d.tokens.Credential(ctx)
	if err != nil {
		return errorFor(err)
	}
	if !cred.HasToken() {
		return UserResult{LoggedIn: false}
	}

	result := UserResult{LoggedIn: true, Subject: cred.Subject, Email: cred.Email}
	if claims := auth.DecodeClaims(cred.Token); claims != nil {
		result.DisplayName = claims.DisplayName()
	}
	return result
}

// handoffURL consumes a login handoff carried in a navigated URL's fragment:
// the one-time token becomes the active credential and an HQ origin, when
// present, rewires the worker's endpoints. URLs without handoff parameters
// are reported as unhandled, not as errors.
func (d *Dispatcher) handoffURL(ctx context.Context, req Request) any {
	handoff, ok := auth.ParseHandoff(req.URL)
	if !ok {
		return HandoffResult{Handled: false}
	}

	if handoff.Token != "" {
		if err := d.tokens.SetToken(ctx, handoff.Token); err != nil {
			return errorFor(err)
		}
	}
	if handoff.HQOrigin != "" {
		apiBase := handoff.APIBaseURL()
		d.backend.SetBaseURL(apiBase)
		if err := d.repo.SetState(ctx, store.StateAPIBaseURL, apiBase); err != nil {
			return errorFor(fmt.Errorf("persist api base url: %w", err))
		}
		if err := d.repo.SetState(ctx, store.StateFrontendBaseURL, handoff.HQOrigin); err != nil {
			return errorFor(fmt.Errorf("persist frontend base url: %w", err))
		}
	}

	slog.Info("login handoff consumed",
		"subject", auth.DecodeSubject(handoff.Token),
		"hq", handoff.HQOrigin,
	)
	return HandoffResult{Handled: true, CleanURL: handoff.CleanURL}
}

// setConfig rewires the worker's endpoints at runtime (HQ handoff). The
// overrides are persisted so a restarted worker keeps talking to the same
// backend.
func (d *Dispatcher) setConfig(ctx context.Context, req Request) any {
	if req.APIBaseURL != "" {
		d.backend.SetBaseURL(req.APIBaseURL)
		if err := d.repo.SetState(ctx, store.StateAPIBaseURL, req.APIBaseURL); err != nil {
			return errorFor(fmt.Errorf("persist api base url: %w", err))
		}
	}
	if req.FrontendBaseURL != "" {
		if err := d.repo.SetState(ctx, store.StateFrontendBaseURL, req.FrontendBaseURL); err != nil {
			return errorFor(fmt.Errorf("persist frontend base url: %w", err))
		}
	}
	return SuccessResult{Success: true}
}

func (d *Dispatcher) startSession(ctx context.Context, req Request) any {
	if req.AlgorithmURL == "" {
		return ErrorResult{Error: "algorithmUrl is required"}
	}
	sess, err := d.controller.Start(ctx, req.AlgorithmTitle, req.AlgorithmURL)
	if err != nil {
		return errorFor(err)
	}
	return StartResult{Success: true, Session: sess}
}

func (d *Dispatcher) submitResponse(ctx context.Context, req Request) any {
	result, err := d.controller.SubmitResponse(ctx, req.SessionID, req.PromptIndex, req.ResponseText, req.TimeSpentSeconds)
	if err != nil {
		return errorFor(err)
	}
	return SubmitResult{
		Success:          true,
		PromptsCompleted: result.PromptsCompleted,
		NextPrompt:       result.NextPrompt,
		SessionComplete:  result.SessionComplete,
	}
}

func (d *Dispatcher) getHint(ctx context.Context, req Request) any {
	handle, err := d.controller.RequestHint(ctx, req.SessionID)
	if err != nil {
		return errorFor(err)
	}
	return HintHandleResult{Success: true, SSEURL: handle.SSEURL, Token: handle.Token}
}

func (d *Dispatcher) fetchHintText(ctx context.Context, req Request) any {
	text, err := d.controller.FetchHintText(ctx, req.SessionID)
	if err != nil {
		return errorFor(err)
	}
	return HintTextResult{Success: true, Text: text}
}

// completeSession always reports success for local cleanup; a failed
// server-side persist rides along in the result for diagnostics.
func (d *Dispatcher) completeSession(ctx context.Context, req Request) any {
	result, err := d.controller.Complete(ctx, req.SessionID)
	if err != nil {
		if result == nil {
			result = map[string]any{}
		}
		result["error"] = err.Error()
	}
	return OutcomeResult{Success: true, Result: result}
}

func (d *Dispatcher) cancelSession(ctx context.Context, req Request) any {
	result, err := d.controller.Cancel(ctx, req.SessionID, req.Reason)
	if err != nil {
		// Local cleanup already happened; the server-side failure is the
		// caller's diagnostic.
		return errorFor(err)
	}
	return OutcomeResult{Success: true, Result: result}
}

func (d *Dispatcher) getCurrentSession(ctx context.Context) any {
	sess, err := d.registry.Current(ctx)
	if err != nil {
		return errorFor(err)
	}
	return SessionResult{Session: sess}
}

func (d *Dispatcher) getSessionForProblem(ctx context.Context, req Request) any {
	sess, err := d.registry.GetForProblem(ctx, req.ProblemURL)
	if err != nil {
		return errorFor(err)
	}
	return SessionResult{Session: sess}
}

func (d *Dispatcher) checkActiveSession(ctx context.Context, req Request) any {
	sess, active, err := d.registry.CheckActive(ctx, req.ProblemURL)
	if err != nil {
		return errorFor(err)
	}
	return ActiveSessionResult{HasActiveSession: active, Session: sess}
}

// clearSession drops the current session from the registry and unsets the
// pointer; used after the completion screen and on UI reset.
func (d *Dispatcher) clearSession(ctx context.Context) any {
	sess, err := d.registry.Current(ctx)
	if err != nil {
		return errorFor(err)
	}
	if sess != nil {
		if err := d.registry.Remove(ctx, sess.AlgorithmURL); err != nil {
			return errorFor(err)
		}
	}
	if err := d.registry.ClearCurrent(ctx); err != nil {
		return errorFor(err)
	}
	return SuccessResult{Success: true}
}

func (d *Dispatcher) logout(ctx context.Context) any {
	if err := d.tokens.Clear(ctx); err != nil {
		return errorFor(err)
	}
	if err := d.registry.ClearAll(ctx); err != nil {
		return errorFor(err)
	}
	return SuccessResult{Success: true}
}

// errorFor normalizes an error into the payload UI surfaces render, tagging
// the categories they remedy differently: absent credentials, expired
// credentials, and connectivity failures. Application-level rejections keep
// the backend's detail verbatim.
func errorFor(err error) ErrorResult {
	switch {
	case errors.Is(err, backend.ErrNotAuthenticated):
		return ErrorResult{Error: err.Error(), Code: CodeNotAuthenticated}
	case backend.IsTokenExpired(err):
		return ErrorResult{Error: err.Error(), Code: CodeAuthExpired}
	default:
		var conn *backend.ConnectivityError
		if errors.As(err, &conn) {
			return ErrorResult{Error: err.Error(), Code: CodeConnectivity}
		}
		return ErrorResult{Error: err.Error()}
	}
}
