// Package domain contains core domain types for the DramaRama companion worker.
package domain

// TotalPrompts is the number of reflective prompts in a full session.
const TotalPrompts = 12

// Prompt is one of the fixed reflective questions, tagged with its
// element/sub-element category. The tags are descriptive metadata supplied
// by the backend, never computed locally.
type Prompt struct {
	Index      int    `json:"index"`
	Element    string `json:"element"`
	SubElement string `json:"sub_element"`
	Text       string `json:"prompt"`
}

// RecordedResponse is a locally mirrored answer to one prompt.
type RecordedResponse struct {
	PromptIndex      int    `json:"promptIndex"`
	ResponseText     string `json:"responseText"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
}

// Session mirrors one user's attempt at the reflective exercise for a single
// problem. The backend is the source of truth; this record is a local mirror
// keyed by the problem URL.
type Session struct {
	ID                 string             `json:"id"`
	AlgorithmTitle     string             `json:"algorithmTitle"`
	AlgorithmURL       string             `json:"algorithmUrl"`
	CurrentPromptIndex int                `json:"currentPromptIndex"`
	CurrentPrompt      *Prompt            `json:"currentPrompt"`
	Responses          []RecordedResponse `json:"responses"`
	SessionComplete    bool               `json:"sessionComplete"`
	Cancelled          bool               `json:"cancelled,omitempty"`
	CancelReason       string             `json:"cancelReason,omitempty"`
}

// InProgress reports whether the session has started but not finished:
// at least one prompt answered and not yet complete or cancelled.
func (s *Session) InProgress() bool {
	return s != nil && !s.SessionComplete && !s.Cancelled && s.CurrentPromptIndex > 0
}

// Live reports whether the session can still accept responses.
func (s *Session) Live() bool {
	return s != nil && !s.SessionComplete && !s.Cancelled
}

// RecordResponse appends a response and advances the mirror to the
// backend-reported state. The cursor never moves backwards.
func (s *Session) RecordResponse(r RecordedResponse, promptsCompleted int, next *Prompt, complete bool) {
	s.Responses = append(s.Responses, r)
	if promptsCompleted > s.CurrentPromptIndex {
		s.CurrentPromptIndex = promptsCompleted
	}
	s.CurrentPrompt = next
	if complete {
		s.SessionComplete = true
	}
}
