// Package api implements the Fiber HTTP API over the crew-bus engine.
//
// Engine errors pass straight through handlers; the error handler maps them
// to status codes (400 invalid, 404 unknown id, 403 blocked, 409 wrong
// state, 429 rate limited).
package api

import (
	"encoding/json"
	"time"

	"github.com/helmcode/crew-bus/internal/crew"
)

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Blocked bool   `json:"blocked,omitempty"`
}

// LoginRequest is the payload for POST /api/auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries a bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrivateMessageRequest is the payload for POST /api/sessions/:id/messages.
type PrivateMessageRequest struct {
	FromID string `json:"from_id"`
	Text   string `json:"text"`
}

// EndSessionRequest is the payload for POST /api/sessions/:id/end.
type EndSessionRequest struct {
	EndedBy string `json:"ended_by"`
}

// ScoreRequest sets a trust or burnout score.
type ScoreRequest struct {
	Score *int `json:"score"`
}

// TimingRuleRequest is the payload for PUT /api/agents/:id/timing-rules/:type.
type TimingRuleRequest struct {
	Config  json.RawMessage `json:"config"`
	Enabled *bool           `json:"enabled"`
}

// FeedbackRequest is the payload for POST /api/decisions/:id/feedback.
type FeedbackRequest struct {
	Override    bool   `json:"override"`
	HumanAction string `json:"human_action"`
	Note        string `json:"note"`
}

// IdeaRequest is the payload for POST /api/ideas/filter. When MessageID
// is set the idea is read from the message store and Subject/Body are ignored.
type IdeaRequest struct {
	RightHandID string `json:"right_hand_id"`
	MessageID   string `json:"idea_message_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// HumanStateRequest is the payload for PUT /api/humans/:id/state.
type HumanStateRequest struct {
	crew.HumanStateUpdate
	UpdatedBy string `json:"updated_by"`
}

// UpdateSettingsRequest is the payload for PUT /api/settings.
type UpdateSettingsRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ReadResponse reports whether a status transition happened.
type ReadResponse struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}
