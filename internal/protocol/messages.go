// Package protocol defines the JSON envelopes crew-bus exchanges with
// subscribers and messaging-app bridges.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType identifies a state transition on the bus.
type EventType string

const (
	EventAgentUpserted       EventType = "agent_upserted"
	EventAgentQuarantined    EventType = "agent_quarantined"
	EventAgentRestored       EventType = "agent_restored"
	EventAgentTerminated     EventType = "agent_terminated"
	EventAgentActivated      EventType = "agent_activated"
	EventAgentDeactivated    EventType = "agent_deactivated"
	EventMessageAttempt      EventType = "message_attempt"
	EventMessageSent         EventType = "message_sent"
	EventMessageDelivered    EventType = "message_delivered"
	EventMessageRead         EventType = "message_read"
	EventSessionStarted      EventType = "private_session_started"
	EventPrivateMessage      EventType = "private_message_sent"
	EventSessionEnded        EventType = "private_session_ended"
	EventTrustScoreUpdated   EventType = "trust_score_updated"
	EventTrustConfigUpdated  EventType = "trust_config_updated"
	EventBurnoutScoreUpdated EventType = "burnout_score_updated"
	EventHumanStateUpdated   EventType = "human_state_updated"
	EventTimingRuleUpdated   EventType = "timing_rule_updated"
	EventDecisionLogged      EventType = "decision_logged"
	EventFeedbackRecorded    EventType = "human_feedback_recorded"
	EventKnowledgeStored     EventType = "knowledge_stored"
	EventIdeaRejected        EventType = "idea_rejected"
	EventMailboxMessage      EventType = "team_mailbox_message"
	EventMailboxRead         EventType = "team_mailbox_read"
	EventConfigUpdated       EventType = "config_updated"
	EventConfigDeleted       EventType = "config_deleted"
)

// Event is the envelope for every bus event, persisted to the audit log and
// fanned out to subscribers.
type Event struct {
	EventID   string          `json:"event_id"`
	Type      EventType       `json:"type"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// SendRequest asks the bus to route a message.
type SendRequest struct {
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	MessageType string `json:"message_type"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Priority    string `json:"priority,omitempty"`
}

// PrivateSendRequest asks the bus to post into an open private session.
type PrivateSendRequest struct {
	SessionID string `json:"session_id"`
	FromID    string `json:"from_id"`
	Text      string `json:"text"`
}

// Reply answers a bus request.
type Reply struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Blocked   bool   `json:"blocked,omitempty"`
	Error     string `json:"error,omitempty"`
}
