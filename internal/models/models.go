// Package models defines GORM models and SQLite database setup for crew-bus.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSON is a custom type that stores JSON data as a string in SQLite.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("null")
		return nil
	}
	switch v := value.(type) {
	case string:
		*j = JSON(v)
	case []byte:
		*j = JSON(append([]byte(nil), v...))
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(append([]byte(nil), data...))
	return nil
}

// MustJSON marshals v into a JSON column value. Values that cannot be
// marshaled are stored as null.
func MustJSON(v interface{}) JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return JSON("null")
	}
	return JSON(raw)
}

// Decode unmarshals the column into target. A null or empty column leaves
// target untouched.
func (j JSON) Decode(target interface{}) error {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return json.Unmarshal(j, target)
}

// Agent is a participant on the bus, including the human principal.
type Agent struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	Name            string      `gorm:"uniqueIndex;not null;size:255" json:"name"`
	AgentType       AgentType   `gorm:"not null;size:50;index" json:"agent_type"`
	Role            Role        `gorm:"not null;size:50" json:"role"`
	ParentAgentID   *string     `gorm:"size:36;index" json:"parent_agent_id"`
	Status          AgentStatus `gorm:"not null;size:20" json:"status"`
	Active          bool        `gorm:"not null" json:"active"`
	Channel         Channel     `gorm:"not null;size:20" json:"channel"`
	ChannelAddress  string      `gorm:"size:255" json:"channel_address"`
	TrustScore      int         `gorm:"not null" json:"trust_score"`
	BurnoutScore    int         `gorm:"not null" json:"burnout_score"`
	BudgetLimit     float64     `gorm:"not null" json:"budget_limit"`
	QuietHoursStart string      `gorm:"size:5" json:"quiet_hours_start"`
	QuietHoursEnd   string      `gorm:"size:5" json:"quiet_hours_end"`
	Timezone        string      `gorm:"not null;size:64" json:"timezone"`
	Capabilities    JSON        `gorm:"type:text" json:"capabilities"`
	Description     string      `gorm:"type:text" json:"description"`
	Model           string      `gorm:"size:100" json:"model"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsChildOf reports whether a's parent is other.
func (a *Agent) IsChildOf(other *Agent) bool {
	return a.ParentAgentID != nil && other != nil && *a.ParentAgentID == other.ID
}

// Message is a routed message held in the message store.
type Message struct {
	ID               string        `gorm:"primaryKey;size:36" json:"id"`
	FromAgentID      string        `gorm:"not null;size:36;index" json:"from_agent_id"`
	ToAgentID        string        `gorm:"not null;size:36;index:idx_messages_to_created" json:"to_agent_id"`
	MessageType      MessageType   `gorm:"not null;size:20" json:"message_type"`
	Subject          string        `gorm:"not null;size:512" json:"subject"`
	Body             string        `gorm:"type:text" json:"body"`
	Priority         Priority      `gorm:"not null;size:20" json:"priority"`
	Status           MessageStatus `gorm:"not null;size:20;index" json:"status"`
	PrivateSessionID *string       `gorm:"size:36;index" json:"private_session_id,omitempty"`
	CreatedAt        time.Time     `gorm:"index:idx_messages_to_created" json:"created_at"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	ReadAt           *time.Time    `json:"read_at,omitempty"`
}

// RoutingRule is the static role-to-role policy consulted as the resolver's
// last resort.
type RoutingRule struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FromRole        Role   `gorm:"not null;size:50;uniqueIndex:idx_routing_pair" json:"from_role"`
	ToRole          Role   `gorm:"not null;size:50;uniqueIndex:idx_routing_pair" json:"to_role"`
	Allowed         bool   `gorm:"not null" json:"allowed"`
	RequireApproval bool   `gorm:"not null" json:"require_approval"`
	Description     string `gorm:"size:512" json:"description"`
}

// TrustConfig stores the relationship settings between a human and their
// Crew Boss.
type TrustConfig struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	HumanID             string    `gorm:"not null;size:36;uniqueIndex:idx_trust_pair" json:"human_id"`
	RightHandID         string    `gorm:"not null;size:36;uniqueIndex:idx_trust_pair" json:"right_hand_id"`
	TrustScore          int       `gorm:"not null" json:"trust_score"`
	AutonomyRules       JSON      `gorm:"type:text" json:"autonomy_rules"`
	EscalationOverrides JSON      `gorm:"type:text" json:"escalation_overrides"`
	UpdatedBy           string    `gorm:"size:100" json:"updated_by"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Overrides decodes the escalation override list.
func (t *TrustConfig) Overrides() []string {
	var out []string
	_ = t.EscalationOverrides.Decode(&out)
	return out
}

// DecisionLog records a Crew Boss decision and, later, the human's verdict.
type DecisionLog struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	RightHandID   string       `gorm:"not null;size:36;index" json:"right_hand_id"`
	HumanID       string       `gorm:"not null;size:36;index" json:"human_id"`
	DecisionType  DecisionType `gorm:"not null;size:30" json:"decision_type"`
	Context       JSON         `gorm:"type:text" json:"context"`
	Action        string       `gorm:"type:text" json:"action"`
	Reasoning     string       `gorm:"type:text" json:"reasoning"`
	HumanOverride *bool        `json:"human_override"`
	HumanAction   string       `gorm:"type:text" json:"human_action"`
	FeedbackNote  string       `gorm:"type:text" json:"feedback_note"`
	PatternTags   JSON         `gorm:"type:text" json:"pattern_tags"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
	FeedbackAt    *time.Time   `json:"feedback_at,omitempty"`
}

// KnowledgeEntry is an append-only note in the shared knowledge store.
type KnowledgeEntry struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	AgentID         string            `gorm:"not null;size:36;index" json:"agent_id"`
	Category        KnowledgeCategory `gorm:"not null;size:20;index" json:"category"`
	Subject         string            `gorm:"not null;size:512" json:"subject"`
	Content         JSON              `gorm:"type:text" json:"content"`
	Tags            string            `gorm:"size:1024" json:"tags"`
	SourceMessageID *string           `gorm:"size:36" json:"source_message_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// RejectionHistory records a strategy idea the human turned down.
type RejectionHistory struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	HumanID         string    `gorm:"not null;size:36;index" json:"human_id"`
	StrategyAgentID string    `gorm:"not null;size:36" json:"strategy_agent_id"`
	IdeaSubject     string    `gorm:"not null;size:512" json:"idea_subject"`
	IdeaBody        string    `gorm:"type:text" json:"idea_body"`
	Reason          string    `gorm:"type:text" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// PrivateSession is a time-boxed channel between the human and one agent.
// At most one active row exists per (human, agent) pair.
type PrivateSession struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	HumanID        string       `gorm:"not null;size:36;index:idx_private_active_pair,unique,where:active = 1" json:"human_id"`
	AgentID        string       `gorm:"not null;size:36;index:idx_private_active_pair,unique,where:active = 1" json:"agent_id"`
	Channel        string       `gorm:"not null;size:20" json:"channel"`
	StartedAt      time.Time    `json:"started_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	ExpiresAt      time.Time    `gorm:"index" json:"expires_at"`
	TimeoutMinutes int          `gorm:"not null" json:"timeout_minutes"`
	Active         bool         `gorm:"not null;index" json:"active"`
	MessageCount   int          `gorm:"not null" json:"message_count"`
	EndedBy        SessionEnder `gorm:"size:20" json:"ended_by,omitempty"`
	EndedAt        *time.Time   `json:"ended_at,omitempty"`
}

// Expired reports whether the session's idle window has passed at now.
func (p *PrivateSession) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// HumanState carries the human's dynamic wellbeing signals.
type HumanState struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	HumanID             string     `gorm:"uniqueIndex;not null;size:36" json:"human_id"`
	BurnoutScore        int        `gorm:"not null" json:"burnout_score"`
	EnergyLevel         string     `gorm:"not null;size:20" json:"energy_level"`
	CurrentActivity     string     `gorm:"not null;size:20" json:"current_activity"`
	MoodIndicator       string     `gorm:"not null;size:20" json:"mood_indicator"`
	LastSocialActivity  *time.Time `json:"last_social_activity,omitempty"`
	LastFamilyContact   *time.Time `json:"last_family_contact,omitempty"`
	ConsecutiveWorkDays int        `gorm:"not null" json:"consecutive_work_days"`
	UpdatedBy           string     `gorm:"size:100" json:"updated_by"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TimingRule holds one per-kind delivery timing rule for an agent.
type TimingRule struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	AgentID    string         `gorm:"not null;size:36;uniqueIndex:idx_timing_agent_kind" json:"agent_id"`
	RuleType   TimingRuleType `gorm:"not null;size:30;uniqueIndex:idx_timing_agent_kind" json:"rule_type"`
	RuleConfig JSON           `gorm:"type:text" json:"rule_config"`
	Enabled    bool           `gorm:"not null" json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MailboxEntry is a message dropped into a team's mailbox, bypassing routing.
type MailboxEntry struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	TeamID      string          `gorm:"not null;size:36;index" json:"team_id"`
	FromAgentID string          `gorm:"not null;size:36;index:idx_mailbox_sender_created" json:"from_agent_id"`
	Severity    MailboxSeverity `gorm:"not null;size:20" json:"severity"`
	Subject     string          `gorm:"not null;size:512" json:"subject"`
	Body        string          `gorm:"type:text" json:"body"`
	Read        bool            `gorm:"not null" json:"read"`
	CreatedAt   time.Time       `gorm:"index:idx_mailbox_sender_created" json:"created_at"`
}

// AuditEntry records one state transition on the bus.
type AuditEntry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	EventType string    `gorm:"not null;size:50;index" json:"event_type"`
	AgentID   string    `gorm:"size:36;index:idx_audit_agent_created" json:"agent_id"`
	Details   JSON      `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"index:idx_audit_agent_created" json:"created_at"`
}

// Settings stores crew-level key-value configuration.
type Settings struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
