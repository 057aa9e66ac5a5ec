package models

// AgentType is the closed set of agent kinds known to the bus.
type AgentType string

const (
	AgentTypeHuman          AgentType = "human"
	AgentTypeRightHand      AgentType = "right_hand"
	AgentTypeGuardian       AgentType = "guardian"
	AgentTypeSecurity       AgentType = "security"
	AgentTypeStrategy       AgentType = "strategy"
	AgentTypeWellness       AgentType = "wellness"
	AgentTypeFinancial      AgentType = "financial"
	AgentTypeLegal          AgentType = "legal"
	AgentTypeKnowledge      AgentType = "knowledge"
	AgentTypeCommunications AgentType = "communications"
	AgentTypeManager        AgentType = "manager"
	AgentTypeWorker         AgentType = "worker"
	AgentTypeSpecialist     AgentType = "specialist"
	AgentTypeHelp           AgentType = "help"
)

// AgentTypes lists every valid agent type in hierarchy order.
var AgentTypes = []AgentType{
	AgentTypeHuman, AgentTypeRightHand, AgentTypeGuardian, AgentTypeSecurity,
	AgentTypeStrategy, AgentTypeWellness, AgentTypeFinancial, AgentTypeLegal,
	AgentTypeKnowledge, AgentTypeCommunications,
	AgentTypeManager, AgentTypeWorker, AgentTypeSpecialist, AgentTypeHelp,
}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	return t.Rank() < len(AgentTypes)
}

// Rank is the display position of t in hierarchy order. Unknown types sort last.
func (t AgentType) Rank() int {
	for i, v := range AgentTypes {
		if v == t {
			return i
		}
	}
	return len(AgentTypes)
}

// IsCoreCrew reports whether t is one of the six specialist types that
// report straight to the Crew Boss.
func (t AgentType) IsCoreCrew() bool {
	switch t {
	case AgentTypeStrategy, AgentTypeWellness, AgentTypeFinancial,
		AgentTypeLegal, AgentTypeKnowledge, AgentTypeCommunications:
		return true
	}
	return false
}

// Role derives the routing role for t.
func (t AgentType) Role() Role {
	switch {
	case t == AgentTypeHuman:
		return RoleHuman
	case t == AgentTypeRightHand:
		return RoleRightHand
	case t == AgentTypeGuardian || t == AgentTypeSecurity:
		return RoleSecurity
	case t.IsCoreCrew():
		return RoleCoreCrew
	case t == AgentTypeManager:
		return RoleManager
	}
	return RoleWorker
}

// Role is the routing role derived from an agent type.
type Role string

const (
	RoleHuman     Role = "human"
	RoleRightHand Role = "right_hand"
	RoleSecurity  Role = "security"
	RoleCoreCrew  Role = "core_crew"
	RoleManager   Role = "manager"
	RoleWorker    Role = "worker"
)

// AgentStatus is the lifecycle status of an agent. Terminated is final.
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusQuarantined AgentStatus = "quarantined"
	AgentStatusTerminated  AgentStatus = "terminated"
)

// Channel is the delivery channel configured for an agent.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSignal   Channel = "signal"
	ChannelEmail    Channel = "email"
	ChannelConsole  Channel = "console"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return oneOf(c, ChannelTelegram, ChannelSignal, ChannelEmail, ChannelConsole)
}

// MessageType classifies a routed message.
type MessageType string

const (
	MessageTypeReport     MessageType = "report"
	MessageTypeTask       MessageType = "task"
	MessageTypeAlert      MessageType = "alert"
	MessageTypeEscalation MessageType = "escalation"
	MessageTypeIdea       MessageType = "idea"
	MessageTypeBriefing   MessageType = "briefing"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return oneOf(t, MessageTypeReport, MessageTypeTask, MessageTypeAlert,
		MessageTypeEscalation, MessageTypeIdea, MessageTypeBriefing)
}

// Priority is a message priority.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return oneOf(p, PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical)
}

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusArchived  MessageStatus = "archived"
)

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	return oneOf(s, MessageStatusQueued, MessageStatusDelivered, MessageStatusRead, MessageStatusArchived)
}

// DecisionType classifies a Crew Boss decision.
type DecisionType string

const (
	DecisionFilter            DecisionType = "filter"
	DecisionDeliver           DecisionType = "deliver"
	DecisionHandle            DecisionType = "handle"
	DecisionQueue             DecisionType = "queue"
	DecisionEscalate          DecisionType = "escalate"
	DecisionBlock             DecisionType = "block"
	DecisionReputationProtect DecisionType = "reputation_protect"
)

// Valid reports whether t is a known decision type.
func (t DecisionType) Valid() bool {
	return oneOf(t, DecisionFilter, DecisionDeliver, DecisionHandle, DecisionQueue,
		DecisionEscalate, DecisionBlock, DecisionReputationProtect)
}

// KnowledgeCategory classifies a knowledge entry.
type KnowledgeCategory string

const (
	KnowledgeDecision   KnowledgeCategory = "decision"
	KnowledgeContact    KnowledgeCategory = "contact"
	KnowledgeLesson     KnowledgeCategory = "lesson"
	KnowledgePreference KnowledgeCategory = "preference"
	KnowledgeRejection  KnowledgeCategory = "rejection"
)

// Valid reports whether c is a known knowledge category.
func (c KnowledgeCategory) Valid() bool {
	return oneOf(c, KnowledgeDecision, KnowledgeContact, KnowledgeLesson,
		KnowledgePreference, KnowledgeRejection)
}

// TimingRuleType names a delivery timing rule.
type TimingRuleType string

const (
	TimingQuietHours       TimingRuleType = "quiet_hours"
	TimingBusySignal       TimingRuleType = "busy_signal"
	TimingBurnoutThreshold TimingRuleType = "burnout_threshold"
	TimingFocusMode        TimingRuleType = "focus_mode"
)

// Valid reports whether t is a known timing rule type.
func (t TimingRuleType) Valid() bool {
	return oneOf(t, TimingQuietHours, TimingBusySignal, TimingBurnoutThreshold, TimingFocusMode)
}

// SessionEnder records who closed a private session.
type SessionEnder string

const (
	EndedByHuman   SessionEnder = "human"
	EndedByTimeout SessionEnder = "timeout"
	EndedBySystem  SessionEnder = "system"
)

// Valid reports whether e is a known ender.
func (e SessionEnder) Valid() bool {
	return oneOf(e, EndedByHuman, EndedByTimeout, EndedBySystem)
}

// MailboxSeverity grades a team mailbox entry.
type MailboxSeverity string

const (
	SeverityInfo    MailboxSeverity = "info"
	SeverityWarning MailboxSeverity = "warning"
	SeverityCodeRed MailboxSeverity = "code_red"
)

// Valid reports whether s is a known severity.
func (s MailboxSeverity) Valid() bool {
	return oneOf(s, SeverityInfo, SeverityWarning, SeverityCodeRed)
}

// EscalationDirectSecurityFeed lets the security agent reach the human directly.
const EscalationDirectSecurityFeed = "direct_security_feed"

// Human state enumerations.
var (
	EnergyLevels = []string{"high", "medium", "low"}
	Activities   = []string{"working", "meeting", "driving", "resting", "family_time", "unavailable"}
	Moods        = []string{"good", "neutral", "stressed", "frustrated", "energized"}
)

func oneOf[T comparable](v T, set ...T) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Contains reports whether v is in set.
func Contains(set []string, v string) bool {
	return oneOf(v, set...)
}
