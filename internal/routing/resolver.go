// Package routing implements the rule resolver that authorizes or blocks
// each message between two agents.
package routing

import (
	"fmt"

	"github.com/helmcode/crew-bus/internal/models"
)

// Step names the resolver rule that produced a decision.
type Step string

const (
	StepPrivateSession    Step = "private_session"
	StepHumanAuthority    Step = "human_authority"
	StepCrewBossAuthority Step = "crew_boss_authority"
	StepSecurity          Step = "security_containment"
	StepHumanReachability Step = "human_reachability"
	StepLiveness          Step = "liveness"
	StepWellnessCritical  Step = "wellness_critical"
	StepSafetyEscalation  Step = "safety_escalation"
	StepHierarchy         Step = "hierarchy"
	StepRoleTable         Step = "role_table"
	StepNoRule            Step = "no_rule"
)

// Decision represents the outcome of a routing evaluation.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	RequireApproval bool   `json:"require_approval"`
	Reason          string `json:"reason"`
	Step            Step   `json:"step"`
}

// Allow returns a Decision that permits the message.
func Allow(step Step, reason string) Decision {
	return Decision{Allowed: true, Reason: reason, Step: step}
}

// Deny returns a Decision that blocks the message with the given reason.
func Deny(step Step, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Step: step}
}

// Rule is a role-table entry.
type Rule struct {
	Allowed         bool
	RequireApproval bool
	Description     string
}

// RuleLookup returns the role-table entry for a role pair, if any.
type RuleLookup func(from, to models.Role) (Rule, bool)

// StaticRules builds a RuleLookup over a fixed set of rules.
func StaticRules(rules []models.RoutingRule) RuleLookup {
	type pair struct{ from, to models.Role }
	table := make(map[pair]Rule, len(rules))
	for _, r := range rules {
		table[pair{r.FromRole, r.ToRole}] = Rule{
			Allowed:         r.Allowed,
			RequireApproval: r.RequireApproval,
			Description:     r.Description,
		}
	}
	return func(from, to models.Role) (Rule, bool) {
		r, ok := table[pair{from, to}]
		return r, ok
	}
}

// Request carries everything the resolver needs about one sender/recipient pair.
type Request struct {
	Sender    *models.Agent
	Recipient *models.Agent

	// SessionActive is true when an unexpired private session joins the pair
	// in either direction.
	SessionActive bool

	// DirectSecurityFeed is true when the recipient human's trust config
	// carries the direct_security_feed escalation override.
	DirectSecurityFeed bool
}

// Resolver evaluates routing requests against the role table.
type Resolver struct {
	rules RuleLookup
}

// NewResolver creates a Resolver backed by the given rule lookup.
func NewResolver(rules RuleLookup) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve decides whether the sender may message the recipient.
//
// Evaluation order (first match wins):
//  1. An active private session between the pair allows unconditionally.
//  2. The human may message anyone.
//  3. The Crew Boss may message anyone.
//  4. Security reaches the Crew Boss, and the human only with a direct feed.
//  5. Nobody else but wellness reaches the human.
//  6. Sender and recipient must be active; the sender must be deployed.
//  7. Wellness reaches the human (priority is enforced at send time).
//  8. Any agent with a parent may escalate to the Crew Boss.
//  9. Direct parent/child edges are allowed.
//  10. The role table decides, with own-team checks for manager/worker pairs.
func (r *Resolver) Resolve(req Request) Decision {
	s, t := req.Sender, req.Recipient

	// Step 1: private session override.
	if req.SessionActive {
		return Allow(StepPrivateSession, "Active private session")
	}

	// Step 2: human authority.
	if s.AgentType == models.AgentTypeHuman {
		return Allow(StepHumanAuthority, "Human authority")
	}

	// Step 3: Crew Boss authority.
	if s.AgentType == models.AgentTypeRightHand {
		return Allow(StepCrewBossAuthority, "Crew Boss authority")
	}

	// Step 4: security containment.
	if s.Role == models.RoleSecurity {
		switch t.AgentType {
		case models.AgentTypeRightHand:
			return Allow(StepSecurity, "Security reports to Crew Boss")
		case models.AgentTypeHuman:
			if req.DirectSecurityFeed {
				return Allow(StepSecurity, "Security direct feed to human enabled")
			}
			return Deny(StepSecurity, "Security must go through Crew Boss (direct feed not enabled)")
		}
		return Deny(StepSecurity, "Security can only message Crew Boss")
	}

	// Step 5: only the Crew Boss (and wellness, checked below) reaches the human.
	if t.AgentType == models.AgentTypeHuman && s.AgentType != models.AgentTypeWellness {
		return Deny(StepHumanReachability,
			fmt.Sprintf("Agent type '%s' must go through Crew Boss to reach human", s.AgentType))
	}

	// Step 6: liveness.
	if s.Status != models.AgentStatusActive {
		return Deny(StepLiveness, fmt.Sprintf("Sender is %s", s.Status))
	}
	if t.Status != models.AgentStatusActive {
		return Deny(StepLiveness, fmt.Sprintf("Recipient is %s", t.Status))
	}
	if !s.Active {
		return Deny(StepLiveness, fmt.Sprintf("Sender '%s' is not activated", s.Name))
	}

	// Step 7: wellness critical channel.
	if s.AgentType == models.AgentTypeWellness && t.AgentType == models.AgentTypeHuman {
		return Allow(StepWellnessCritical, "Wellness critical alert to human (must be critical priority)")
	}

	// Step 8: safety escalation.
	if t.AgentType == models.AgentTypeRightHand && s.ParentAgentID != nil {
		return Allow(StepSafetyEscalation, "Safety escalation to Crew Boss")
	}

	// Step 9: chain of command.
	if s.IsChildOf(t) {
		return Allow(StepHierarchy, "Direct parent in hierarchy")
	}
	if t.IsChildOf(s) {
		return Allow(StepHierarchy, "Direct report in hierarchy")
	}

	// Step 10: role table.
	rule, ok := r.rules(s.Role, t.Role)
	if !ok {
		return Deny(StepNoRule, fmt.Sprintf("No routing rule for %s (%s) -> %s (%s)",
			s.Role, s.AgentType, t.Role, t.AgentType))
	}
	if !rule.Allowed {
		return Deny(StepRoleTable, rule.Description)
	}
	if s.Role == models.RoleWorker && t.Role == models.RoleManager && !s.IsChildOf(t) {
		return Deny(StepRoleTable, "Workers can only message their own manager")
	}
	if s.Role == models.RoleManager && t.Role == models.RoleWorker && !t.IsChildOf(s) {
		return Deny(StepRoleTable, "Managers can only message their own workers")
	}

	return Decision{
		Allowed:         true,
		RequireApproval: rule.RequireApproval,
		Reason:          rule.Description,
		Step:            StepRoleTable,
	}
}
