package crew

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

const maxNameLength = 60

// AgentSpec is the upsert contract for creating or updating an agent by name.
// Zero values keep the current value on update and take the default on create
// (a new agent without a type is a worker).
type AgentSpec struct {
	Name            string           `json:"name" yaml:"name"`
	Type            models.AgentType `json:"agent_type" yaml:"agent_type"`
	Parent          string           `json:"parent,omitempty" yaml:"parent"`
	Channel         models.Channel   `json:"channel,omitempty" yaml:"channel"`
	ChannelAddress  string           `json:"channel_address,omitempty" yaml:"channel_address"`
	TrustScore      int              `json:"trust_score,omitempty" yaml:"trust_score"`
	BurnoutScore    int              `json:"burnout_score,omitempty" yaml:"burnout_score"`
	BudgetLimit     float64          `json:"budget_limit,omitempty" yaml:"budget_limit"`
	QuietHoursStart string           `json:"quiet_hours_start,omitempty" yaml:"quiet_hours_start"`
	QuietHoursEnd   string           `json:"quiet_hours_end,omitempty" yaml:"quiet_hours_end"`
	Timezone        string           `json:"timezone,omitempty" yaml:"timezone"`
	Active          *bool            `json:"active,omitempty" yaml:"active"`
	Capabilities    []string         `json:"capabilities,omitempty" yaml:"capabilities"`
	Description     string           `json:"description,omitempty" yaml:"description"`
	Model           string           `json:"model,omitempty" yaml:"model"`
}

// AgentView is an agent with its parent's name resolved.
type AgentView struct {
	models.Agent
	ParentName string `json:"parent_name,omitempty"`
}

// AgentStatusReport is an agent plus its message counters.
type AgentStatusReport struct {
	models.Agent
	InboxTotal  int64 `json:"inbox_total"`
	InboxUnread int64 `json:"inbox_unread"`
	SentTotal   int64 `json:"sent_total"`
}

func (spec *AgentSpec) validate() error {
	const op = "upsert_agent"
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return invalidf(op, "name", "Agent name is required")
	}
	if len(spec.Name) > maxNameLength {
		return invalidf(op, "name", "Name too long (max %d chars)", maxNameLength)
	}
	if spec.Type != "" && !spec.Type.Valid() {
		return invalidf(op, "agent_type", "Invalid agent_type '%s'", spec.Type)
	}
	if spec.Channel != "" && !spec.Channel.Valid() {
		return invalidf(op, "channel", "Invalid channel '%s'", spec.Channel)
	}
	if spec.TrustScore != 0 && (spec.TrustScore < 1 || spec.TrustScore > 10) {
		return invalidf(op, "trust_score", "Trust score must be 1-10, got %d", spec.TrustScore)
	}
	if spec.BurnoutScore != 0 && (spec.BurnoutScore < 1 || spec.BurnoutScore > 10) {
		return invalidf(op, "burnout_score", "Burnout score must be 1-10, got %d", spec.BurnoutScore)
	}
	if spec.BudgetLimit < 0 {
		return invalidf(op, "budget_limit", "Budget limit must not be negative")
	}
	for field, v := range map[string]string{"quiet_hours_start": spec.QuietHoursStart, "quiet_hours_end": spec.QuietHoursEnd} {
		if v == "" {
			continue
		}
		if _, err := parseClock(v); err != nil {
			return invalidf(op, field, "Invalid %s '%s': expected HH:MM", field, v)
		}
	}
	if spec.Timezone != "" {
		if _, err := time.LoadLocation(spec.Timezone); err != nil {
			return invalidf(op, "timezone", "Unknown timezone '%s'", spec.Timezone)
		}
	}
	return nil
}

// UpsertAgent creates the agent named by spec or updates it in place. The
// parent is resolved by name and must already exist.
func (s *Service) UpsertAgent(ctx context.Context, spec AgentSpec) (*models.Agent, error) {
	const op = "upsert_agent"
	if err := spec.validate(); err != nil {
		return nil, err
	}

	var out models.Agent
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var existing models.Agent
		err := tx.Where("name = ?", spec.Name).First(&existing).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			return fmt.Errorf("looking up agent %s: %w", spec.Name, err)
		}

		if spec.Type == models.AgentTypeHuman {
			var humans int64
			if err := tx.Model(&models.Agent{}).
				Where("agent_type = ? AND name <> ?", models.AgentTypeHuman, spec.Name).
				Count(&humans).Error; err != nil {
				return fmt.Errorf("counting humans: %w", err)
			}
			if humans > 0 {
				return invalidf(op, "agent_type", "A human principal already exists; only one is allowed")
			}
		}

		var parent *models.Agent
		if spec.Parent != "" {
			var p models.Agent
			if err := tx.Where("name = ?", spec.Parent).First(&p).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return invalidf(op, "parent", "Parent agent '%s' not found", spec.Parent)
				}
				return fmt.Errorf("looking up parent %s: %w", spec.Parent, err)
			}
			if !created {
				if err := checkNoCycle(tx, existing.ID, &p); err != nil {
					return err
				}
			}
			if created && p.AgentType == models.AgentTypeManager {
				var members int64
				if err := tx.Model(&models.Agent{}).Where("parent_agent_id = ?", p.ID).Count(&members).Error; err != nil {
					return fmt.Errorf("counting team members: %w", err)
				}
				if members+1 >= MaxTeamAgents {
					return statef(op, "Team is full (%d agents max). Create a new team and link it to this one.", MaxTeamAgents)
				}
			}
			parent = &p
		}

		a := existing
		if created {
			a = models.Agent{
				ID:           uuid.New().String(),
				Name:         spec.Name,
				AgentType:    models.AgentTypeWorker,
				Role:         models.RoleWorker,
				Status:       models.AgentStatusActive,
				Active:       true,
				Channel:      models.ChannelConsole,
				TrustScore:   1,
				BurnoutScore: 5,
				Timezone:     "UTC",
				Capabilities: models.MustJSON([]string{}),
			}
		}
		spec.apply(&a)
		if parent != nil {
			pid := parent.ID
			a.ParentAgentID = &pid
		}

		save := tx.Save
		if created {
			save = tx.Create
		}
		if err := save(&a).Error; err != nil {
			return fmt.Errorf("saving agent %s: %w", a.Name, err)
		}
		out = a

		return rec.emit(protocol.EventAgentUpserted, a.ID, map[string]interface{}{
			"name":       a.Name,
			"agent_type": a.AgentType,
			"role":       a.Role,
			"parent_id":  a.ParentAgentID,
			"created":    created,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (spec *AgentSpec) apply(a *models.Agent) {
	if spec.Type != "" {
		a.AgentType = spec.Type
		a.Role = spec.Type.Role()
	}
	if spec.Channel != "" {
		a.Channel = spec.Channel
	}
	if spec.ChannelAddress != "" {
		a.ChannelAddress = spec.ChannelAddress
	}
	if spec.TrustScore != 0 {
		a.TrustScore = spec.TrustScore
	}
	if spec.BurnoutScore != 0 {
		a.BurnoutScore = spec.BurnoutScore
	}
	if spec.BudgetLimit != 0 {
		a.BudgetLimit = spec.BudgetLimit
	}
	if spec.QuietHoursStart != "" {
		a.QuietHoursStart = spec.QuietHoursStart
	}
	if spec.QuietHoursEnd != "" {
		a.QuietHoursEnd = spec.QuietHoursEnd
	}
	if spec.Timezone != "" {
		a.Timezone = spec.Timezone
	}
	if spec.Active != nil {
		a.Active = *spec.Active
	}
	if spec.Capabilities != nil {
		a.Capabilities = models.MustJSON(spec.Capabilities)
	}
	if spec.Description != "" {
		a.Description = spec.Description
	}
	if spec.Model != "" {
		a.Model = spec.Model
	}
}

// checkNoCycle rejects a parent whose ancestry already contains id.
func checkNoCycle(tx *gorm.DB, id string, parent *models.Agent) error {
	seen := map[string]bool{}
	cur := parent
	for cur != nil {
		if cur.ID == id {
			return invalidf("upsert_agent", "parent", "Parent '%s' would create a cycle", parent.Name)
		}
		if seen[cur.ID] || cur.ParentAgentID == nil {
			return nil
		}
		seen[cur.ID] = true
		var next models.Agent
		if err := tx.First(&next, "id = ?", *cur.ParentAgentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("walking ancestry: %w", err)
		}
		cur = &next
	}
	return nil
}

// GetAgent returns an agent by id.
func (s *Service) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return s.loadAgent(s.read(ctx), "get_agent", id)
}

// GetAgentByName returns the named agent, or nil when none exists.
func (s *Service) GetAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	var a models.Agent
	if err := s.read(ctx).Where("name = ?", name).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up agent %s: %w", name, err)
	}
	return &a, nil
}

// ListAgents returns every agent ordered by hierarchy tier, then name.
func (s *Service) ListAgents(ctx context.Context) ([]AgentView, error) {
	var agents []models.Agent
	if err := s.read(ctx).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}

	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		v := AgentView{Agent: a}
		if a.ParentAgentID != nil {
			v.ParentName = names[*a.ParentAgentID]
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].AgentType.Rank(), out[j].AgentType.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetAgentStatus returns the agent with inbox and outbox counters.
func (s *Service) GetAgentStatus(ctx context.Context, id string) (*AgentStatusReport, error) {
	db := s.read(ctx)
	a, err := s.loadAgent(db, "get_agent_status", id)
	if err != nil {
		return nil, err
	}

	report := &AgentStatusReport{Agent: *a}
	if err := db.Model(&models.Message{}).
		Where("to_agent_id = ? AND status <> ?", id, models.MessageStatusArchived).
		Count(&report.InboxTotal).Error; err != nil {
		return nil, fmt.Errorf("counting inbox: %w", err)
	}
	if err := db.Model(&models.Message{}).
		Where("to_agent_id = ? AND status IN ?", id, []models.MessageStatus{models.MessageStatusQueued, models.MessageStatusDelivered}).
		Count(&report.InboxUnread).Error; err != nil {
		return nil, fmt.Errorf("counting unread: %w", err)
	}
	if err := db.Model(&models.Message{}).Where("from_agent_id = ?", id).Count(&report.SentTotal).Error; err != nil {
		return nil, fmt.Errorf("counting sent: %w", err)
	}
	return report, nil
}

// QuarantineAgent blocks all traffic from and to the agent until restored.
func (s *Service) QuarantineAgent(ctx context.Context, id string) (*models.Agent, error) {
	const op = "quarantine_agent"
	return s.changeAgent(ctx, op, id, func(a *models.Agent) (map[string]interface{}, error) {
		switch {
		case a.AgentType == models.AgentTypeHuman:
			return nil, invalidf(op, "agent_id", "Cannot quarantine the human principal")
		case a.Status == models.AgentStatusTerminated:
			return nil, statef(op, "Cannot quarantine terminated agent '%s'", a.Name)
		case a.Status == models.AgentStatusQuarantined:
			return nil, statef(op, "Agent '%s' is already quarantined", a.Name)
		}
		return map[string]interface{}{"status": models.AgentStatusQuarantined}, nil
	}, protocol.EventAgentQuarantined, "quarantined")
}

// RestoreAgent returns a quarantined agent to active status.
func (s *Service) RestoreAgent(ctx context.Context, id string) (*models.Agent, error) {
	const op = "restore_agent"
	return s.changeAgent(ctx, op, id, func(a *models.Agent) (map[string]interface{}, error) {
		switch a.Status {
		case models.AgentStatusTerminated:
			return nil, statef(op, "Cannot restore terminated agent '%s'", a.Name)
		case models.AgentStatusActive:
			return nil, statef(op, "Agent '%s' is already active", a.Name)
		}
		return map[string]interface{}{"status": models.AgentStatusActive}, nil
	}, protocol.EventAgentRestored, "")
}

// TerminateAgent permanently retires an agent. Every message it sent or
// received is archived and its private sessions are closed.
func (s *Service) TerminateAgent(ctx context.Context, id string) (*models.Agent, error) {
	const op = "terminate_agent"
	var out *models.Agent
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		a, err := s.loadAgent(tx, op, id)
		if err != nil {
			return err
		}
		if a.AgentType == models.AgentTypeHuman || a.AgentType == models.AgentTypeRightHand {
			return invalidf(op, "agent_id", "Cannot terminate %s agent", a.AgentType)
		}
		if a.Status == models.AgentStatusTerminated {
			return statef(op, "Agent '%s' is already terminated", a.Name)
		}

		res := tx.Model(&models.Message{}).
			Where("(from_agent_id = ? OR to_agent_id = ?) AND status <> ?", id, id, models.MessageStatusArchived).
			Update("status", models.MessageStatusArchived)
		if res.Error != nil {
			return fmt.Errorf("archiving messages: %w", res.Error)
		}

		var sessions []models.PrivateSession
		if err := tx.Where("agent_id = ? AND active = ?", id, true).Find(&sessions).Error; err != nil {
			return fmt.Errorf("loading sessions: %w", err)
		}
		for i := range sessions {
			if _, err := closeSession(tx, rec, &sessions[i], models.EndedBySystem); err != nil {
				return err
			}
		}

		previous := a.Status
		if err := updateAgent(tx, rec.now, id, map[string]interface{}{"status": models.AgentStatusTerminated}); err != nil {
			return err
		}
		alertID := s.alertStatusChange(tx, rec.now, a, "terminated")
		if err := rec.emit(protocol.EventAgentTerminated, id, map[string]interface{}{
			"name":              a.Name,
			"previous_status":   previous,
			"archived_messages": res.RowsAffected,
			"alert_message_id":  alertID,
		}); err != nil {
			return err
		}
		out, err = s.loadAgent(tx, op, id)
		return err
	})
	return out, err
}

// ActivateAgent deploys an inactive agent.
func (s *Service) ActivateAgent(ctx context.Context, id string) (*models.Agent, error) {
	const op = "activate_agent"
	return s.changeAgent(ctx, op, id, func(a *models.Agent) (map[string]interface{}, error) {
		if a.Status == models.AgentStatusTerminated {
			return nil, statef(op, "Cannot activate terminated agent '%s'", a.Name)
		}
		if a.Active {
			return nil, statef(op, "Agent '%s' is already active", a.Name)
		}
		return map[string]interface{}{"active": true}, nil
	}, protocol.EventAgentActivated, "")
}

// DeactivateAgent soft-disables an agent without quarantining it.
func (s *Service) DeactivateAgent(ctx context.Context, id string) (*models.Agent, error) {
	const op = "deactivate_agent"
	return s.changeAgent(ctx, op, id, func(a *models.Agent) (map[string]interface{}, error) {
		if a.AgentType == models.AgentTypeHuman || a.AgentType == models.AgentTypeRightHand {
			return nil, invalidf(op, "agent_id", "Cannot deactivate %s agent", a.AgentType)
		}
		if !a.Active {
			return nil, statef(op, "Agent '%s' is already inactive", a.Name)
		}
		return map[string]interface{}{"active": false}, nil
	}, protocol.EventAgentDeactivated, "deactivated")
}

// changeAgent applies a guarded column change to one agent and records the
// transition. A non-empty alert raises a status-change alert to the human.
func (s *Service) changeAgent(ctx context.Context, op, id string,
	guard func(a *models.Agent) (map[string]interface{}, error),
	eventType protocol.EventType, alert string) (*models.Agent, error) {

	var out *models.Agent
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		a, err := s.loadAgent(tx, op, id)
		if err != nil {
			return err
		}
		changes, err := guard(a)
		if err != nil {
			return err
		}
		if err := updateAgent(tx, rec.now, id, changes); err != nil {
			return err
		}

		details := map[string]interface{}{
			"name":            a.Name,
			"previous_status": a.Status,
			"previous_active": a.Active,
		}
		if alert != "" {
			details["alert_message_id"] = s.alertStatusChange(tx, rec.now, a, alert)
		}
		if err := rec.emit(eventType, id, details); err != nil {
			return err
		}
		out, err = s.loadAgent(tx, op, id)
		return err
	})
	return out, err
}

func updateAgent(tx *gorm.DB, now time.Time, id string, changes map[string]interface{}) error {
	changes["updated_at"] = now
	if err := tx.Model(&models.Agent{}).Where("id = ?", id).Updates(changes).Error; err != nil {
		return fmt.Errorf("updating agent %s: %w", id, err)
	}
	return nil
}

// alertStatusChange drops a high-priority alert from the Crew Boss into the
// human's inbox. It never fails the surrounding operation; the insert runs
// in a savepoint and errors are only logged. Returns the message id or "".
func (s *Service) alertStatusChange(tx *gorm.DB, now time.Time, a *models.Agent, action string) string {
	var human, boss models.Agent
	if err := tx.Where("agent_type = ?", models.AgentTypeHuman).First(&human).Error; err != nil {
		return ""
	}
	if err := tx.Where("agent_type = ? AND status = ?", models.AgentTypeRightHand, models.AgentStatusActive).
		First(&boss).Error; err != nil {
		return ""
	}
	if boss.ID == a.ID {
		return ""
	}

	team := ""
	if a.ParentAgentID != nil {
		var parent models.Agent
		if err := tx.First(&parent, "id = ?", *a.ParentAgentID).Error; err == nil {
			team = fmt.Sprintf(" from the %s team", strings.TrimSuffix(parent.Name, "-Manager"))
		}
	}

	msg := models.Message{
		ID:          uuid.New().String(),
		FromAgentID: boss.ID,
		ToAgentID:   human.ID,
		MessageType: models.MessageTypeAlert,
		Subject:     "Agent " + action,
		Body:        fmt.Sprintf("%s has been %s%s.", a.Name, action, team),
		Priority:    models.PriorityHigh,
		Status:      models.MessageStatusDelivered,
		CreatedAt:   now,
		DeliveredAt: &now,
	}
	if err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&msg).Error }); err != nil {
		s.logger.Warn("status change alert failed", "agent", a.Name, "action", action, "error", err)
		return ""
	}
	return msg.ID
}
