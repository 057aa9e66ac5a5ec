package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// MailboxRequest posts to the sender's team mailbox.
type MailboxRequest struct {
	FromAgentID string                 `json:"from_agent_id"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	Severity    models.MailboxSeverity `json:"severity"`
}

// MailboxView is a mailbox entry with the sender's name.
type MailboxView struct {
	models.MailboxEntry
	FromAgentName string `json:"from_agent_name"`
}

// MailboxSummary counts the unread entries of a team mailbox.
type MailboxSummary struct {
	TeamID         string                  `json:"team_id"`
	UnreadCount    int64                   `json:"unread_count"`
	CodeRedCount   int64                   `json:"code_red_count"`
	WarningCount   int64                   `json:"warning_count"`
	LatestSeverity *models.MailboxSeverity `json:"latest_severity"`
}

// SendToTeamMailbox drops an entry in the sender's team mailbox. It bypasses
// routing but each agent is limited to a few entries per window.
func (s *Service) SendToTeamMailbox(ctx context.Context, req MailboxRequest) (*models.MailboxEntry, error) {
	const op = "send_to_team_mailbox"
	if req.Severity == "" {
		req.Severity = models.SeverityInfo
	}
	if !req.Severity.Valid() {
		return nil, invalidf(op, "severity", "Invalid severity '%s'", req.Severity)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, invalidf(op, "subject", "Mailbox subject is required")
	}

	var out models.MailboxEntry
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		sender, err := s.loadAgent(tx, op, req.FromAgentID)
		if err != nil {
			return err
		}
		if sender.Status == models.AgentStatusTerminated {
			return statef(op, "Agent '%s' is terminated", sender.Name)
		}
		team, err := teamOf(tx, op, sender)
		if err != nil {
			return err
		}

		var sent int64
		err = tx.Model(&models.MailboxEntry{}).
			Where("from_agent_id = ? AND created_at > ?", sender.ID, rec.now.Add(-s.mailboxWindow)).
			Count(&sent).Error
		if err != nil {
			return fmt.Errorf("counting mailbox entries: %w", err)
		}
		if int(sent) >= s.mailboxLimit {
			return &RateLimitError{Msg: fmt.Sprintf("Rate limit: %s has sent %d/%d mailbox messages in the last %.0fh",
				sender.Name, sent, s.mailboxLimit, s.mailboxWindow.Hours())}
		}

		out = models.MailboxEntry{
			ID:          uuid.New().String(),
			TeamID:      team.ID,
			FromAgentID: sender.ID,
			Severity:    req.Severity,
			Subject:     req.Subject,
			Body:        req.Body,
			CreatedAt:   rec.now,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("inserting mailbox entry: %w", err)
		}
		return rec.emit(protocol.EventMailboxMessage, sender.ID, map[string]interface{}{
			"team_id":       team.ID,
			"from_agent_id": sender.ID,
			"severity":      req.Severity,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTeamMailbox lists a team's mailbox newest first.
func (s *Service) GetTeamMailbox(ctx context.Context, teamID string, unreadOnly bool, limit int) ([]MailboxView, error) {
	q := s.read(ctx).Model(&models.MailboxEntry{}).
		Select("mailbox_entries.*, agents.name AS from_agent_name").
		Joins("LEFT JOIN agents ON agents.id = mailbox_entries.from_agent_id").
		Where("mailbox_entries.team_id = ?", teamID)
	if unreadOnly {
		q = q.Where("mailbox_entries.read = ?", false)
	}

	var out []MailboxView
	if err := q.Order("mailbox_entries.created_at DESC").Limit(clampLimit(limit, 50)).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("loading mailbox: %w", err)
	}
	return out, nil
}

// MarkMailboxRead marks one entry read. It reports false when the entry was
// already read.
func (s *Service) MarkMailboxRead(ctx context.Context, entryID string) (bool, error) {
	const op = "mark_mailbox_read"
	var changed bool
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var e models.MailboxEntry
		if err := tx.Select("id", "team_id").First(&e, "id = ?", entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf(op, "entry_id", "Mailbox entry id=%s not found", entryID)
			}
			return fmt.Errorf("loading mailbox entry: %w", err)
		}
		res := tx.Model(&models.MailboxEntry{}).
			Where("id = ? AND read = ?", entryID, false).
			Update("read", true)
		if res.Error != nil {
			return fmt.Errorf("marking mailbox entry read: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return rec.emit(protocol.EventMailboxRead, e.TeamID, map[string]interface{}{
			"entry_id": entryID,
			"team_id":  e.TeamID,
		})
	})
	return changed, err
}

// GetTeamMailboxSummary counts unread entries by severity.
func (s *Service) GetTeamMailboxSummary(ctx context.Context, teamID string) (*MailboxSummary, error) {
	var rows []struct {
		Severity models.MailboxSeverity
		Count    int64
	}
	err := s.read(ctx).Model(&models.MailboxEntry{}).
		Select("severity, COUNT(*) AS count").
		Where("team_id = ? AND read = ?", teamID, false).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarizing mailbox: %w", err)
	}

	sum := &MailboxSummary{TeamID: teamID}
	for _, r := range rows {
		sum.UnreadCount += r.Count
		switch r.Severity {
		case models.SeverityCodeRed:
			sum.CodeRedCount = r.Count
		case models.SeverityWarning:
			sum.WarningCount = r.Count
		}
	}
	for _, sev := range []models.MailboxSeverity{models.SeverityCodeRed, models.SeverityWarning, models.SeverityInfo} {
		for _, r := range rows {
			if r.Severity == sev && r.Count > 0 {
				sev := sev
				sum.LatestSeverity = &sev
				return sum, nil
			}
		}
	}
	return sum, nil
}

// teamOf resolves the team (manager) an agent belongs to.
func teamOf(tx *gorm.DB, op string, a *models.Agent) (*models.Agent, error) {
	if a.AgentType == models.AgentTypeManager {
		return a, nil
	}
	if a.ParentAgentID == nil {
		return nil, invalidf(op, "from_agent_id", "Agent '%s' is not part of a team", a.Name)
	}
	var parent models.Agent
	if err := tx.First(&parent, "id = ?", *a.ParentAgentID).Error; err != nil {
		return nil, fmt.Errorf("loading parent of %s: %w", a.Name, err)
	}
	if parent.AgentType == models.AgentTypeRightHand {
		return nil, invalidf(op, "from_agent_id", "Agent '%s' is core crew, not in a team. Use normal messaging.", a.Name)
	}
	return &parent, nil
}
