package crew

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
	"github.com/helmcode/crew-bus/internal/routing"
)

// SendRequest describes one routed message.
type SendRequest struct {
	FromID   string             `json:"from_id"`
	ToID     string             `json:"to_id"`
	Type     models.MessageType `json:"message_type"`
	Subject  string             `json:"subject"`
	Body     string             `json:"body"`
	Priority models.Priority    `json:"priority"`
}

// SendResult is returned for an accepted message.
type SendResult struct {
	MessageID       string           `json:"message_id"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	Routing         routing.Decision `json:"routing"`
	RequireApproval bool             `json:"require_approval"`
}

// InboxMessage is a message annotated with its sender.
type InboxMessage struct {
	models.Message
	FromName      string           `json:"from_name"`
	FromRole      models.Role      `json:"from_role"`
	FromAgentType models.AgentType `json:"from_agent_type"`
}

// SendMessage routes a message from one agent to another. The attempt is
// audited whether or not routing allows it; a denial is committed to the
// audit trail and then returned as a *PermissionError.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	const op = "send_message"
	if !req.Type.Valid() {
		return nil, invalidf(op, "message_type", "Invalid message_type '%s'", req.Type)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, invalidf(op, "priority", "Invalid priority '%s'", req.Priority)
	}

	var (
		result *SendResult
		denied error
	)
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		sender, err := s.loadAgent(tx, op, req.FromID)
		if err != nil {
			return err
		}
		recipient, err := s.loadAgent(tx, op, req.ToID)
		if err != nil {
			return err
		}

		d, err := s.resolve(tx, rec, sender, recipient)
		if err != nil {
			return err
		}

		switch {
		case d.Allowed && sender.Status != models.AgentStatusActive:
			// A session bypasses routing but never revives a quarantined sender.
			d = routing.Deny(routing.StepLiveness, fmt.Sprintf("Sender is %s", sender.Status))
		case d.Allowed && d.Step != routing.StepPrivateSession &&
			sender.AgentType == models.AgentTypeWellness && recipient.AgentType == models.AgentTypeHuman &&
			req.Priority != models.PriorityCritical:
			d = routing.Deny(routing.StepWellnessCritical, "Wellness can only message human with critical priority")
		}

		if err := rec.emit(protocol.EventMessageAttempt, sender.ID, map[string]interface{}{
			"to":       recipient.ID,
			"type":     req.Type,
			"subject":  req.Subject,
			"priority": req.Priority,
			"routing":  d,
		}); err != nil {
			return err
		}

		if !d.Allowed {
			s.logger.Debug("message blocked", "from", sender.Name, "to", recipient.Name, "step", d.Step)
			denied = blocked(fmt.Sprintf("Message blocked: %s (%s) -> %s (%s): %s",
				sender.Name, sender.AgentType, recipient.Name, recipient.AgentType, d.Reason), d)
			return nil
		}

		msg := models.Message{
			ID:          uuid.New().String(),
			FromAgentID: sender.ID,
			ToAgentID:   recipient.ID,
			MessageType: req.Type,
			Subject:     req.Subject,
			Body:        req.Body,
			Priority:    req.Priority,
			Status:      models.MessageStatusQueued,
			CreatedAt:   rec.now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		result = &SendResult{
			MessageID:       msg.ID,
			From:            sender.Name,
			To:              recipient.Name,
			Routing:         d,
			RequireApproval: d.RequireApproval,
		}
		return rec.emit(protocol.EventMessageSent, sender.ID, map[string]interface{}{
			"message_id": msg.ID,
			"to":         recipient.ID,
			"type":       req.Type,
			"priority":   req.Priority,
		})
	})
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return nil, denied
	}
	return result, nil
}

// ReadInbox returns messages addressed to the agent, newest first,
// optionally restricted to one status.
func (s *Service) ReadInbox(ctx context.Context, agentID string, status models.MessageStatus) ([]InboxMessage, error) {
	const op = "read_inbox"
	if status != "" && !status.Valid() {
		return nil, invalidf(op, "status", "Invalid status filter '%s'", status)
	}
	db := s.read(ctx)
	if _, err := s.loadAgent(db, op, agentID); err != nil {
		return nil, err
	}

	q := db.Model(&models.Message{}).
		Select("messages.*, agents.name AS from_name, agents.role AS from_role, agents.agent_type AS from_agent_type").
		Joins("JOIN agents ON agents.id = messages.from_agent_id").
		Where("messages.to_agent_id = ?", agentID)
	if status != "" {
		q = q.Where("messages.status = ?", status)
	}

	var out []InboxMessage
	if err := q.Order("messages.created_at DESC").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}
	return out, nil
}

// MarkRead moves a queued or delivered message to read. The boolean reports
// whether this call changed the message: marking an already read or
// archived message is a no-op that returns false, keeps the original
// read_at and emits no event.
func (s *Service) MarkRead(ctx context.Context, messageID string) (bool, error) {
	return s.advanceMessage(ctx, "mark_read", messageID, models.MessageStatusRead,
		[]models.MessageStatus{models.MessageStatusQueued, models.MessageStatusDelivered}, "read_at",
		protocol.EventMessageRead)
}

// MarkDelivered moves a queued message to delivered. It reports false when
// the message had already left the queue.
func (s *Service) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	return s.advanceMessage(ctx, "mark_delivered", messageID, models.MessageStatusDelivered,
		[]models.MessageStatus{models.MessageStatusQueued}, "delivered_at",
		protocol.EventMessageDelivered)
}

func (s *Service) advanceMessage(ctx context.Context, op, id string, to models.MessageStatus,
	from []models.MessageStatus, stampColumn string, eventType protocol.EventType) (bool, error) {

	updated := false
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var msg models.Message
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf(op, "message_id", "Message id=%s not found", id)
			}
			return fmt.Errorf("loading message: %w", err)
		}

		res := tx.Model(&models.Message{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(map[string]interface{}{"status": to, stampColumn: rec.now})
		if res.Error != nil {
			return fmt.Errorf("updating message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		return rec.emit(eventType, msg.ToAgentID, map[string]interface{}{
			"message_id":      id,
			"previous_status": msg.Status,
		})
	})
	return updated, err
}
