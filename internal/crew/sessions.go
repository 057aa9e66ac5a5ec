package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
	"github.com/helmcode/crew-bus/internal/routing"
)

// StartSessionRequest opens a private session. Empty Channel and nil
// TimeoutMinutes take the service defaults.
type StartSessionRequest struct {
	HumanID        string `json:"human_id"`
	AgentID        string `json:"agent_id"`
	Channel        string `json:"channel"`
	TimeoutMinutes *int   `json:"timeout_minutes"`
}

// EndSessionResult reports the outcome of EndPrivateSession.
type EndSessionResult struct {
	SessionID    string `json:"session_id"`
	AlreadyEnded bool   `json:"already_ended"`
}

// StartPrivateSession opens a private channel between the human and one
// agent. An unexpired active session for the pair is returned unchanged;
// an expired one is closed and replaced.
func (s *Service) StartPrivateSession(ctx context.Context, req StartSessionRequest) (*models.PrivateSession, error) {
	const op = "start_private_session"
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = s.sessionChannel
	}
	timeout := s.sessionTimeout
	if req.TimeoutMinutes != nil {
		timeout = *req.TimeoutMinutes
	}
	if timeout < 0 {
		return nil, invalidf(op, "timeout_minutes", "Timeout must not be negative, got %d", timeout)
	}

	var out models.PrivateSession
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		human, err := s.loadHuman(tx, op, req.HumanID)
		if err != nil {
			return err
		}
		agent, err := s.loadAgent(tx, op, req.AgentID)
		if err != nil {
			return err
		}
		if agent.ID == human.ID {
			return invalidf(op, "agent_id", "A private session needs an agent other than the human")
		}
		if agent.Status == models.AgentStatusTerminated {
			return statef(op, "Cannot open a private session with terminated agent '%s'", agent.Name)
		}

		var existing models.PrivateSession
		err = tx.Where("human_id = ? AND agent_id = ? AND active = ?", human.ID, agent.ID, true).First(&existing).Error
		switch {
		case err == nil && !existing.Expired(rec.now):
			out = existing
			return nil
		case err == nil:
			if _, err := closeSession(tx, rec, &existing, models.EndedByTimeout); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("looking up session: %w", err)
		}

		out = models.PrivateSession{
			ID:             uuid.New().String(),
			HumanID:        human.ID,
			AgentID:        agent.ID,
			Channel:        channel,
			StartedAt:      rec.now,
			LastActivityAt: rec.now,
			ExpiresAt:      rec.now.Add(time.Duration(timeout) * time.Minute),
			TimeoutMinutes: timeout,
			Active:         true,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return rec.emit(protocol.EventSessionStarted, human.ID, map[string]interface{}{
			"session_id": out.ID,
			"agent_id":   agent.ID,
			"channel":    channel,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendPrivateMessage posts text into an open session. The session itself is
// the authorization; routing rules are not consulted. Each message slides
// the session's expiry to now + timeout.
func (s *Service) SendPrivateMessage(ctx context.Context, sessionID, fromID, text string) (*models.Message, error) {
	const op = "send_private_message"
	if strings.TrimSpace(text) == "" {
		return nil, invalidf(op, "text", "Message text is required")
	}

	var (
		out     *models.Message
		outcome error
	)
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var sess models.PrivateSession
		if err := tx.First(&sess, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return statef(op, "No active session %s", sessionID)
			}
			return fmt.Errorf("loading session: %w", err)
		}
		if !sess.Active {
			return statef(op, "No active session %s", sessionID)
		}
		if fromID != sess.HumanID && fromID != sess.AgentID {
			return s.denyPrivate(rec, &sess, fromID, "Sender is not part of this private session", &outcome)
		}
		if sess.Expired(rec.now) {
			if _, err := closeSession(tx, rec, &sess, models.EndedByTimeout); err != nil {
				return err
			}
			outcome = statef(op, "Session has expired")
			return nil
		}

		sender, err := s.loadAgent(tx, op, fromID)
		if err != nil {
			return err
		}
		if sender.Status != models.AgentStatusActive {
			return s.denyPrivate(rec, &sess, fromID, fmt.Sprintf("Sender is %s", sender.Status), &outcome)
		}

		res := tx.Model(&models.PrivateSession{}).
			Where("id = ? AND active = ?", sess.ID, true).
			Updates(map[string]interface{}{
				"last_activity_at": rec.now,
				"message_count":    gorm.Expr("message_count + 1"),
				"expires_at":       rec.now.Add(time.Duration(sess.TimeoutMinutes) * time.Minute),
			})
		if res.Error != nil {
			return fmt.Errorf("extending session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return statef(op, "No active session %s", sessionID)
		}

		to := sess.HumanID
		if fromID == sess.HumanID {
			to = sess.AgentID
		}
		sid := sess.ID
		msg := models.Message{
			ID:               uuid.New().String(),
			FromAgentID:      fromID,
			ToAgentID:        to,
			MessageType:      models.MessageTypeReport,
			Subject:          "Private message",
			Body:             text,
			Priority:         models.PriorityNormal,
			Status:           models.MessageStatusQueued,
			PrivateSessionID: &sid,
			CreatedAt:        rec.now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("inserting private message: %w", err)
		}
		out = &msg

		return rec.emit(protocol.EventPrivateMessage, sess.HumanID, map[string]interface{}{
			"session_id": sess.ID,
			"message_id": msg.ID,
			"from":       fromID,
			"to":         to,
			"channel":    sess.Channel,
		})
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	return out, nil
}

// denyPrivate audits a refused private send and stores the permission error
// in outcome so the audit row commits.
func (s *Service) denyPrivate(rec *recorder, sess *models.PrivateSession, fromID, reason string, outcome *error) error {
	d := routing.Deny(routing.StepPrivateSession, reason)
	if err := rec.emit(protocol.EventMessageAttempt, fromID, map[string]interface{}{
		"session_id": sess.ID,
		"channel":    sess.Channel,
		"routing":    d,
	}); err != nil {
		return err
	}
	*outcome = blocked(reason, d)
	return nil
}

// EndPrivateSession closes a session. Ending an already-ended session
// succeeds with AlreadyEnded set.
func (s *Service) EndPrivateSession(ctx context.Context, sessionID string, endedBy models.SessionEnder) (*EndSessionResult, error) {
	const op = "end_private_session"
	if endedBy == "" {
		endedBy = models.EndedByHuman
	}
	if !endedBy.Valid() {
		return nil, invalidf(op, "ended_by", "Invalid ended_by '%s'", endedBy)
	}

	result := &EndSessionResult{SessionID: sessionID}
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var sess models.PrivateSession
		if err := tx.First(&sess, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return statef(op, "Session %s not found", sessionID)
			}
			return fmt.Errorf("loading session: %w", err)
		}
		closed, err := closeSession(tx, rec, &sess, endedBy)
		if err != nil {
			return err
		}
		result.AlreadyEnded = !closed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetActivePrivateSession returns the pair's active session, or nil. An
// expired session is closed first and reported as absent.
func (s *Service) GetActivePrivateSession(ctx context.Context, humanID, agentID string) (*models.PrivateSession, error) {
	var out *models.PrivateSession
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var sess models.PrivateSession
		err := tx.Where("human_id = ? AND agent_id = ? AND active = ?", humanID, agentID, true).First(&sess).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("looking up session: %w", err)
		}
		if sess.Expired(rec.now) {
			_, err := closeSession(tx, rec, &sess, models.EndedByTimeout)
			return err
		}
		out = &sess
		return nil
	})
	return out, err
}

// GetPrivateSession returns a session by id in whatever state it is in.
func (s *Service) GetPrivateSession(ctx context.Context, sessionID string) (*models.PrivateSession, error) {
	var sess models.PrivateSession
	if err := s.read(ctx).First(&sess, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("get_private_session", "session_id", "Session %s not found", sessionID)
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return &sess, nil
}

// CleanupExpiredSessions closes every active session past its expiry and
// returns how many were closed.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	closed := 0
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		closed = 0
		var sessions []models.PrivateSession
		if err := tx.Where("active = ?", true).Find(&sessions).Error; err != nil {
			return fmt.Errorf("loading active sessions: %w", err)
		}
		for i := range sessions {
			if !sessions[i].Expired(rec.now) {
				continue
			}
			ok, err := closeSession(tx, rec, &sessions[i], models.EndedByTimeout)
			if err != nil {
				return err
			}
			if ok {
				closed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.logger.Debug("expired private sessions closed", "count", closed)
	}
	return closed, nil
}

// hasActiveSession reports whether an unexpired session joins a and b in
// either direction, closing it first if it has expired.
func hasActiveSession(tx *gorm.DB, rec *recorder, a, b string) (bool, error) {
	var sessions []models.PrivateSession
	if err := tx.Where("active = ? AND ((human_id = ? AND agent_id = ?) OR (human_id = ? AND agent_id = ?))",
		true, a, b, b, a).Find(&sessions).Error; err != nil {
		return false, fmt.Errorf("looking up sessions: %w", err)
	}
	found := false
	for i := range sessions {
		if sessions[i].Expired(rec.now) {
			if _, err := closeSession(tx, rec, &sessions[i], models.EndedByTimeout); err != nil {
				return false, err
			}
			continue
		}
		found = true
	}
	return found, nil
}

// closeSession marks an active session ended. It reports false without
// recording anything when another caller already closed it.
func closeSession(tx *gorm.DB, rec *recorder, sess *models.PrivateSession, endedBy models.SessionEnder) (bool, error) {
	res := tx.Model(&models.PrivateSession{}).
		Where("id = ? AND active = ?", sess.ID, true).
		Updates(map[string]interface{}{"active": false, "ended_by": endedBy, "ended_at": rec.now})
	if res.Error != nil {
		return false, fmt.Errorf("closing session %s: %w", sess.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	sess.Active = false
	sess.EndedBy = endedBy
	now := rec.now
	sess.EndedAt = &now

	minutes := int(rec.now.Sub(sess.StartedAt) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return true, rec.emit(protocol.EventSessionEnded, sess.HumanID, map[string]interface{}{
		"session_id":       sess.ID,
		"duration_minutes": minutes,
		"message_count":    sess.MessageCount,
		"ended_by":         endedBy,
	})
}
