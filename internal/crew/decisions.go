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

// DecisionRequest records one Crew Boss decision.
type DecisionRequest struct {
	RightHandID string                 `json:"right_hand_id"`
	HumanID     string                 `json:"human_id"`
	Type        models.DecisionType    `json:"decision_type"`
	Context     map[string]interface{} `json:"context"`
	Action      string                 `json:"action"`
	Reasoning   string                 `json:"reasoning"`
	PatternTags []string               `json:"pattern_tags"`
}

// DecisionView is a decision with the participants' names.
type DecisionView struct {
	models.DecisionLog
	RightHandName string `json:"rh_name"`
	HumanName     string `json:"human_name"`
}

// DecisionFilter narrows GetDecisionHistory.
type DecisionFilter struct {
	HumanID string
	Type    models.DecisionType
	Limit   int
}

// LogDecision appends a decision to the log for later feedback.
func (s *Service) LogDecision(ctx context.Context, req DecisionRequest) (*models.DecisionLog, error) {
	const op = "log_decision"
	if !req.Type.Valid() {
		return nil, invalidf(op, "decision_type", "Invalid decision_type '%s'", req.Type)
	}
	if strings.TrimSpace(req.Action) == "" {
		return nil, invalidf(op, "action", "Decision action is required")
	}
	if req.Context == nil {
		req.Context = map[string]interface{}{}
	}
	if req.PatternTags == nil {
		req.PatternTags = []string{}
	}

	var out models.DecisionLog
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		rh, err := s.loadAgent(tx, op, req.RightHandID)
		if err != nil {
			return err
		}
		if rh.AgentType != models.AgentTypeRightHand {
			return invalidf(op, "right_hand_id", "Agent '%s' is not a right_hand", rh.Name)
		}
		if _, err := s.loadHuman(tx, op, req.HumanID); err != nil {
			return err
		}

		out = models.DecisionLog{
			ID:           uuid.New().String(),
			RightHandID:  rh.ID,
			HumanID:      req.HumanID,
			DecisionType: req.Type,
			Context:      models.MustJSON(req.Context),
			Action:       req.Action,
			Reasoning:    req.Reasoning,
			PatternTags:  models.MustJSON(req.PatternTags),
			CreatedAt:    rec.now,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("inserting decision: %w", err)
		}
		return rec.emit(protocol.EventDecisionLogged, rh.ID, map[string]interface{}{
			"decision_id": out.ID,
			"type":        req.Type,
			"action":      req.Action,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordHumanFeedback stores the human's verdict on a decision. Feedback
// can be given once. Overriding an idea filter teaches the knowledge store
// a rejection pattern.
func (s *Service) RecordHumanFeedback(ctx context.Context, decisionID string, override bool, humanAction, note string) error {
	const op = "record_human_feedback"
	return s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		var d models.DecisionLog
		if err := tx.First(&d, "id = ?", decisionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf(op, "decision_id", "Decision id=%s not found", decisionID)
			}
			return fmt.Errorf("loading decision: %w", err)
		}

		res := tx.Model(&models.DecisionLog{}).
			Where("id = ? AND human_override IS NULL", decisionID).
			Updates(map[string]interface{}{
				"human_override": override,
				"human_action":   humanAction,
				"feedback_note":  note,
				"feedback_at":    rec.now,
			})
		if res.Error != nil {
			return fmt.Errorf("recording feedback: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return statef(op, "Feedback for decision %s was already recorded", decisionID)
		}

		if err := rec.emit(protocol.EventFeedbackRecorded, d.HumanID, map[string]interface{}{
			"decision_id":  decisionID,
			"override":     override,
			"human_action": humanAction,
			"note":         note,
		}); err != nil {
			return err
		}

		if !override || d.DecisionType != models.DecisionFilter {
			return nil
		}
		var dctx map[string]interface{}
		if err := d.Context.Decode(&dctx); err != nil || dctx["message_type"] != string(models.MessageTypeIdea) {
			return nil
		}

		subject, _ := dctx["subject"].(string)
		if subject == "" {
			subject = "unknown"
		}
		tags, _ := dctx["tags"].(string)
		_, err := storeKnowledge(tx, rec, KnowledgeRequest{
			AgentID:  d.RightHandID,
			Category: models.KnowledgeRejection,
			Subject:  "Human overrode filter on idea: " + subject,
			Content: map[string]interface{}{
				"decision_id":  decisionID,
				"context":      dctx,
				"human_action": humanAction,
			},
			Tags: tags,
		})
		return err
	})
}

// GetDecisionHistory returns decisions newest first.
func (s *Service) GetDecisionHistory(ctx context.Context, f DecisionFilter) ([]DecisionView, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, invalidf("get_decision_history", "decision_type", "Invalid decision_type '%s'", f.Type)
	}
	q := s.read(ctx).Model(&models.DecisionLog{}).
		Select("decision_logs.*, rh.name AS right_hand_name, h.name AS human_name").
		Joins("JOIN agents rh ON rh.id = decision_logs.right_hand_id").
		Joins("JOIN agents h ON h.id = decision_logs.human_id")
	if f.HumanID != "" {
		q = q.Where("decision_logs.human_id = ?", f.HumanID)
	}
	if f.Type != "" {
		q = q.Where("decision_logs.decision_type = ?", f.Type)
	}

	var out []DecisionView
	if err := q.Order("decision_logs.created_at DESC").Limit(clampLimit(f.Limit, 20)).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("loading decision history: %w", err)
	}
	return out, nil
}
