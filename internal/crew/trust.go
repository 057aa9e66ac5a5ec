package crew

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// Autonomy tiers.
const (
	LevelObserver     = "observer"
	LevelAssistant    = "assistant"
	LevelOperator     = "operator"
	LevelChiefOfStaff = "chief_of_staff"
)

// Recommendations need at least this many logged decisions.
const minDecisionsForRecommendation = 20

// Abilities are the capability flags of an autonomy tier.
type Abilities struct {
	DeliverAllMessages bool `json:"deliver_all_messages"`
	MakeDecisions      bool `json:"make_decisions"`
	RespondOnBehalf    bool `json:"respond_on_behalf"`
	FilterIdeas        bool `json:"filter_ideas"`
	HandleEscalations  bool `json:"handle_escalations"`
	SendCommunications bool `json:"send_communications"`
	ManageBudget       bool `json:"manage_budget"`
}

// AutonomyLevel is the Crew Boss's current tier plus its track record.
type AutonomyLevel struct {
	RightHand        string    `json:"right_hand"`
	TrustScore       int       `json:"trust_score"`
	Level            string    `json:"level"`
	Description      string    `json:"description"`
	Abilities        Abilities `json:"abilities"`
	TotalDecisions   int64     `json:"total_decisions"`
	Overrides        int64     `json:"overrides"`
	AccuracyPct      float64   `json:"accuracy_pct"`
	RecommendedScore int       `json:"recommended_score,omitempty"`
	Recommendation   string    `json:"trust_recommendation,omitempty"`
}

type tier struct {
	max         int
	level       string
	description string
	abilities   Abilities
}

var tiers = []tier{
	{3, LevelObserver, "New relationship. Delivers everything to human. Cannot make decisions.",
		Abilities{DeliverAllMessages: true}},
	{6, LevelAssistant, "Building trust. Handles routine, escalates novel situations.",
		Abilities{DeliverAllMessages: true, MakeDecisions: true, FilterIdeas: true, HandleEscalations: true}},
	{8, LevelOperator, "Trusted operator. Makes operational decisions, drafts communications.",
		Abilities{DeliverAllMessages: true, MakeDecisions: true, RespondOnBehalf: true, FilterIdeas: true,
			HandleEscalations: true, SendCommunications: true, ManageBudget: true}},
	{10, LevelChiefOfStaff, "Full autonomy. Human gets briefings only. Handles everything.",
		Abilities{MakeDecisions: true, RespondOnBehalf: true, FilterIdeas: true,
			HandleEscalations: true, SendCommunications: true, ManageBudget: true}},
}

func tierFor(score int) tier {
	for _, t := range tiers {
		if score <= t.max {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

func checkScore(op, field, label string, score int) error {
	if score < 1 || score > 10 {
		return invalidf(op, field, "%s score must be 1-10, got %d", label, score)
	}
	return nil
}

// UpdateTrustScore sets the Crew Boss trust score. id may name the
// right_hand itself or the human it serves. The score lives on the
// right_hand row, never on the human.
func (s *Service) UpdateTrustScore(ctx context.Context, id string, score int) error {
	const op = "update_trust_score"
	if err := checkScore(op, "trust_score", "Trust", score); err != nil {
		return err
	}
	return s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		a, err := s.loadAgent(tx, op, id)
		if err != nil {
			return err
		}
		rh := a
		switch a.AgentType {
		case models.AgentTypeRightHand:
		case models.AgentTypeHuman:
			var found models.Agent
			if err := tx.Where("parent_agent_id = ? AND agent_type = ?", a.ID, models.AgentTypeRightHand).
				First(&found).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundf(op, "human_id", "No Crew Boss agent found for human id=%s", a.ID)
				}
				return fmt.Errorf("looking up Crew Boss: %w", err)
			}
			rh = &found
		default:
			return invalidf(op, "agent_id", "Agent '%s' is not a right_hand or human", a.Name)
		}

		if err := updateAgent(tx, rec.now, rh.ID, map[string]interface{}{"trust_score": score}); err != nil {
			return err
		}
		if err := tx.Model(&models.TrustConfig{}).Where("right_hand_id = ?", rh.ID).
			Updates(map[string]interface{}{"trust_score": score, "updated_at": rec.now}).Error; err != nil {
			return fmt.Errorf("syncing trust config: %w", err)
		}

		human := ""
		if rh.ParentAgentID != nil {
			human = *rh.ParentAgentID
		}
		return rec.emit(protocol.EventTrustScoreUpdated, rh.ID, map[string]interface{}{
			"human_id":  human,
			"old_score": rh.TrustScore,
			"new_score": score,
		})
	})
}

// UpdateBurnoutScore sets the human's burnout score.
func (s *Service) UpdateBurnoutScore(ctx context.Context, humanID string, score int) error {
	const op = "update_burnout_score"
	if err := checkScore(op, "burnout_score", "Burnout", score); err != nil {
		return err
	}
	return s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		human, err := s.loadHuman(tx, op, humanID)
		if err != nil {
			return err
		}
		if err := updateAgent(tx, rec.now, human.ID, map[string]interface{}{"burnout_score": score}); err != nil {
			return err
		}
		if err := tx.Model(&models.HumanState{}).Where("human_id = ?", human.ID).
			Updates(map[string]interface{}{"burnout_score": score, "updated_at": rec.now}).Error; err != nil {
			return fmt.Errorf("syncing human state: %w", err)
		}
		return rec.emit(protocol.EventBurnoutScoreUpdated, human.ID, map[string]interface{}{
			"old_score": human.BurnoutScore,
			"new_score": score,
		})
	})
}

// GetAutonomyLevel maps the Crew Boss trust score onto its autonomy tier and
// recommends a one-step adjustment once enough decisions have been judged.
func (s *Service) GetAutonomyLevel(ctx context.Context, rightHandID string) (*AutonomyLevel, error) {
	const op = "get_autonomy_level"
	db := s.read(ctx)
	rh, err := s.loadAgent(db, op, rightHandID)
	if err != nil {
		return nil, err
	}
	if rh.AgentType != models.AgentTypeRightHand {
		return nil, invalidf(op, "right_hand_id", "Agent '%s' is not a right_hand", rh.Name)
	}

	var total, overrides int64
	if err := db.Model(&models.DecisionLog{}).Where("right_hand_id = ?", rh.ID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}
	if err := db.Model(&models.DecisionLog{}).Where("right_hand_id = ? AND human_override = ?", rh.ID, true).
		Count(&overrides).Error; err != nil {
		return nil, fmt.Errorf("counting overrides: %w", err)
	}

	t := tierFor(rh.TrustScore)
	lvl := &AutonomyLevel{
		RightHand:      rh.Name,
		TrustScore:     rh.TrustScore,
		Level:          t.level,
		Description:    t.description,
		Abilities:      t.abilities,
		TotalDecisions: total,
		Overrides:      overrides,
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(total-overrides) / float64(total) * 100
	}
	lvl.AccuracyPct = math.Round(accuracy*10) / 10

	if total >= minDecisionsForRecommendation {
		switch {
		case accuracy >= 95 && rh.TrustScore < 10:
			lvl.RecommendedScore = rh.TrustScore + 1
			lvl.Recommendation = fmt.Sprintf("Consider increasing trust to %d: %.0f%% accuracy over %d decisions",
				lvl.RecommendedScore, accuracy, total)
		case accuracy < 70 && rh.TrustScore > 1:
			lvl.RecommendedScore = rh.TrustScore - 1
			lvl.Recommendation = fmt.Sprintf("Consider decreasing trust to %d: %.0f%% accuracy over %d decisions",
				lvl.RecommendedScore, accuracy, total)
		}
	}
	return lvl, nil
}

// TrustConfigRequest creates or replaces the human/Crew Boss relationship
// settings.
type TrustConfigRequest struct {
	HumanID             string                 `json:"human_id"`
	RightHandID         string                 `json:"right_hand_id"`
	TrustScore          int                    `json:"trust_score"`
	AutonomyRules       map[string]interface{} `json:"autonomy_rules"`
	EscalationOverrides []string               `json:"escalation_overrides"`
	UpdatedBy           string                 `json:"updated_by"`
}

// escalationOverrides is the closed set of recognized override flags.
var escalationOverrides = []string{models.EscalationDirectSecurityFeed}

// SetTrustConfig upserts the trust config for the pair and syncs the trust
// score onto the right_hand agent.
func (s *Service) SetTrustConfig(ctx context.Context, req TrustConfigRequest) (*models.TrustConfig, error) {
	const op = "set_trust_config"
	if req.TrustScore == 0 {
		req.TrustScore = 1
	}
	if err := checkScore(op, "trust_score", "Trust", req.TrustScore); err != nil {
		return nil, err
	}
	overrides := make([]string, 0, len(req.EscalationOverrides))
	for _, o := range req.EscalationOverrides {
		norm := strings.ToLower(strings.TrimSpace(o))
		if !models.Contains(escalationOverrides, norm) {
			return nil, invalidf(op, "escalation_overrides", "Unknown escalation override '%s'", o)
		}
		overrides = append(overrides, norm)
	}
	if req.AutonomyRules == nil {
		req.AutonomyRules = map[string]interface{}{}
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "system"
	}

	var out models.TrustConfig
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		if _, err := s.loadHuman(tx, op, req.HumanID); err != nil {
			return err
		}
		rh, err := s.loadAgent(tx, op, req.RightHandID)
		if err != nil {
			return err
		}
		if rh.AgentType != models.AgentTypeRightHand {
			return invalidf(op, "right_hand_id", "Agent '%s' is not a right_hand", rh.Name)
		}

		err = tx.Where("human_id = ? AND right_hand_id = ?", req.HumanID, req.RightHandID).First(&out).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			return fmt.Errorf("loading trust config: %w", err)
		}
		if created {
			out = models.TrustConfig{ID: uuid.New().String(), HumanID: req.HumanID, RightHandID: req.RightHandID}
		}
		out.TrustScore = req.TrustScore
		out.AutonomyRules = models.MustJSON(req.AutonomyRules)
		out.EscalationOverrides = models.MustJSON(overrides)
		out.UpdatedBy = req.UpdatedBy
		out.UpdatedAt = rec.now

		save := tx.Save
		if created {
			save = tx.Create
		}
		if err := save(&out).Error; err != nil {
			return fmt.Errorf("saving trust config: %w", err)
		}
		if err := updateAgent(tx, rec.now, rh.ID, map[string]interface{}{"trust_score": req.TrustScore}); err != nil {
			return err
		}
		return rec.emit(protocol.EventTrustConfigUpdated, rh.ID, map[string]interface{}{
			"human_id":             req.HumanID,
			"trust_score":          req.TrustScore,
			"escalation_overrides": overrides,
			"updated_by":           req.UpdatedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrustConfig returns the human's trust config, or nil when none exists.
func (s *Service) GetTrustConfig(ctx context.Context, humanID string) (*models.TrustConfig, error) {
	var tc models.TrustConfig
	if err := s.read(ctx).Where("human_id = ?", humanID).First(&tc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading trust config: %w", err)
	}
	return &tc, nil
}
