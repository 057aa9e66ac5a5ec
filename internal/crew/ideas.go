package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
)

// Idea verdicts.
const (
	IdeaPass   = "pass"
	IdeaFilter = "filter"
	IdeaQueue  = "queue"
)

// IdeaVerdict is the Crew Boss's call on a strategy idea.
type IdeaVerdict struct {
	Action            string `json:"action"`
	Reason            string `json:"reason"`
	SimilarRejections int    `json:"similar_rejections"`
}

var ideaStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "for": true, "and": true, "or": true,
	"in": true, "of": true, "to": true, "with": true, "from": true,
}

const ideaMatchesToFilter = 2

// FilterStrategyIdea decides whether an idea reaches the human. Ideas that
// echo two or more past rejections are filtered, and ideas arriving while
// the human is burnt out are queued.
func (s *Service) FilterStrategyIdea(ctx context.Context, rightHandID, subject, body string) (*IdeaVerdict, error) {
	const op = "filter_strategy_idea"
	db := s.read(ctx)

	rh, err := s.loadAgent(db, op, rightHandID)
	if err != nil {
		return nil, err
	}
	if rh.AgentType != models.AgentTypeRightHand {
		return nil, invalidf(op, "right_hand_id", "Agent '%s' is not a right_hand", rh.Name)
	}
	human, err := s.ideaHuman(db, rh)
	if err != nil {
		return nil, err
	}
	humanID := ""
	if human != nil {
		humanID = human.ID
	}

	type hit struct{ source, id string }
	seen := map[hit]bool{}
	for _, word := range ideaKeywords(subject) {
		pattern := likePattern(word)

		var rejections []string
		err := db.Model(&models.RejectionHistory{}).
			Where("human_id = ? AND (idea_subject LIKE ? ESCAPE '\\' OR idea_body LIKE ? ESCAPE '\\')",
				humanID, pattern, pattern).
			Limit(5).Pluck("id", &rejections).Error
		if err != nil {
			return nil, fmt.Errorf("searching rejections: %w", err)
		}
		for _, id := range rejections {
			seen[hit{"rejection", id}] = true
		}

		var entries []string
		err = db.Model(&models.KnowledgeEntry{}).
			Where("category = ? AND (subject LIKE ? ESCAPE '\\' OR content LIKE ? ESCAPE '\\' OR tags LIKE ? ESCAPE '\\')",
				models.KnowledgeRejection, pattern, pattern, pattern).
			Limit(5).Pluck("id", &entries).Error
		if err != nil {
			return nil, fmt.Errorf("searching knowledge: %w", err)
		}
		for _, id := range entries {
			seen[hit{"knowledge", id}] = true
		}
	}

	if n := len(seen); n >= ideaMatchesToFilter {
		return &IdeaVerdict{
			Action:            IdeaFilter,
			Reason:            fmt.Sprintf("Found %d similar past rejections. Filtering idea.", n),
			SimilarRejections: n,
		}, nil
	}
	if human != nil && human.BurnoutScore >= DefaultBurnoutLimit {
		return &IdeaVerdict{
			Action:            IdeaQueue,
			Reason:            fmt.Sprintf("Human burnout is %d/10. Queuing for lower-burnout moment.", human.BurnoutScore),
			SimilarRejections: len(seen),
		}, nil
	}
	return &IdeaVerdict{
		Action:            IdeaPass,
		Reason:            "Novel idea, no similar rejections found. Passing to human.",
		SimilarRejections: len(seen),
	}, nil
}

// ideaHuman resolves the human a right_hand serves: its parent when that is
// the human, otherwise the crew's single human. Returns nil when the crew
// has no human yet.
func (s *Service) ideaHuman(db *gorm.DB, rh *models.Agent) (*models.Agent, error) {
	var human models.Agent
	if rh.ParentAgentID != nil {
		err := db.First(&human, "id = ? AND agent_type = ?", *rh.ParentAgentID, models.AgentTypeHuman).Error
		if err == nil {
			return &human, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loading human: %w", err)
		}
	}
	err := db.Where("agent_type = ?", models.AgentTypeHuman).First(&human).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading human: %w", err)
	}
	return &human, nil
}

// FilterIdeaMessage runs FilterStrategyIdea over a stored idea message.
func (s *Service) FilterIdeaMessage(ctx context.Context, rightHandID, messageID string) (*IdeaVerdict, error) {
	const op = "filter_strategy_idea"
	if messageID == "" {
		return nil, invalidf(op, "idea_message_id", "idea message id is required")
	}
	var msg models.Message
	if err := s.read(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf(op, "idea_message_id", "Message id=%s not found", messageID)
		}
		return nil, fmt.Errorf("loading idea message: %w", err)
	}
	return s.FilterStrategyIdea(ctx, rightHandID, msg.Subject, msg.Body)
}

// ideaKeywords extracts the distinctive words of an idea subject.
func ideaKeywords(subject string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(subject)) {
		w = strings.Trim(w, ".,!?;:")
		if len(w) <= 3 || ideaStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
