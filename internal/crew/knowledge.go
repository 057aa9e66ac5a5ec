package crew

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// KnowledgeRequest adds an entry to the knowledge store.
type KnowledgeRequest struct {
	AgentID         string                   `json:"agent_id"`
	Category        models.KnowledgeCategory `json:"category"`
	Subject         string                   `json:"subject"`
	Content         interface{}              `json:"content"`
	Tags            string                   `json:"tags"`
	SourceMessageID *string                  `json:"source_message_id,omitempty"`
}

// KnowledgeView is a knowledge entry with its author's name.
type KnowledgeView struct {
	models.KnowledgeEntry
	AgentName string `json:"agent_name"`
}

// RejectionRequest records an idea the human turned down.
type RejectionRequest struct {
	HumanID         string `json:"human_id"`
	StrategyAgentID string `json:"strategy_agent_id"`
	Subject         string `json:"idea_subject"`
	Body            string `json:"idea_body"`
	Reason          string `json:"reason"`
}

// RejectionView is a rejection with the proposing agent's name.
type RejectionView struct {
	models.RejectionHistory
	StrategyAgentName string `json:"strategy_agent_name"`
}

// StoreKnowledge appends an entry to the knowledge store.
func (s *Service) StoreKnowledge(ctx context.Context, req KnowledgeRequest) (*models.KnowledgeEntry, error) {
	var out *models.KnowledgeEntry
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		if _, err := s.loadAgent(tx, "store_knowledge", req.AgentID); err != nil {
			return err
		}
		var err error
		out, err = storeKnowledge(tx, rec, req)
		return err
	})
	return out, err
}

func storeKnowledge(tx *gorm.DB, rec *recorder, req KnowledgeRequest) (*models.KnowledgeEntry, error) {
	const op = "store_knowledge"
	if !req.Category.Valid() {
		return nil, invalidf(op, "category", "Invalid category '%s'", req.Category)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, invalidf(op, "subject", "Knowledge subject is required")
	}

	e := models.KnowledgeEntry{
		ID:              uuid.New().String(),
		AgentID:         req.AgentID,
		Category:        req.Category,
		Subject:         req.Subject,
		Content:         models.MustJSON(req.Content),
		Tags:            req.Tags,
		SourceMessageID: req.SourceMessageID,
		CreatedAt:       rec.now,
		UpdatedAt:       rec.now,
	}
	if err := tx.Create(&e).Error; err != nil {
		return nil, fmt.Errorf("inserting knowledge entry: %w", err)
	}
	if err := rec.emit(protocol.EventKnowledgeStored, req.AgentID, map[string]interface{}{
		"knowledge_id": e.ID,
		"category":     e.Category,
		"subject":      e.Subject,
		"tags":         e.Tags,
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

// SearchKnowledge matches query against subject, content and tags, most
// recently updated first. An empty category searches all categories.
func (s *Service) SearchKnowledge(ctx context.Context, query string, category models.KnowledgeCategory, limit int) ([]KnowledgeView, error) {
	if category != "" && !category.Valid() {
		return nil, invalidf("search_knowledge", "category", "Invalid category '%s'", category)
	}
	pattern := likePattern(query)
	q := s.read(ctx).Model(&models.KnowledgeEntry{}).
		Select("knowledge_entries.*, agents.name AS agent_name").
		Joins("JOIN agents ON agents.id = knowledge_entries.agent_id").
		Where("(knowledge_entries.subject LIKE ? ESCAPE '\\' OR knowledge_entries.content LIKE ? ESCAPE '\\' OR knowledge_entries.tags LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern)
	if category != "" {
		q = q.Where("knowledge_entries.category = ?", category)
	}

	var out []KnowledgeView
	if err := q.Order("knowledge_entries.updated_at DESC").Limit(clampLimit(limit, 20)).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("searching knowledge: %w", err)
	}
	return out, nil
}

// LogRejection records that the human turned an idea down.
func (s *Service) LogRejection(ctx context.Context, req RejectionRequest) (*models.RejectionHistory, error) {
	const op = "log_rejection"
	if strings.TrimSpace(req.Subject) == "" {
		return nil, invalidf(op, "idea_subject", "Idea subject is required")
	}

	var out models.RejectionHistory
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		if _, err := s.loadHuman(tx, op, req.HumanID); err != nil {
			return err
		}
		if _, err := s.loadAgent(tx, op, req.StrategyAgentID); err != nil {
			return err
		}
		out = models.RejectionHistory{
			ID:              uuid.New().String(),
			HumanID:         req.HumanID,
			StrategyAgentID: req.StrategyAgentID,
			IdeaSubject:     req.Subject,
			IdeaBody:        req.Body,
			Reason:          req.Reason,
			CreatedAt:       rec.now,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("inserting rejection: %w", err)
		}
		return rec.emit(protocol.EventIdeaRejected, req.HumanID, map[string]interface{}{
			"rejection_id":      out.ID,
			"strategy_agent_id": req.StrategyAgentID,
			"subject":           req.Subject,
			"reason":            req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRejectionHistory returns the human's rejections newest first.
func (s *Service) GetRejectionHistory(ctx context.Context, humanID string, limit int) ([]RejectionView, error) {
	var out []RejectionView
	err := s.read(ctx).Model(&models.RejectionHistory{}).
		Select("rejection_histories.*, agents.name AS strategy_agent_name").
		Joins("LEFT JOIN agents ON agents.id = rejection_histories.strategy_agent_id").
		Where("rejection_histories.human_id = ?", humanID).
		Order("rejection_histories.created_at DESC").
		Limit(clampLimit(limit, 20)).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading rejection history: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps term for a substring LIKE with the wildcards escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
