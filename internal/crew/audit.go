package crew

import (
	"context"
	"fmt"
	"time"

	"github.com/helmcode/crew-bus/internal/models"
)

// AuditFilter narrows GetAuditTrail. Zero fields match everything.
type AuditFilter struct {
	AgentID   string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// GetAuditTrail returns audit entries newest first.
func (s *Service) GetAuditTrail(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	q := s.read(ctx).Model(&models.AuditEntry{})
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if f.Until != nil {
		q = q.Where("created_at <= ?", f.Until.UTC())
	}

	var out []models.AuditEntry
	// Event ids are ULIDs, so they break ties within one timestamp.
	if err := q.Order("created_at DESC, id DESC").Limit(clampLimit(f.Limit, 100)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("loading audit trail: %w", err)
	}
	return out, nil
}
