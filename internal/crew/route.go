package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/routing"
)

// CheckRoute reports whether from may message to right now, without sending
// anything. Expired sessions found along the way are closed.
func (s *Service) CheckRoute(ctx context.Context, fromID, toID string) (routing.Decision, error) {
	const op = "check_route"
	var d routing.Decision
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		sender, err := s.loadAgent(tx, op, fromID)
		if err != nil {
			return err
		}
		recipient, err := s.loadAgent(tx, op, toID)
		if err != nil {
			return err
		}
		d, err = s.resolve(tx, rec, sender, recipient)
		return err
	})
	return d, err
}

// resolve gathers the session and trust facts for the pair and runs the
// resolver against the live role table.
func (s *Service) resolve(tx *gorm.DB, rec *recorder, sender, recipient *models.Agent) (routing.Decision, error) {
	sessionActive, err := hasActiveSession(tx, rec, sender.ID, recipient.ID)
	if err != nil {
		return routing.Decision{}, err
	}

	feed := false
	if sender.Role == models.RoleSecurity && recipient.AgentType == models.AgentTypeHuman {
		feed, err = directSecurityFeed(tx, recipient.ID)
		if err != nil {
			return routing.Decision{}, err
		}
	}

	var lookupErr error
	rules := func(from, to models.Role) (routing.Rule, bool) {
		var r models.RoutingRule
		if err := tx.Where("from_role = ? AND to_role = ?", from, to).First(&r).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				lookupErr = fmt.Errorf("loading routing rule %s->%s: %w", from, to, err)
			}
			return routing.Rule{}, false
		}
		return routing.Rule{Allowed: r.Allowed, RequireApproval: r.RequireApproval, Description: r.Description}, true
	}

	d := routing.NewResolver(rules).Resolve(routing.Request{
		Sender:             sender,
		Recipient:          recipient,
		SessionActive:      sessionActive,
		DirectSecurityFeed: feed,
	})
	return d, lookupErr
}

// directSecurityFeed reports whether the human's trust config carries the
// direct_security_feed override.
func directSecurityFeed(tx *gorm.DB, humanID string) (bool, error) {
	var configs []models.TrustConfig
	if err := tx.Where("human_id = ?", humanID).Find(&configs).Error; err != nil {
		return false, fmt.Errorf("loading trust config: %w", err)
	}
	for i := range configs {
		for _, o := range configs[i].Overrides() {
			if strings.EqualFold(strings.TrimSpace(o), models.EscalationDirectSecurityFeed) {
				return true, nil
			}
		}
	}
	return false, nil
}
