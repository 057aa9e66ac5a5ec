package scheduler

import (
	"context"
	"log/slog"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

// SessionSweeper closes private sessions past their idle timeout.
type SessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
}

// SweepSessions returns the session_sweep action.
func SweepSessions(sweeper SessionSweeper, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := sweeper.CleanupExpiredSessions(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired private sessions closed", "count", n)
		}
		return nil
	}
}

// PendingDeliverer releases queued messages to the human.
type PendingDeliverer interface {
	ListAgents(ctx context.Context) ([]crew.AgentView, error)
	DeliverPending(ctx context.Context, humanID string) (*crew.DeliveryReport, error)
}

// DeliverQueued returns the delivery_sync action. It is a no-op until a
// human is registered.
func DeliverQueued(d PendingDeliverer, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		agents, err := d.ListAgents(ctx)
		if err != nil {
			return err
		}
		for _, a := range agents {
			if a.AgentType != models.AgentTypeHuman {
				continue
			}
			report, err := d.DeliverPending(ctx, a.ID)
			if err != nil {
				return err
			}
			if len(report.Delivered) > 0 {
				logger.Info("queued messages delivered", "human", a.Name,
					"delivered", len(report.Delivered), "deferred", len(report.Deferred))
			}
		}
		return nil
	}
}
