// Package crew is the crew-bus engine: agent registry, message store,
// private sessions, trust and timing gates, and the decision learning loop.
//
// Every mutating operation runs in one SQLite transaction. State transitions
// are recorded to the audit table inside that transaction and fanned out on
// the event bus after it commits.
package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/events"
	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// Defaults applied when no option overrides them.
const (
	DefaultSessionTimeout = 30
	DefaultSessionChannel = "web"
	DefaultMailboxLimit   = 3
	DefaultMailboxWindow  = 24 * time.Hour
	DefaultBurnoutLimit   = 7
	MaxTeamAgents         = 10
)

// Service is the engine entry point. It is safe for concurrent use.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	sessionTimeout int
	sessionChannel string
	mailboxLimit   int
	mailboxWindow  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock. Used by tests to drive session expiry
// and timing rules deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEvents publishes committed state transitions on bus.
func WithEvents(bus *events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithSessionDefaults sets the channel and idle timeout used when a private
// session is started without them.
func WithSessionDefaults(channel string, timeoutMinutes int) Option {
	return func(s *Service) {
		if channel != "" {
			s.sessionChannel = channel
		}
		if timeoutMinutes >= 0 {
			s.sessionTimeout = timeoutMinutes
		}
	}
}

// WithMailboxLimit sets how many team mailbox entries one agent may post
// per window.
func WithMailboxLimit(limit int, window time.Duration) Option {
	return func(s *Service) {
		if limit > 0 {
			s.mailboxLimit = limit
		}
		if window > 0 {
			s.mailboxWindow = window
		}
	}
}

// New creates a Service over an initialized database (see models.InitDB).
func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		logger:         slog.Default(),
		now:            time.Now,
		sessionTimeout: DefaultSessionTimeout,
		sessionChannel: DefaultSessionChannel,
		mailboxLimit:   DefaultMailboxLimit,
		mailboxWindow:  DefaultMailboxWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.db = db.Session(&gorm.Session{NowFunc: s.clock})
	return s
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// recorder collects the transitions of one transaction.
type recorder struct {
	tx      *gorm.DB
	now     time.Time
	pending []*protocol.Event
}

// emit writes an audit row for the transition and queues the event for
// publication after commit.
func (r *recorder) emit(eventType protocol.EventType, agentID string, details interface{}) error {
	ev, err := protocol.NewEvent(eventType, agentID, details, r.now)
	if err != nil {
		return fmt.Errorf("building %s event: %w", eventType, err)
	}
	entry := models.AuditEntry{
		ID:        ev.EventID,
		EventType: string(eventType),
		AgentID:   agentID,
		Details:   models.JSON(ev.Payload),
		CreatedAt: r.now,
	}
	if err := r.tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("recording %s: %w", eventType, err)
	}
	r.pending = append(r.pending, ev)
	return nil
}

// transact runs fn in a write transaction. Events recorded by fn are
// published only when the transaction commits.
func (s *Service) transact(ctx context.Context, fn func(tx *gorm.DB, rec *recorder) error) error {
	rec := &recorder{now: s.clock()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec.tx = tx
		rec.pending = rec.pending[:0]
		return fn(tx, rec)
	})
	if err != nil {
		return err
	}
	for _, ev := range rec.pending {
		s.bus.Publish(ctx, ev)
	}
	return nil
}

// read returns a context-bound handle for read-only queries.
func (s *Service) read(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Service) loadAgent(db *gorm.DB, op, id string) (*models.Agent, error) {
	if id == "" {
		return nil, invalidf(op, "agent_id", "agent id is required")
	}
	var a models.Agent
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf(op, "agent_id", "Agent id=%s not found", id)
		}
		return nil, fmt.Errorf("loading agent %s: %w", id, err)
	}
	return &a, nil
}

func (s *Service) loadHuman(db *gorm.DB, op, id string) (*models.Agent, error) {
	a, err := s.loadAgent(db, op, id)
	if err != nil {
		return nil, err
	}
	if a.AgentType != models.AgentTypeHuman {
		return nil, invalidf(op, "human_id", "Agent '%s' is not a human", a.Name)
	}
	return a, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
