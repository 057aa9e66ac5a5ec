package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/helmcode/crew-bus/internal/events"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// Default breaker settings for event publication.
const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
	defaultInterval           = 60 * time.Second
)

// EventSink is the transport the publisher writes to. *Client satisfies it.
type EventSink interface {
	Publish(subject string, v interface{}) error
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Prefix      string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Publisher forwards committed bus events to NATS. A failing server trips
// the breaker so events are dropped quickly instead of stalling handlers;
// the audit table stays the source of truth.
type Publisher struct {
	sink    EventSink
	prefix  string
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewPublisher creates a Publisher writing to sink.
func NewPublisher(sink EventSink, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = defaultOpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "nats:events",
		MaxRequests: 1,
		Interval:    defaultInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Publisher{sink: sink, prefix: cfg.Prefix, breaker: cb, logger: logger}
}

// Attach subscribes the publisher to every event on bus. The returned
// function detaches it.
func (p *Publisher) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(func(_ context.Context, ev *protocol.Event) {
		if err := p.Publish(ev); err != nil {
			p.logger.Debug("event not forwarded", "type", ev.Type, "event_id", ev.EventID, "error", err)
		}
	})
}

// Publish sends one event to its subject.
func (p *Publisher) Publish(ev *protocol.Event) error {
	subject, err := protocol.EventSubject(p.prefix, ev.Type)
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.sink.Publish(subject, ev)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Warn("dropping event, nats circuit open", "type", ev.Type, "event_id", ev.EventID)
	}
	return err
}

// State returns the breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

// Healthy reports an error while the breaker is open and events are being
// dropped.
func (p *Publisher) Healthy() error {
	if st := p.State(); st == gobreaker.StateOpen {
		return fmt.Errorf("event publisher breaker %s", st)
	}
	return nil
}
