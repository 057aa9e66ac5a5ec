package crew

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// QuietHours defers non-high traffic inside a daily window. Windows may
// cross midnight.
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// BusySignal defers all non-critical traffic while active.
type BusySignal struct {
	Active bool       `json:"active"`
	Reason string     `json:"reason,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// BurnoutThreshold overrides the burnout score at which low and normal
// traffic is held until morning.
type BurnoutThreshold struct {
	Threshold int `json:"threshold"`
}

// FocusMode defers low-priority traffic while active.
type FocusMode struct {
	Active bool       `json:"active"`
	Until  *time.Time `json:"until,omitempty"`
}

// DeliveryDecision is the timing gate's verdict for one message.
type DeliveryDecision struct {
	Deliver    bool       `json:"deliver"`
	Reason     string     `json:"reason"`
	DelayUntil *time.Time `json:"delay_until"`
}

// DecodeTimingConfig validates a rule config against its kind and returns
// the typed value (QuietHours, BusySignal, BurnoutThreshold or FocusMode).
func DecodeTimingConfig(kind models.TimingRuleType, raw json.RawMessage) (interface{}, error) {
	const op = "set_timing_rule"
	var target interface{}
	switch kind {
	case models.TimingQuietHours:
		target = &QuietHours{}
	case models.TimingBusySignal:
		target = &BusySignal{}
	case models.TimingBurnoutThreshold:
		target = &BurnoutThreshold{}
	case models.TimingFocusMode:
		target = &FocusMode{}
	default:
		return nil, invalidf(op, "rule_type", "Invalid rule_type '%s'", kind)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, invalidf(op, "rule_config", "Malformed %s config: %v", kind, err)
	}

	switch c := target.(type) {
	case *QuietHours:
		if _, err := parseClock(c.Start); err != nil {
			return nil, invalidf(op, "rule_config", "Invalid quiet hours start '%s': expected HH:MM", c.Start)
		}
		if _, err := parseClock(c.End); err != nil {
			return nil, invalidf(op, "rule_config", "Invalid quiet hours end '%s': expected HH:MM", c.End)
		}
		if c.Timezone != "" {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				return nil, invalidf(op, "rule_config", "Unknown timezone '%s'", c.Timezone)
			}
		}
		return *c, nil
	case *BurnoutThreshold:
		if c.Threshold < 1 || c.Threshold > 10 {
			return nil, invalidf(op, "rule_config", "Burnout threshold must be 1-10, got %d", c.Threshold)
		}
		return *c, nil
	case *BusySignal:
		return *c, nil
	case *FocusMode:
		return *c, nil
	}
	return nil, invalidf(op, "rule_type", "Invalid rule_type '%s'", kind)
}

// SetTimingRule creates or replaces the agent's rule of the given kind.
func (s *Service) SetTimingRule(ctx context.Context, agentID string, kind models.TimingRuleType,
	config json.RawMessage, enabled bool) (*models.TimingRule, error) {

	const op = "set_timing_rule"
	typed, err := DecodeTimingConfig(kind, config)
	if err != nil {
		return nil, err
	}

	var out models.TimingRule
	err = s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		if _, err := s.loadAgent(tx, op, agentID); err != nil {
			return err
		}
		err := tx.Where("agent_id = ? AND rule_type = ?", agentID, kind).First(&out).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			return fmt.Errorf("loading timing rule: %w", err)
		}
		if created {
			out = models.TimingRule{ID: uuid.New().String(), AgentID: agentID, RuleType: kind}
		}
		out.RuleConfig = models.MustJSON(typed)
		out.Enabled = enabled

		save := tx.Save
		if created {
			save = tx.Create
		}
		if err := save(&out).Error; err != nil {
			return fmt.Errorf("saving timing rule: %w", err)
		}
		return rec.emit(protocol.EventTimingRuleUpdated, agentID, map[string]interface{}{
			"rule_type": kind,
			"enabled":   enabled,
			"config":    typed,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTimingRules returns every timing rule configured for the agent.
func (s *Service) GetTimingRules(ctx context.Context, agentID string) ([]models.TimingRule, error) {
	var rules []models.TimingRule
	if err := s.read(ctx).Where("agent_id = ?", agentID).Order("rule_type").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("loading timing rules: %w", err)
	}
	return rules, nil
}

// ShouldDeliverNow decides whether a message of the given priority reaches
// the human now or waits.
//
// Critical always delivers. Otherwise, in order: burnout at or above the
// threshold holds low and normal traffic until 08:00 tomorrow; quiet hours
// hold everything but high until the window ends; an active busy signal
// holds everything until its end; focus mode holds low traffic.
func (s *Service) ShouldDeliverNow(ctx context.Context, humanID string, priority models.Priority) (*DeliveryDecision, error) {
	const op = "should_deliver_now"
	if !priority.Valid() {
		return nil, invalidf(op, "priority", "Invalid priority '%s'", priority)
	}
	if priority == models.PriorityCritical {
		return &DeliveryDecision{Deliver: true, Reason: "Critical priority overrides all timing rules"}, nil
	}

	db := s.read(ctx)
	human, err := s.loadAgent(db, op, humanID)
	if err != nil {
		return nil, err
	}
	rules, err := s.enabledRules(db, human.ID)
	if err != nil {
		return nil, err
	}
	return gate(human, rules, priority, s.clock()), nil
}

type timingRules struct {
	quiet     *QuietHours
	busy      *BusySignal
	threshold *BurnoutThreshold
	focus     *FocusMode
}

func (s *Service) enabledRules(db *gorm.DB, agentID string) (timingRules, error) {
	var rows []models.TimingRule
	var out timingRules
	if err := db.Where("agent_id = ? AND enabled = ?", agentID, true).Find(&rows).Error; err != nil {
		return out, fmt.Errorf("loading timing rules: %w", err)
	}
	for _, r := range rows {
		typed, err := DecodeTimingConfig(r.RuleType, json.RawMessage(r.RuleConfig))
		if err != nil {
			s.logger.Warn("skipping malformed timing rule", "agent_id", agentID, "rule_type", r.RuleType, "error", err)
			continue
		}
		switch c := typed.(type) {
		case QuietHours:
			out.quiet = &c
		case BusySignal:
			out.busy = &c
		case BurnoutThreshold:
			out.threshold = &c
		case FocusMode:
			out.focus = &c
		}
	}
	return out, nil
}

func gate(human *models.Agent, rules timingRules, priority models.Priority, now time.Time) *DeliveryDecision {
	loc := location(human.Timezone)

	threshold := DefaultBurnoutLimit
	if rules.threshold != nil {
		threshold = rules.threshold.Threshold
	}
	if human.BurnoutScore >= threshold && (priority == models.PriorityLow || priority == models.PriorityNormal) {
		local := now.In(loc)
		morning := time.Date(local.Year(), local.Month(), local.Day()+1, 8, 0, 0, 0, loc).UTC()
		return &DeliveryDecision{
			Reason:     fmt.Sprintf("Burnout score is %d/10. Queuing non-urgent message for morning.", human.BurnoutScore),
			DelayUntil: &morning,
		}
	}

	quiet := rules.quiet
	if quiet == nil && human.QuietHoursStart != "" && human.QuietHoursEnd != "" {
		quiet = &QuietHours{Start: human.QuietHoursStart, End: human.QuietHoursEnd}
	}
	if quiet != nil && priority != models.PriorityHigh {
		qloc := loc
		if quiet.Timezone != "" {
			qloc = location(quiet.Timezone)
		}
		if until, in := quietUntil(*quiet, now, qloc); in {
			return &DeliveryDecision{
				Reason:     fmt.Sprintf("Quiet hours (%s-%s). Queuing for %s.", quiet.Start, quiet.End, quiet.End),
				DelayUntil: &until,
			}
		}
	}

	if b := rules.busy; b != nil && b.Active && (b.Until == nil || now.Before(*b.Until)) {
		reason := b.Reason
		if reason == "" {
			reason = "busy"
		}
		return &DeliveryDecision{Reason: fmt.Sprintf("Human is busy: %s. Queuing.", reason), DelayUntil: utcPtr(b.Until)}
	}

	if f := rules.focus; f != nil && f.Active && priority == models.PriorityLow && (f.Until == nil || now.Before(*f.Until)) {
		return &DeliveryDecision{Reason: "Focus mode active. Low-priority items queued.", DelayUntil: utcPtr(f.Until)}
	}

	return &DeliveryDecision{Deliver: true, Reason: "All timing checks passed"}
}

// quietUntil reports whether now falls inside the window and, if so, when
// the window ends.
func quietUntil(q QuietHours, now time.Time, loc *time.Location) (time.Time, bool) {
	start, err := parseClock(q.Start)
	if err != nil {
		return time.Time{}, false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return time.Time{}, false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	var in bool
	switch {
	case start > end:
		in = minute >= start || minute < end
	case start < end:
		in = minute >= start && minute < end
	}
	if !in {
		return time.Time{}, false
	}

	until := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !until.After(local) {
		until = until.AddDate(0, 0, 1)
	}
	return until.UTC(), true
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// DeferredMessage is a queued message the timing gate held back.
type DeferredMessage struct {
	MessageID  string     `json:"message_id"`
	Priority   string     `json:"priority"`
	Reason     string     `json:"reason"`
	DelayUntil *time.Time `json:"delay_until"`
}

// DeliveryReport summarizes one DeliverPending pass.
type DeliveryReport struct {
	Delivered []string          `json:"delivered"`
	Deferred  []DeferredMessage `json:"deferred"`
}

// DeliverPending runs every queued message addressed to the human through
// the timing gate and marks the deliverable ones delivered.
func (s *Service) DeliverPending(ctx context.Context, humanID string) (*DeliveryReport, error) {
	const op = "deliver_pending"
	report := &DeliveryReport{Delivered: []string{}, Deferred: []DeferredMessage{}}
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		report.Delivered = report.Delivered[:0]
		report.Deferred = report.Deferred[:0]

		human, err := s.loadHuman(tx, op, humanID)
		if err != nil {
			return err
		}
		rules, err := s.enabledRules(tx, human.ID)
		if err != nil {
			return err
		}

		var queued []models.Message
		if err := tx.Where("to_agent_id = ? AND status = ?", human.ID, models.MessageStatusQueued).
			Order("created_at").Find(&queued).Error; err != nil {
			return fmt.Errorf("loading queued messages: %w", err)
		}

		for _, m := range queued {
			d := &DeliveryDecision{Deliver: true, Reason: "Critical priority overrides all timing rules"}
			if m.Priority != models.PriorityCritical {
				d = gate(human, rules, m.Priority, rec.now)
			}
			if !d.Deliver {
				report.Deferred = append(report.Deferred, DeferredMessage{
					MessageID: m.ID, Priority: string(m.Priority), Reason: d.Reason, DelayUntil: d.DelayUntil,
				})
				continue
			}
			res := tx.Model(&models.Message{}).
				Where("id = ? AND status = ?", m.ID, models.MessageStatusQueued).
				Updates(map[string]interface{}{"status": models.MessageStatusDelivered, "delivered_at": rec.now})
			if res.Error != nil {
				return fmt.Errorf("delivering message %s: %w", m.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			report.Delivered = append(report.Delivered, m.ID)
			if err := rec.emit(protocol.EventMessageDelivered, human.ID, map[string]interface{}{
				"message_id":      m.ID,
				"previous_status": models.MessageStatusQueued,
				"reason":          d.Reason,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
