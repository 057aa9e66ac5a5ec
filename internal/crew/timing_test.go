package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/crew-bus/internal/models"
)

func setRule(t *testing.T, s *Service, agentID string, kind models.TimingRuleType, config string) {
	t.Helper()
	_, err := s.SetTimingRule(context.Background(), agentID, kind, json.RawMessage(config), true)
	require.NoError(t, err)
}

func TestShouldDeliverNow_QuietHours(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()
	setRule(t, s, c.human.ID, models.TimingQuietHours, `{"start":"22:00","end":"07:00"}`)

	clock.Set(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	d, err := s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	require.NotNil(t, d.DelayUntil)
	assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), *d.DelayUntil)
	assert.Equal(t, "Quiet hours (22:00-07:00). Queuing for 07:00.", d.Reason)

	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityHigh)
	require.NoError(t, err)
	assert.True(t, d.Deliver)

	for hour := 0; hour < 24; hour += 5 {
		clock.Set(time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC))
		d, err := s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityCritical)
		require.NoError(t, err)
		assert.True(t, d.Deliver, "critical at %02d:30", hour)
	}

	// Early morning is still inside the window and releases the same day.
	clock.Set(time.Date(2026, 3, 11, 3, 15, 0, 0, time.UTC))
	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityLow)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), *d.DelayUntil)

	clock.Set(time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC))
	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityLow)
	require.NoError(t, err)
	assert.True(t, d.Deliver)
}

func TestShouldDeliverNow_AgentQuietHoursInTimezone(t *testing.T) {
	s, clock := newTestService(t)
	seedCrew(t, s)
	ctx := context.Background()

	human, err := s.UpsertAgent(ctx, AgentSpec{Name: "Alex", QuietHoursStart: "21:00",
		QuietHoursEnd: "06:00", Timezone: "Europe/Madrid"})
	require.NoError(t, err)
	assert.Equal(t, models.AgentTypeHuman, human.AgentType)

	// 21:30 UTC is 22:30 in Madrid in March (CET).
	clock.Set(time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC))
	d, err := s.ShouldDeliverNow(ctx, human.ID, models.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	assert.Equal(t, time.Date(2026, 3, 11, 5, 0, 0, 0, time.UTC), *d.DelayUntil)
}

func TestShouldDeliverNow_Burnout(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()
	require.NoError(t, s.UpdateBurnoutScore(ctx, c.human.ID, 8))

	d, err := s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	assert.Equal(t, "Burnout score is 8/10. Queuing non-urgent message for morning.", d.Reason)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), *d.DelayUntil)

	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityHigh)
	require.NoError(t, err)
	assert.True(t, d.Deliver)

	setRule(t, s, c.human.ID, models.TimingBurnoutThreshold, `{"threshold":9}`)
	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, d.Deliver)
}

func TestShouldDeliverNow_BusyAndFocus(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	until := clock.Now().Add(time.Hour)
	setRule(t, s, c.human.ID, models.TimingBusySignal,
		fmt.Sprintf(`{"active":true,"reason":"board meeting","until":%q}`, until.Format(time.RFC3339)))

	d, err := s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityHigh)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	assert.Equal(t, "Human is busy: board meeting. Queuing.", d.Reason)
	assert.True(t, d.DelayUntil.Equal(until))

	clock.Advance(2 * time.Hour)
	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityHigh)
	require.NoError(t, err)
	assert.True(t, d.Deliver, "an expired busy signal no longer holds traffic")

	setRule(t, s, c.human.ID, models.TimingFocusMode, `{"active":true}`)
	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityLow)
	require.NoError(t, err)
	assert.False(t, d.Deliver)
	assert.Nil(t, d.DelayUntil)

	d, err = s.ShouldDeliverNow(ctx, c.human.ID, models.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, d.Deliver)
	assert.Equal(t, "All timing checks passed", d.Reason)
}

func TestSetTimingRule_Validation(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	tests := []struct {
		kind   models.TimingRuleType
		config string
	}{
		{"nap_time", `{}`},
		{models.TimingQuietHours, `{"start":"late","end":"07:00"}`},
		{models.TimingQuietHours, `{"start":"22:00","end":"07:00","volume":3}`},
		{models.TimingBurnoutThreshold, `{"threshold":0}`},
		{models.TimingFocusMode, `[1,2]`},
	}
	for _, tt := range tests {
		_, err := s.SetTimingRule(ctx, c.human.ID, tt.kind, json.RawMessage(tt.config), true)
		assert.ErrorIs(t, err, ErrInvalid, "%s %s", tt.kind, tt.config)
	}

	first, err := s.SetTimingRule(ctx, c.human.ID, models.TimingFocusMode, json.RawMessage(`{"active":true}`), true)
	require.NoError(t, err)
	second, err := s.SetTimingRule(ctx, c.human.ID, models.TimingFocusMode, json.RawMessage(`{"active":false}`), false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rules, err := s.GetTimingRules(ctx, c.human.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Enabled)
}

func TestDeliverPending(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()
	setRule(t, s, c.human.ID, models.TimingQuietHours, `{"start":"22:00","end":"07:00"}`)
	clock.Set(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))

	normal, err := send(s, c.boss, c.human, models.PriorityNormal)
	require.NoError(t, err)
	critical, err := send(s, c.boss, c.human, models.PriorityCritical)
	require.NoError(t, err)

	rep, err := s.DeliverPending(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{critical.MessageID}, rep.Delivered)
	require.Len(t, rep.Deferred, 1)
	assert.Equal(t, normal.MessageID, rep.Deferred[0].MessageID)

	clock.Set(time.Date(2026, 3, 11, 7, 30, 0, 0, time.UTC))
	rep, err = s.DeliverPending(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{normal.MessageID}, rep.Delivered)
	assert.Empty(t, rep.Deferred)
}
