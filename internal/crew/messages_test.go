package crew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
	"github.com/helmcode/crew-bus/internal/routing"
)

func send(s *Service, from, to *models.Agent, priority models.Priority) (*SendResult, error) {
	return s.SendMessage(context.Background(), SendRequest{
		FromID: from.ID, ToID: to.ID, Type: models.MessageTypeReport,
		Subject: "update", Body: "details", Priority: priority,
	})
}

func TestSendMessage_SecurityNeedsDirectFeed(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	_, err := send(s, c.guard, c.human, models.PriorityHigh)
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Blocked)
	assert.Contains(t, pe.Reason, "must go through Crew Boss")

	// The denied attempt is audited.
	trail, err := s.GetAuditTrail(ctx, AuditFilter{AgentID: c.guard.ID, EventType: string(protocol.EventMessageAttempt)})
	require.NoError(t, err)
	assert.Len(t, trail, 1)

	_, err = s.SetTrustConfig(ctx, TrustConfigRequest{HumanID: c.human.ID, RightHandID: c.boss.ID,
		TrustScore: 5, EscalationOverrides: []string{" Direct_Security_Feed "}})
	require.NoError(t, err)

	res, err := send(s, c.guard, c.human, models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, routing.StepSecurity, res.Routing.Step)
}

func TestSendMessage_WellnessNeedsCritical(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)

	_, err := send(s, c.wellness, c.human, models.PriorityNormal)
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "must be critical priority")

	res, err := send(s, c.wellness, c.human, models.PriorityCritical)
	require.NoError(t, err)

	var msg models.Message
	require.NoError(t, s.db.First(&msg, "id = ?", res.MessageID).Error)
	assert.Equal(t, models.MessageStatusQueued, msg.Status)
	assert.Equal(t, models.PriorityCritical, msg.Priority)
}

func TestSendMessage_QuarantinedSenderBlockedUntilRestored(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	_, err := s.QuarantineAgent(ctx, c.engWorker.ID)
	require.NoError(t, err)

	_, err = send(s, c.engWorker, c.engManager, models.PriorityNormal)
	assert.ErrorIs(t, err, ErrBlocked)
	_, err = send(s, c.engWorker, c.boss, models.PriorityNormal)
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = s.RestoreAgent(ctx, c.engWorker.ID)
	require.NoError(t, err)
	_, err = send(s, c.engWorker, c.engManager, models.PriorityNormal)
	assert.NoError(t, err)
}

func TestSendMessage_QuarantinedSenderInSessionStillBlocked(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	_, err := s.StartPrivateSession(ctx, StartSessionRequest{HumanID: c.human.ID, AgentID: c.engWorker.ID})
	require.NoError(t, err)
	_, err = s.QuarantineAgent(ctx, c.engWorker.ID)
	require.NoError(t, err)

	_, err = send(s, c.engWorker, c.human, models.PriorityNormal)
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, routing.StepLiveness, pe.Decision.Step)
}

func TestSendMessage_CrossTeamDenied(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)

	_, err := send(s, c.engWorker, c.opsManager, models.PriorityNormal)
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "Workers can only message their own manager")
	assert.Contains(t, pe.Reason, "Message blocked: eng-worker (worker) -> Ops-Manager (manager)")

	_, err = send(s, c.engWorker, c.engManager, models.PriorityNormal)
	assert.NoError(t, err)
}

func TestSendMessage_Validation(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	_, err := s.SendMessage(ctx, SendRequest{FromID: c.boss.ID, ToID: c.human.ID, Type: "memo"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.SendMessage(ctx, SendRequest{FromID: c.boss.ID, ToID: c.human.ID,
		Type: models.MessageTypeReport, Priority: "urgent"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.SendMessage(ctx, SendRequest{FromID: c.boss.ID, ToID: "ghost", Type: models.MessageTypeReport})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckRoute(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	d, err := s.CheckRoute(ctx, c.strategy.ID, c.engManager.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Core crew cannot message managers directly", d.Reason)

	d, err = s.CheckRoute(ctx, c.boss.ID, c.engWorker.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// CheckRoute never writes a message.
	inbox, err := s.ReadInbox(ctx, c.engWorker.ID, "")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestMessageStatus_Monotonic(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	res, err := send(s, c.boss, c.human, models.PriorityNormal)
	require.NoError(t, err)

	changed, err := s.MarkDelivered(ctx, res.MessageID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkRead(ctx, res.MessageID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkDelivered(ctx, res.MessageID)
	require.NoError(t, err)
	assert.False(t, changed, "read must not move back to delivered")

	changed, err = s.MarkRead(ctx, res.MessageID)
	require.NoError(t, err)
	assert.False(t, changed, "repeat read is a no-op")

	var msg models.Message
	require.NoError(t, s.db.First(&msg, "id = ?", res.MessageID).Error)
	assert.Equal(t, models.MessageStatusRead, msg.Status)
	assert.NotNil(t, msg.DeliveredAt)
	assert.NotNil(t, msg.ReadAt)

	_, err = s.MarkRead(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadInbox(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	first, err := send(s, c.boss, c.human, models.PriorityNormal)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := send(s, c.boss, c.human, models.PriorityHigh)
	require.NoError(t, err)
	_, err = s.MarkRead(ctx, first.MessageID)
	require.NoError(t, err)

	inbox, err := s.ReadInbox(ctx, c.human.ID, "")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, second.MessageID, inbox[0].ID)
	assert.Equal(t, "Boss", inbox[0].FromName)
	assert.Equal(t, models.RoleRightHand, inbox[0].FromRole)

	queued, err := s.ReadInbox(ctx, c.human.ID, models.MessageStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, second.MessageID, queued[0].ID)

	_, err = s.ReadInbox(ctx, c.human.ID, "lost")
	assert.ErrorIs(t, err, ErrInvalid)
}
