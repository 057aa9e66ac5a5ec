package crew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/crew-bus/internal/models"
)

func TestSubordinates(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	subs, err := s.Subordinates(ctx, c.engManager.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "eng-worker", subs[0].Name)

	subs, err = s.Subordinates(ctx, c.boss.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 7)

	_, err = s.TerminateAgent(ctx, c.opsManager.ID)
	require.NoError(t, err)
	subs, err = s.Subordinates(ctx, c.boss.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 5, "a terminated manager hides its whole subtree")
}

func TestCompileReport(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	old, err := s.SendMessage(ctx, SendRequest{FromID: c.engWorker.ID, ToID: c.engManager.ID,
		Type: models.MessageTypeReport, Subject: "ancient"})
	require.NoError(t, err)
	require.NotEmpty(t, old.MessageID)

	clock.Advance(48 * time.Hour)
	for _, req := range []SendRequest{
		{FromID: c.engWorker.ID, ToID: c.engManager.ID, Type: models.MessageTypeReport, Subject: "tests green"},
		{FromID: c.engWorker.ID, ToID: c.engManager.ID, Type: models.MessageTypeAlert, Subject: "disk", Priority: models.PriorityHigh},
		{FromID: c.engWorker.ID, ToID: c.engManager.ID, Type: models.MessageTypeTask, Subject: "not a report"},
	} {
		_, err := s.SendMessage(ctx, req)
		require.NoError(t, err)
	}

	rep, err := s.CompileReport(ctx, c.engManager.ID, 24)
	require.NoError(t, err)
	assert.Equal(t, "Eng-Manager", rep.Director)
	assert.Equal(t, 2, rep.TotalMessages)
	require.Len(t, rep.Agents, 1)
	assert.Equal(t, "eng-worker", rep.Agents[0].Name)
	assert.Equal(t, 2, rep.Agents[0].ReportCount)
	assert.Contains(t, rep.Summary, "Report: Eng-Manager")
	assert.Contains(t, rep.Summary, "Period: last 24 hours")
	assert.Contains(t, rep.Summary, "[high] disk")

	rep, err = s.CompileReport(ctx, c.opsManager.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 24, rep.PeriodHours)
	assert.Zero(t, rep.TotalMessages)
	assert.Contains(t, rep.Summary, "No reports from subordinates.")

	_, err = s.CompileReport(ctx, c.engWorker.ID, 24)
	assert.ErrorIs(t, err, ErrInvalid)
}
