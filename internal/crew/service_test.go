package crew

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/crew-bus/internal/events"
	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t.UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

// testCrew holds the seeded hierarchy:
//
//	Alex (human)
//	  Boss (right_hand)
//	    guard (security), wellness, strategy
//	    Eng-Manager -> eng-worker
//	    Ops-Manager -> ops-worker
type testCrew struct {
	human, boss, guard, wellness, strategy *models.Agent
	engManager, opsManager                 *models.Agent
	engWorker, opsWorker                   *models.Agent
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	db, err := models.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(db, opts...), clock
}

func seedCrew(t *testing.T, s *Service) testCrew {
	t.Helper()
	ctx := context.Background()
	up := func(name string, typ models.AgentType, parent string) *models.Agent {
		a, err := s.UpsertAgent(ctx, AgentSpec{Name: name, Type: typ, Parent: parent})
		require.NoError(t, err, "seeding %s", name)
		return a
	}

	c := testCrew{}
	c.human = up("Alex", models.AgentTypeHuman, "")
	c.boss = up("Boss", models.AgentTypeRightHand, "Alex")
	c.guard = up("guard", models.AgentTypeSecurity, "Boss")
	c.wellness = up("wellness", models.AgentTypeWellness, "Boss")
	c.strategy = up("strategy", models.AgentTypeStrategy, "Boss")
	c.engManager = up("Eng-Manager", models.AgentTypeManager, "Boss")
	c.opsManager = up("Ops-Manager", models.AgentTypeManager, "Boss")
	c.engWorker = up("eng-worker", models.AgentTypeWorker, "Eng-Manager")
	c.opsWorker = up("ops-worker", models.AgentTypeWorker, "Ops-Manager")
	return c
}

func intPtr(v int) *int { return &v }

func TestService_Ping(t *testing.T) {
	s, _ := newTestService(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestService_EventsPublishedAfterCommit(t *testing.T) {
	bus := events.New(nil)
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []protocol.EventType
	)
	bus.SubscribeAll(func(_ context.Context, ev *protocol.Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	s, _ := newTestService(t, WithEvents(bus))
	ctx := context.Background()
	_, err := s.UpsertAgent(ctx, AgentSpec{Name: "Alex", Type: models.AgentTypeHuman})
	require.NoError(t, err)

	// A failed upsert publishes nothing.
	_, err = s.UpsertAgent(ctx, AgentSpec{Name: "w", Parent: "nobody"})
	require.Error(t, err)

	bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []protocol.EventType{protocol.EventAgentUpserted}, got)
}

func TestService_AuditTrail(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	start := clock.Now()
	clock.Advance(time.Minute)
	_, err := s.QuarantineAgent(ctx, c.engWorker.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.RestoreAgent(ctx, c.engWorker.ID)
	require.NoError(t, err)

	trail, err := s.GetAuditTrail(ctx, AuditFilter{AgentID: c.engWorker.ID})
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, string(protocol.EventAgentRestored), trail[0].EventType)
	assert.Equal(t, string(protocol.EventAgentQuarantined), trail[1].EventType)
	assert.Equal(t, string(protocol.EventAgentUpserted), trail[2].EventType)

	since := start.Add(30 * time.Second)
	trail, err = s.GetAuditTrail(ctx, AuditFilter{AgentID: c.engWorker.ID, Since: &since})
	require.NoError(t, err)
	assert.Len(t, trail, 2)

	trail, err = s.GetAuditTrail(ctx, AuditFilter{EventType: string(protocol.EventAgentUpserted), Limit: 3})
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestService_Config(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	v, err := s.GetConfig(ctx, "crew_name", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	_, err = s.SetConfig(ctx, "crew_name", "alpha")
	require.NoError(t, err)
	_, err = s.SetConfig(ctx, "crew_name", "beta")
	require.NoError(t, err)
	_, err = s.SetConfig(ctx, "digest_hour", "8")
	require.NoError(t, err)

	v, err = s.GetConfig(ctx, "crew_name", "default")
	require.NoError(t, err)
	assert.Equal(t, "beta", v)

	all, err := s.ListConfig(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "crew_name", all[0].Key)

	require.NoError(t, s.DeleteConfig(ctx, "crew_name"))
	assert.ErrorIs(t, s.DeleteConfig(ctx, "crew_name"), ErrNotFound)

	_, err = s.SetConfig(ctx, "  ", "x")
	assert.ErrorIs(t, err, ErrInvalid)
}
