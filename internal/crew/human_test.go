package crew

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func TestHumanState_LazyDefaults(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	st, err := s.GetHumanState(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.BurnoutScore)
	assert.Equal(t, "medium", st.EnergyLevel)
	assert.Equal(t, "working", st.CurrentActivity)
	assert.Equal(t, "neutral", st.MoodIndicator)

	again, err := s.GetHumanState(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)

	_, err = s.GetHumanState(ctx, c.boss.ID)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestHumanState_UpdateSyncsBurnout(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	st, err := s.UpdateHumanState(ctx, c.human.ID, HumanStateUpdate{
		BurnoutScore: intPtr(9), MoodIndicator: strPtr("stressed"),
	}, "wellness")
	require.NoError(t, err)
	assert.Equal(t, 9, st.BurnoutScore)
	assert.Equal(t, "stressed", st.MoodIndicator)
	assert.Equal(t, "medium", st.EnergyLevel)
	assert.Equal(t, "wellness", st.UpdatedBy)

	human, err := s.GetAgent(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, human.BurnoutScore)

	// The score setter keeps the state row in step.
	require.NoError(t, s.UpdateBurnoutScore(ctx, c.human.ID, 4))
	st, err = s.GetHumanState(ctx, c.human.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.BurnoutScore)
}

func TestHumanState_Validation(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	bad := []HumanStateUpdate{
		{BurnoutScore: intPtr(0)},
		{EnergyLevel: strPtr("infinite")},
		{CurrentActivity: strPtr("skydiving")},
		{MoodIndicator: strPtr("angry")},
		{ConsecutiveWorkDays: intPtr(-1)},
	}
	for _, u := range bad {
		_, err := s.UpdateHumanState(ctx, c.human.ID, u, "")
		assert.ErrorIs(t, err, ErrInvalid)
	}
}
