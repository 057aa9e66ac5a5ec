package crew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/crew-bus/internal/models"
)

func TestFilterStrategyIdea(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()
	const idea = "Buy a new tablet for field staff"

	require.NoError(t, s.UpdateBurnoutScore(ctx, c.human.ID, 3))
	v, err := s.FilterStrategyIdea(ctx, c.boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaPass, v.Action)
	assert.Equal(t, "Novel idea, no similar rejections found. Passing to human.", v.Reason)

	require.NoError(t, s.UpdateBurnoutScore(ctx, c.human.ID, 8))
	v, err = s.FilterStrategyIdea(ctx, c.boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaQueue, v.Action)
	assert.Equal(t, "Human burnout is 8/10. Queuing for lower-burnout moment.", v.Reason)

	for _, subject := range []string{"Tablet rollout for sales", "Replace warehouse tablets"} {
		_, err := s.LogRejection(ctx, RejectionRequest{HumanID: c.human.ID, StrategyAgentID: c.strategy.ID,
			Subject: subject, Reason: "not now"})
		require.NoError(t, err)
	}
	v, err = s.FilterStrategyIdea(ctx, c.boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaFilter, v.Action)
	assert.Equal(t, 2, v.SimilarRejections)
	assert.Equal(t, "Found 2 similar past rejections. Filtering idea.", v.Reason)

	_, err = s.FilterStrategyIdea(ctx, c.strategy.ID, idea, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFilterStrategyIdea_RootRightHand(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	const idea = "Buy a new tablet for field staff"

	boss, err := s.UpsertAgent(ctx, AgentSpec{Name: "Boss", Type: models.AgentTypeRightHand})
	require.NoError(t, err)

	// No human registered yet: the burnout gate is skipped.
	v, err := s.FilterStrategyIdea(ctx, boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaPass, v.Action)

	human, err := s.UpsertAgent(ctx, AgentSpec{Name: "Alex", Type: models.AgentTypeHuman})
	require.NoError(t, err)
	require.NoError(t, s.UpdateBurnoutScore(ctx, human.ID, 9))
	v, err = s.FilterStrategyIdea(ctx, boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaQueue, v.Action)

	strategy, err := s.UpsertAgent(ctx, AgentSpec{Name: "strategy", Type: models.AgentTypeStrategy, Parent: "Boss"})
	require.NoError(t, err)
	for _, subject := range []string{"Tablet rollout for sales", "Replace warehouse tablets"} {
		_, err := s.LogRejection(ctx, RejectionRequest{HumanID: human.ID, StrategyAgentID: strategy.ID,
			Subject: subject, Reason: "not now"})
		require.NoError(t, err)
	}
	v, err = s.FilterStrategyIdea(ctx, boss.ID, idea, "")
	require.NoError(t, err)
	assert.Equal(t, IdeaFilter, v.Action)
	assert.Equal(t, 2, v.SimilarRejections)
}

func TestFilterIdeaMessage(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpdateBurnoutScore(ctx, c.human.ID, 3))
	res, err := s.SendMessage(ctx, SendRequest{FromID: c.strategy.ID, ToID: c.boss.ID,
		Type: models.MessageTypeIdea, Subject: "Buy a new tablet for field staff", Priority: models.PriorityNormal})
	require.NoError(t, err)

	v, err := s.FilterIdeaMessage(ctx, c.boss.ID, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, IdeaPass, v.Action)

	_, err = s.FilterIdeaMessage(ctx, c.boss.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FilterIdeaMessage(ctx, c.boss.ID, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestIdeaKeywords(t *testing.T) {
	got := ideaKeywords("Buy a new Tablet, for the field-staff and FIELD!")
	assert.Equal(t, []string{"tablet", "field-staff", "field"}, got)
}

func TestRecordHumanFeedback_OnceAndLearns(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	d, err := s.LogDecision(ctx, DecisionRequest{
		RightHandID: c.boss.ID, HumanID: c.human.ID, Type: models.DecisionFilter,
		Context: map[string]interface{}{"message_type": "idea", "subject": "Drone deliveries", "tags": "drones,logistics"},
		Action:  "filtered", Reasoning: "similar to past rejections",
	})
	require.NoError(t, err)

	require.NoError(t, s.RecordHumanFeedback(ctx, d.ID, true, "wanted to see it", "show me these"))
	err = s.RecordHumanFeedback(ctx, d.ID, false, "", "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, s.RecordHumanFeedback(ctx, "missing", true, "", ""), ErrNotFound)

	entries, err := s.SearchKnowledge(ctx, "Drone deliveries", models.KnowledgeRejection, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Human overrode filter on idea: Drone deliveries", entries[0].Subject)
	assert.Equal(t, "drones,logistics", entries[0].Tags)
	assert.Equal(t, "Boss", entries[0].AgentName)

	history, err := s.GetDecisionHistory(ctx, DecisionFilter{HumanID: c.human.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].HumanOverride)
	assert.True(t, *history[0].HumanOverride)
	assert.Equal(t, "Boss", history[0].RightHandName)
	assert.Equal(t, "Alex", history[0].HumanName)
}

func TestRecordHumanFeedback_NonIdeaDoesNotLearn(t *testing.T) {
	s, _ := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	d, err := s.LogDecision(ctx, DecisionRequest{RightHandID: c.boss.ID, HumanID: c.human.ID,
		Type: models.DecisionFilter, Context: map[string]interface{}{"message_type": "report", "subject": "Budget"},
		Action: "filtered"})
	require.NoError(t, err)
	require.NoError(t, s.RecordHumanFeedback(ctx, d.ID, true, "", ""))

	entries, err := s.SearchKnowledge(ctx, "", models.KnowledgeRejection, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetDecisionHistory_FiltersAndOrder(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	for _, typ := range []models.DecisionType{models.DecisionQueue, models.DecisionEscalate, models.DecisionQueue} {
		clock.Advance(time.Minute)
		_, err := s.LogDecision(ctx, DecisionRequest{RightHandID: c.boss.ID, HumanID: c.human.ID, Type: typ, Action: string(typ)})
		require.NoError(t, err)
	}

	all, err := s.GetDecisionHistory(ctx, DecisionFilter{HumanID: c.human.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt))

	queued, err := s.GetDecisionHistory(ctx, DecisionFilter{HumanID: c.human.ID, Type: models.DecisionQueue, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	_, err = s.LogDecision(ctx, DecisionRequest{RightHandID: c.boss.ID, HumanID: c.human.ID, Type: "ponder", Action: "x"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.LogDecision(ctx, DecisionRequest{RightHandID: c.strategy.ID, HumanID: c.human.ID,
		Type: models.DecisionQueue, Action: "x"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestKnowledge_StoreAndSearch(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	_, err := s.StoreKnowledge(ctx, KnowledgeRequest{AgentID: c.strategy.ID, Category: models.KnowledgeContact,
		Subject: "Dana at Acme", Content: map[string]string{"email": "dana@acme.test"}, Tags: "acme,vendor"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.StoreKnowledge(ctx, KnowledgeRequest{AgentID: c.boss.ID, Category: models.KnowledgeLesson,
		Subject: "Acme invoices run 100% late", Tags: "acme"})
	require.NoError(t, err)

	hits, err := s.SearchKnowledge(ctx, "acme", "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, models.KnowledgeLesson, hits[0].Category)

	hits, err = s.SearchKnowledge(ctx, "acme", models.KnowledgeContact, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "strategy", hits[0].AgentName)

	// Wildcards in the query match literally.
	hits, err = s.SearchKnowledge(ctx, "100%", "", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	hits, err = s.SearchKnowledge(ctx, "%", "", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.StoreKnowledge(ctx, KnowledgeRequest{AgentID: c.boss.ID, Category: "gossip", Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.SearchKnowledge(ctx, "x", "gossip", 0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRejectionHistory(t *testing.T) {
	s, clock := newTestService(t)
	c := seedCrew(t, s)
	ctx := context.Background()

	for _, subject := range []string{"First idea", "Second idea"} {
		clock.Advance(time.Minute)
		_, err := s.LogRejection(ctx, RejectionRequest{HumanID: c.human.ID, StrategyAgentID: c.strategy.ID, Subject: subject})
		require.NoError(t, err)
	}

	got, err := s.GetRejectionHistory(ctx, c.human.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Second idea", got[0].IdeaSubject)
	assert.Equal(t, "strategy", got[0].StrategyAgentName)

	_, err = s.LogRejection(ctx, RejectionRequest{HumanID: c.boss.ID, StrategyAgentID: c.strategy.ID, Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalid)
}
