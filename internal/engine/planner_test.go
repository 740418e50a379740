package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/processor"
	"github.com/alexisbeaulieu97/diva/internal/processor/processortest"
)

func TestGeneratePlan(t *testing.T) {
	t.Parallel()

	page := newTestPage(1, diamondDef(), processortest.Registry(nil))
	_, graph := openGraph(t, page)

	plan, err := GeneratePlan("diamond", graph)
	require.NoError(t, err)
	require.NotNil(t, plan)

	require.Equal(t, "diamond", plan.Pipeline)
	require.Len(t, plan.Levels, 3)
	require.Len(t, plan.Levels[0].Processors, 2)
	require.Equal(t, "a", plan.Levels[0].Processors[0].ID)
	require.Equal(t, "constant", plan.Levels[0].Processors[0].Service)
	require.Equal(t, processor.StateProcessing, plan.Levels[0].Processors[0].State)
	require.Equal(t, processor.StateWaiting, plan.Levels[1].Processors[0].State)
	require.Equal(t, 4, plan.Pending())
}

func TestGeneratePlan_CountsOnlyPendingProcessors(t *testing.T) {
	t.Parallel()

	page := newTestPage(1, diamondDef(), processortest.Registry(nil))
	result := runPage(t, context.Background(), page, newPool(t, 2))
	require.Equal(t, OutcomeSucceeded, result.Outcome)

	_, graph := openGraph(t, page)
	plan, err := GeneratePlan("diamond", graph)
	require.NoError(t, err)
	require.Zero(t, plan.Pending())
}

func TestGeneratePlan_String(t *testing.T) {
	t.Parallel()

	page := newTestPage(1, diamondDef(), processortest.Registry(nil))
	_, graph := openGraph(t, page)

	plan, err := GeneratePlan("diamond", graph)
	require.NoError(t, err)

	summary := plan.String()
	require.Contains(t, summary, "Level 0 (2 processors): a (constant, PROCESSING), b (constant, PROCESSING)")
	require.Contains(t, summary, "Level 1 (1 processors): x (sum, WAITING)")
	require.Contains(t, summary, "Level 2")
}

func TestGeneratePlan_RejectsNilGraph(t *testing.T) {
	t.Parallel()

	_, err := GeneratePlan("x", nil)
	require.Error(t, err)
}
