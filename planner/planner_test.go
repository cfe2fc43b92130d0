package planner

import (
	"context"
	"testing"

	"github.com/localfirst/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanWellFormedArray(t *testing.T) {
	resp := `Here is the plan:
[
  {"id": "step_1", "action": {"type": "Screenshot"}, "description": "look", "timeout": 5, "retry_on_failure": false},
  {"id": "step_2", "action": {"type": "Click", "target": {"type": "TextMatch", "text": "Open", "fuzzy": true}}, "description": "click open", "timeout": 10}
]
trailing prose`

	steps, err := ParsePlan(resp)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, core.ActionScreenshot, steps[0].Action.Kind)
	assert.Equal(t, core.ActionClick, steps[1].Action.Kind)
	assert.Equal(t, core.TargetTextMatch, steps[1].Action.Target.Kind)
	assert.Equal(t, "Open", steps[1].Action.Target.Text)
	assert.True(t, steps[1].RetryOnFailure)
}

func TestParsePlanMissingClosingBracketErrors(t *testing.T) {
	_, err := ParsePlan(`[{"id": "step_1"`)
	require.Error(t, err)
	var parseErr *core.PlanParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParsePlanNoArrayErrors(t *testing.T) {
	_, err := ParsePlan(`sorry, I cannot help with that`)
	require.Error(t, err)
	var parseErr *core.PlanParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParsePlanUnknownActionTypeErrors(t *testing.T) {
	_, err := ParsePlan(`[{"id": "step_1", "description": "x", "action": {"type": "Teleport"}}]`)
	require.Error(t, err)
	var parseErr *core.PlanParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestPlannerFallsBackWithoutRouter(t *testing.T) {
	p := New(nil, core.NoOpLogger{})
	steps := p.Plan(context.Background(), "organize my downloads folder")
	require.Len(t, steps, 2)
	assert.Equal(t, core.ActionScreenshot, steps[0].Action.Kind)
	assert.Equal(t, core.ActionSearchText, steps[1].Action.Kind)
	assert.Equal(t, "organize my downloads folder", steps[1].Action.Query)
}

func TestPlannerFallbackIsNeverEmptyForAnyDescription(t *testing.T) {
	p := New(nil, core.NoOpLogger{})
	for _, desc := range []string{"a", "do something complicated with many words", "短い"} {
		steps := p.Plan(context.Background(), desc)
		assert.NotEmpty(t, steps, "description %q produced zero steps", desc)
	}
}
