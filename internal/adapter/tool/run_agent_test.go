package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentverse/internal/domain"
)

func testTeam() domain.OrchestrationInput {
	return domain.OrchestrationInput{
		TeamName: "Research Team",
		Agents: []domain.AgentProfile{
			{Name: "A", Role: "Researcher", Objectives: "Find facts"},
			{Name: "B", Role: "Writer", Objectives: "Write copy"},
			{Name: "A", Role: "Duplicate", Objectives: "Never chosen"},
		},
		Task: "Write a report",
	}
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []domain.AgentProfile
	tasks []string
	err   error
}

func (r *recordingRunner) run(_ context.Context, agent domain.AgentProfile, task string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, agent)
	r.tasks = append(r.tasks, task)
	if r.err != nil {
		return "", r.err
	}
	return "result from " + agent.Name + " (" + agent.Role + ")", nil
}

func TestRunAgentTool_Schema(t *testing.T) {
	tl := NewRunAgentTool(testTeam(), (&recordingRunner{}).run, nil, nopLogger())

	s := tl.Schema()
	assert.Equal(t, "runAgent", s.Name)
	assert.Equal(t, "Delegates a specific task to a designated agent in the team.", s.Description)
	assert.True(t, json.Valid(s.Parameters))
	assert.Contains(t, string(s.Parameters), `"required": ["agentName", "task"]`)
}

func TestRunAgentTool_ExactMatch(t *testing.T) {
	runner := &recordingRunner{}
	tl := NewRunAgentTool(testTeam(), runner.run, nil, nopLogger())

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"agentName":"A","task":"collect sources"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "result from A (Researcher)", res.Content, "first match wins")
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "collect sources", runner.tasks[0])
}

func TestRunAgentTool_NotFound(t *testing.T) {
	for _, name := range []string{"C", "a", " A"} {
		t.Run(name, func(t *testing.T) {
			runner := &recordingRunner{}
			tl := NewRunAgentTool(testTeam(), runner.run, nil, nopLogger())

			params, _ := json.Marshal(map[string]string{"agentName": name, "task": "t"})
			res, err := tl.Execute(context.Background(), params)
			require.NoError(t, err)
			assert.Equal(t, `Error: Agent "`+name+`" not found in the team.`, res.Content)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestRunAgentTool_SubRunFailureIsInBand(t *testing.T) {
	runner := &recordingRunner{err: errors.New("generation failed: rate limit exceeded")}
	bus := &recordingEventBus{}
	tl := NewRunAgentTool(testTeam(), runner.run, bus, nopLogger())

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"agentName":"B","task":"draft"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: generation failed: rate limit exceeded", res.Content)

	events := bus.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDelegationCompleted, events[1].Type)
	assert.Contains(t, string(events[1].Payload), `"is_error":true`)
}

func TestRunAgentTool_EmptyTask(t *testing.T) {
	runner := &recordingRunner{}
	tl := NewRunAgentTool(testTeam(), runner.run, nil, nopLogger())

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"agentName":"A","task":"  "}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "'task' is required")
	assert.Empty(t, runner.calls)
}

func TestRunAgentTool_EventsCarryRunID(t *testing.T) {
	bus := &recordingEventBus{}
	tl := NewRunAgentTool(testTeam(), (&recordingRunner{}).run, bus, nopLogger())

	ctx := domain.ContextWithRunID(context.Background(), "01ORCH")
	_, err := tl.Execute(ctx, json.RawMessage(`{"agentName":"B","task":"draft"}`))
	require.NoError(t, err)

	events := bus.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDelegationStarted, events[0].Type)
	assert.Equal(t, domain.EventDelegationCompleted, events[1].Type)
	for _, e := range events {
		assert.Equal(t, "01ORCH", e.RunID)
	}
}

func TestRunAgentTool_SchemaValidationViaRegistry(t *testing.T) {
	runner := &recordingRunner{}
	reg := NewRegistry(nopLogger())
	require.NoError(t, reg.Register(NewRunAgentTool(testTeam(), runner.run, nil, nopLogger())))

	tl, err := reg.Get(RunAgentToolName)
	require.NoError(t, err)

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"agentName":"A"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "schema validation failed")
	assert.Empty(t, runner.calls)
}
