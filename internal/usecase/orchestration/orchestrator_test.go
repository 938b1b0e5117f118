package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentverse/internal/adapter/tool"
	"agentverse/internal/domain"
	"agentverse/internal/usecase/flow"
)

// --- Mocks ---

// scriptedLLM answers coordinator turns from a script and sub-agent runs by
// echoing the agent name.
type scriptedLLM struct {
	mu          sync.Mutex
	coordinator []domain.Message
	agentErr    error
	requests    []domain.ChatRequest
}

func (m *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	prompt := req.Messages[0].Content
	if strings.HasPrefix(prompt, "You are an AI agent executor.") {
		if m.agentErr != nil {
			return nil, m.agentErr
		}
		name := between(prompt, "Agent Name: ", "\n")
		task := between(prompt, "Task: ", "\n")
		body, _ := json.Marshal(map[string]string{"result": name + " did " + task})
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: string(body)}}, nil
	}

	if len(m.coordinator) == 0 {
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: `{"result":"fallback"}`}}, nil
	}
	next := m.coordinator[0]
	if len(m.coordinator) > 1 {
		m.coordinator = m.coordinator[1:]
	}
	return &domain.ChatResponse{Message: next}, nil
}

func (m *scriptedLLM) Name() string { return "scripted" }

func (m *scriptedLLM) coordinatorRequests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatRequest
	for _, r := range m.requests {
		if len(r.Tools) > 0 || strings.HasPrefix(r.Messages[0].Content, "You are a master orchestrator") {
			out = append(out, r)
		}
	}
	return out
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                  {}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func toolCall(id, agent, task string) domain.ToolCall {
	args, _ := json.Marshal(map[string]string{"agentName": agent, "task": task})
	return domain.ToolCall{ID: id, Name: tool.RunAgentToolName, Arguments: args}
}

func final(result string) domain.Message {
	body, _ := json.Marshal(map[string]string{"result": result})
	return domain.Message{Role: domain.RoleAssistant, Content: string(body)}
}

var team = domain.OrchestrationInput{
	TeamName: "Research Team",
	Task:     "Write a report",
	Agents: []domain.AgentProfile{
		{Name: "A", Role: "Researcher", Objectives: "Research"},
		{Name: "B", Role: "Writer", Objectives: "Write"},
	},
}

func newOrchestrator(t *testing.T, llm domain.LLMProvider, bus domain.EventBus, strategy string, maxIter int) *Orchestrator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := flow.NewEngine(flow.EngineDeps{Provider: llm, Bus: bus, Logger: log})
	require.NoError(t, err)
	o, err := New(Deps{
		Flows:         flow.NewService(engine),
		Strategy:      strategy,
		MaxIterations: maxIter,
		Logger:        log,
	})
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestDelegateLookupIsExact(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{
		{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				toolCall("call_1", "A", "collect data"),
				toolCall("call_2", "C", "draw charts"),
				toolCall("call_3", "a", "collect data"),
			},
		},
		final("# Report"),
	}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	out, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	assert.Equal(t, "# Report", out.Result)

	coord := llm.coordinatorRequests()
	require.Len(t, coord, 2)

	first := coord[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "runAgent", first.Tools[0].Name)
	assert.Equal(t, "Delegates a specific task to a designated agent in the team.", first.Tools[0].Description)
	assert.False(t, first.JSONOutput)

	msgs := coord[1].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	tools := msgs[2:]
	wantIDs := []string{"call_1", "call_2", "call_3"}
	for i, m := range tools {
		assert.Equal(t, domain.RoleTool, m.Role)
		assert.Equal(t, "runAgent", m.Name)
		require.Len(t, m.ToolCalls, 1)
		assert.Equal(t, wantIDs[i], m.ToolCalls[0].ID)
	}
	assert.Equal(t, "A did collect data", tools[0].Content)
	assert.Equal(t, `Error: Agent "C" not found in the team.`, tools[1].Content)
	assert.Equal(t, `Error: Agent "a" not found in the team.`, tools[2].Content)
}

func TestDelegateSubRunFailureIsInBand(t *testing.T) {
	llm := &scriptedLLM{
		agentErr: fmt.Errorf("boom: %w", domain.ErrProviderUnavailable),
		coordinator: []domain.Message{
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{toolCall("c1", "B", "write")}},
			final("partial"),
		},
	}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	out, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	assert.Equal(t, "partial", out.Result)

	coord := llm.coordinatorRequests()
	require.Len(t, coord, 2)
	toolMsg := coord[1].Messages[2]
	assert.True(t, strings.HasPrefix(toolMsg.Content, "Error: "), toolMsg.Content)
	assert.Contains(t, toolMsg.Content, "generation failed")
}

func TestDelegateUnknownToolAnsweredInBand(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "x", Name: "webSearch", Arguments: json.RawMessage(`{}`)}}},
		final("ok"),
	}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	_, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	toolMsg := llm.coordinatorRequests()[1].Messages[2]
	assert.Equal(t, `Error: unknown tool "webSearch"`, toolMsg.Content)
	assert.Equal(t, "x", toolMsg.ToolCalls[0].ID)
}

func TestDelegateInvalidArgumentsAnsweredInBand(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "x", Name: "runAgent", Arguments: json.RawMessage(`{"agentName":"A"}`)}}},
		final("ok"),
	}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	_, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	toolMsg := llm.coordinatorRequests()[1].Messages[2]
	assert.Contains(t, toolMsg.Content, "schema validation failed")
}

func TestDelegateMaxIterations(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{toolCall("c", "A", "again")}},
	}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 3)

	_, err := o.Run(context.Background(), team)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxIterations)
	assert.Equal(t, domain.CodeMaxIterations, domain.ErrorCodeOf(err))
	assert.Len(t, llm.coordinatorRequests(), 3)
}

func TestDelegateCoordinatorFailure(t *testing.T) {
	o := newOrchestrator(t, failingLLM{err: domain.ErrAuthInvalid}, nil, StrategyDelegate, 0)

	_, err := o.Run(context.Background(), team)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestDelegateFinalReplyMustBeJSON(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{{Role: domain.RoleAssistant, Content: "All done!"}}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	_, err := o.Run(context.Background(), team)
	assert.ErrorIs(t, err, domain.ErrOutputShape)
}

func TestDelegatePromptAsksForResultObject(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{toolCall("1", "A", "x")}},
		{Role: domain.RoleAssistant, Content: "```json\n{\"result\": \"## Report\\nDone.\"}\n```"},
	}}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	out, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	assert.Equal(t, "## Report\nDone.", out.Result)

	reqs := llm.coordinatorRequests()
	require.NotEmpty(t, reqs)
	first := reqs[0]
	assert.False(t, first.JSONOutput)
	assert.Empty(t, first.ResponseSchema)
	prompt := first.Messages[0].Content
	assert.True(t, strings.HasPrefix(prompt, "You are a master orchestrator"), "template comment leaves no output")
	assert.Contains(t, prompt, `reply with a single JSON object and nothing else, in the form {"result": "<the final result in Markdown>"}`)
}

func TestDelegateValidationBeforeProviderCall(t *testing.T) {
	llm := &scriptedLLM{}
	o := newOrchestrator(t, llm, nil, StrategyDelegate, 0)

	bad := team
	bad.Agents = nil
	_, err := o.Run(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, llm.requests)
}

func TestDelegateEvents(t *testing.T) {
	bus := &recordingBus{}
	llm := &scriptedLLM{coordinator: []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{toolCall("1", "A", "x"), toolCall("2", "Z", "y")}},
		final("done"),
	}}
	o := newOrchestrator(t, llm, bus, StrategyDelegate, 0)

	_, err := o.Run(context.Background(), team)
	require.NoError(t, err)

	assert.Equal(t, 1, bus.count(domain.EventOrchestrationStarted))
	assert.Equal(t, 1, bus.count(domain.EventOrchestrationCompleted))
	assert.Equal(t, 2, bus.count(domain.EventDelegationStarted))
	assert.Equal(t, 2, bus.count(domain.EventDelegationCompleted))
	// Only the found agent runs the runAgent flow.
	assert.Equal(t, 1, bus.count(domain.EventFlowCompleted))
}

func TestSimulateSingleCall(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{final("## Plan\n...")}}
	o := newOrchestrator(t, llm, nil, StrategySimulate, 0)

	out, err := o.Run(context.Background(), team)
	require.NoError(t, err)
	assert.Equal(t, "## Plan\n...", out.Result)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Empty(t, req.Tools)
	assert.True(t, req.JSONOutput)
	assert.NotContains(t, req.Messages[0].Content, "'runAgent' tool")
	assert.Contains(t, req.Messages[0].Content, "- A (Researcher): Research")
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	engine, err := flow.NewEngine(flow.EngineDeps{Provider: &scriptedLLM{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	_, err = New(Deps{Flows: flow.NewService(engine), Strategy: "mixed"})
	assert.Error(t, err)

	o, err := New(Deps{Flows: flow.NewService(engine), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	assert.Equal(t, StrategyDelegate, o.Strategy())
	assert.Equal(t, defaultMaxIterations, o.deps.MaxIterations)
}

func TestRegisterExposesFlow(t *testing.T) {
	llm := &scriptedLLM{coordinator: []domain.Message{final("via service")}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := flow.NewEngine(flow.EngineDeps{Provider: llm, Logger: log})
	require.NoError(t, err)
	svc := flow.NewService(engine)
	o, err := New(Deps{Flows: svc, Logger: log})
	require.NoError(t, err)
	o.Register(svc)

	raw, _ := json.Marshal(team)
	out, err := svc.Invoke(context.Background(), flow.NameRunOrchestration, raw)
	require.NoError(t, err)
	assert.Equal(t, "via service", out.(*flow.ResultOutput).Result)
}

type failingLLM struct{ err error }

func (f failingLLM) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, f.err
}
func (f failingLLM) Name() string { return "failing" }

