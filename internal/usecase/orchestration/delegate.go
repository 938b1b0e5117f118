package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/trace"

	"agentverse/internal/adapter/tool"
	"agentverse/internal/domain"
	"agentverse/internal/infra/tracer"
	"agentverse/internal/usecase/flow"
)

// delegate runs the coordinator loop: call the model, execute every runAgent
// call it makes, feed the results back, and stop at the first reply without
// tool calls. The final reply is decoded as {"result": ...}.
func (o *Orchestrator) delegate(ctx context.Context, in domain.OrchestrationInput, opts []flow.Option) (*flow.ResultOutput, int, error) {
	const op = "orchestration.delegate"
	def := flow.RunOrchestrationDef
	engine := o.deps.Flows.Engine()

	p, err := flow.Prepare(ctx, engine, def, in, opts...)
	if err != nil {
		return nil, 0, err
	}

	// Sub-runs use the coordinator's resolved settings.
	runner := func(ctx context.Context, agent domain.AgentProfile, task string) (string, error) {
		out, err := o.deps.Flows.RunAgent(ctx, flow.RunAgentInput{Agent: agent, Task: task}, flow.WithSettings(p.Settings))
		if err != nil {
			return "", err
		}
		return out.Result, nil
	}

	tools := tool.NewRegistry(o.deps.Logger)
	if err := tools.Register(tool.NewRunAgentTool(in, runner, o.deps.Bus, o.deps.Logger)); err != nil {
		return nil, 0, domain.WrapOp(op, err)
	}

	// Providers cannot combine function calling with enforced JSON output;
	// the prompt asks for the JSON object instead.
	req := p.Request
	req.Tools = tools.Schemas()
	req.JSONOutput = false
	req.ResponseSchema = nil

	for i := range o.deps.MaxIterations {
		resp, err := engine.Provider().Chat(ctx, req)
		if err != nil {
			return nil, i + 1, domain.NewDomainError(op, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err), "")
		}

		msg := resp.Message
		msg.Role = domain.RoleAssistant
		req.Messages = append(req.Messages, msg)

		if len(msg.ToolCalls) == 0 {
			out, err := flow.Decode(engine, def, msg.Content)
			return out, i + 1, err
		}

		o.deps.Logger.DebugContext(ctx, "coordinator requested tool calls",
			"iteration", i+1,
			"count", len(msg.ToolCalls),
		)

		results, err := o.executeCalls(ctx, tools, msg.ToolCalls)
		if err != nil {
			return nil, i + 1, domain.WrapOp(op, err)
		}
		req.Messages = append(req.Messages, results...)
	}

	return nil, o.deps.MaxIterations, domain.NewDomainError(op, domain.ErrMaxIterations,
		fmt.Sprintf("no final answer after %d model turns", o.deps.MaxIterations))
}

// executeCalls runs one turn's tool calls concurrently and returns one tool
// message per call, in call order.
func (o *Orchestrator) executeCalls(ctx context.Context, tools domain.ToolExecutor, calls []domain.ToolCall) ([]domain.Message, error) {
	results := make([]domain.Message, len(calls))

	var wg conc.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			results[i] = o.executeCall(ctx, tools, call)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		return nil, fmt.Errorf("tool call panicked: %v", r.Value)
	}
	return results, nil
}

func (o *Orchestrator) executeCall(ctx context.Context, tools domain.ToolExecutor, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "orchestration.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	content := ""
	t, err := tools.Get(call.Name)
	if err != nil {
		// Unknown tools are answered in-band so the model can correct itself.
		tracer.RecordError(span, err)
		content = fmt.Sprintf("Error: unknown tool %q", call.Name)
	} else {
		result, err := t.Execute(ctx, call.Arguments)
		switch {
		case err != nil:
			tracer.RecordError(span, err)
			content = "Error: " + err.Error()
		default:
			tracer.SetOK(span)
			content = result.Content
		}
	}

	return domain.Message{
		Role:    domain.RoleTool,
		Name:    call.Name,
		Content: content,
		ToolCalls: []domain.ToolCall{{
			ID:   call.ID,
			Name: call.Name,
		}},
		Timestamp: time.Now(),
	}
}
