package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentverse/internal/domain"
	"agentverse/internal/infra/tracer"
)

// RunAgentToolName is the tool name the coordinator model calls.
const RunAgentToolName = "runAgent"

const maxDelegatedTaskLen = 16 * 1024

// AgentRunner executes one task as the given agent and returns its Markdown result.
type AgentRunner func(ctx context.Context, agent domain.AgentProfile, task string) (string, error)

// RunAgentTool lets an orchestrating model delegate a sub-task to a team member
// by name. It is bound to one orchestration's team.
type RunAgentTool struct {
	team   domain.OrchestrationInput
	run    AgentRunner
	bus    domain.EventBus
	logger *slog.Logger
}

// NewRunAgentTool creates a delegation tool for team. bus may be nil.
func NewRunAgentTool(team domain.OrchestrationInput, run AgentRunner, bus domain.EventBus, logger *slog.Logger) *RunAgentTool {
	return &RunAgentTool{team: team, run: run, bus: bus, logger: logger}
}

func (t *RunAgentTool) Name() string { return RunAgentToolName }
func (t *RunAgentTool) Description() string {
	return "Delegates a specific task to a designated agent in the team."
}

func (t *RunAgentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"agentName": {
					"type": "string",
					"description": "The name of the agent to run, which must be one of the available agents in the team."
				},
				"task": {
					"type": "string",
					"description": "The specific task for the agent to perform."
				}
			},
			"required": ["agentName", "task"]
		}`),
	}
}

type runAgentParams struct {
	AgentName string `json:"agentName"`
	Task      string `json:"task"`
}

// AgentNotFoundMessage is the in-band result for an unknown agent name.
func AgentNotFoundMessage(name string) string {
	return `Error: Agent "` + name + `" not found in the team.`
}

// Execute looks the agent up by exact name and runs the task as that agent.
// An unknown agent and a failed sub-run are reported in the result, never as
// a Go error, so the coordinating model can continue.
func (t *RunAgentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.runAgent", t.logger, params,
		func(ctx context.Context, span trace.Span, p runAgentParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("agent.name", p.AgentName))

			if err := ValidateAll(
				RequireField("task", p.Task),
				ValidateMaxLength("task", p.Task, maxDelegatedTaskLen),
			); err != nil {
				return nil, err
			}

			agent, found := t.team.FindAgent(p.AgentName)
			PublishToolEvent(ctx, t.bus, domain.EventDelegationStarted, domain.DelegationEventPayload{
				AgentName: p.AgentName,
				Task:      p.Task,
				Found:     found,
			})

			if !found {
				msg := AgentNotFoundMessage(p.AgentName)
				t.logger.Info("delegation to unknown agent", "agent", p.AgentName, "team", t.team.TeamName)
				PublishToolEvent(ctx, t.bus, domain.EventDelegationCompleted, domain.DelegationEventPayload{
					AgentName: p.AgentName,
					Task:      p.Task,
					Result:    msg,
				})
				return TextResult(msg), nil
			}

			result, err := t.run(ctx, agent, p.Task)
			if err != nil {
				t.logger.Warn("delegated agent run failed", "agent", agent.Name, "error", err)
				res := ErrResult("Error: %v", err)
				PublishToolEvent(ctx, t.bus, domain.EventDelegationCompleted, domain.DelegationEventPayload{
					AgentName: agent.Name,
					Task:      p.Task,
					Found:     true,
					Result:    res.Content,
					IsError:   true,
				})
				return res, nil
			}

			PublishToolEvent(ctx, t.bus, domain.EventDelegationCompleted, domain.DelegationEventPayload{
				AgentName: agent.Name,
				Task:      p.Task,
				Found:     true,
				Result:    result,
			})
			return TextResult(result), nil
		},
	)
}
