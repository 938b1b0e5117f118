// Package orchestration runs a team of agents on one task, either by letting
// a coordinator model delegate sub-tasks through the runAgent tool or by
// asking it to narrate the whole collaboration in a single reply.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentverse/internal/domain"
	"agentverse/internal/infra/logger"
	"agentverse/internal/infra/tracer"
	"agentverse/internal/usecase/flow"
)

// Strategies.
const (
	StrategyDelegate = "delegate"
	StrategySimulate = "simulate"
)

const defaultMaxIterations = 10

// Deps holds injected dependencies for the orchestrator.
type Deps struct {
	Flows         *flow.Service
	Strategy      string // "" means delegate
	MaxIterations int    // 0 means 10
	Bus           domain.EventBus
	Logger        *slog.Logger
}

// Orchestrator executes runOrchestration with one fixed strategy.
type Orchestrator struct {
	deps Deps
}

// New validates the strategy and returns an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch deps.Strategy {
	case "":
		deps.Strategy = StrategyDelegate
	case StrategyDelegate, StrategySimulate:
	default:
		return nil, fmt.Errorf("orchestration: unknown strategy %q", deps.Strategy)
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = defaultMaxIterations
	}
	if deps.Bus == nil {
		deps.Bus = deps.Flows.Engine().Bus()
	}
	return &Orchestrator{deps: deps}, nil
}

// Strategy returns the configured strategy.
func (o *Orchestrator) Strategy() string { return o.deps.Strategy }

// Register exposes Run as the runOrchestration flow on svc.
func (o *Orchestrator) Register(svc *flow.Service) {
	svc.Register(flow.NameRunOrchestration, flow.Typed(flow.NameRunOrchestration, o.Run))
}

// Run executes the team task and returns the synthesized Markdown result.
func (o *Orchestrator) Run(ctx context.Context, in domain.OrchestrationInput, opts ...flow.Option) (*flow.ResultOutput, error) {
	runID := flow.NewRunID()
	opts = append(opts, flow.WithRunID(runID))
	start := time.Now()

	ctx = domain.ContextWithRunID(ctx, runID)
	ctx = logger.WithAttrs(ctx)
	logger.AddAttr(ctx, "run_id", runID)

	ctx, span := tracer.StartSpan(ctx, "orchestration."+o.deps.Strategy,
		trace.WithAttributes(
			tracer.StringAttr("team.name", in.TeamName),
			tracer.IntAttr("team.size", len(in.Agents)),
		),
	)
	defer span.End()

	o.publish(ctx, domain.EventOrchestrationStarted, runID, domain.OrchestrationEventPayload{
		TeamName: in.TeamName,
		Strategy: o.deps.Strategy,
	})

	var (
		out        *flow.ResultOutput
		iterations int
		err        error
	)
	if o.deps.Strategy == StrategySimulate {
		iterations = 1
		out, err = flow.Run(ctx, o.deps.Flows.Engine(), flow.SimulateOrchestrationDef, in, opts...)
	} else {
		out, iterations, err = o.delegate(ctx, in, opts)
	}

	payload := domain.OrchestrationEventPayload{
		TeamName:   in.TeamName,
		Strategy:   o.deps.Strategy,
		Iterations: iterations,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		tracer.RecordError(span, err)
		payload.Error = err.Error()
		o.publish(ctx, domain.EventOrchestrationFailed, runID, payload)
		o.deps.Logger.WarnContext(ctx, "orchestration failed",
			"team", in.TeamName,
			"strategy", o.deps.Strategy,
			"iterations", iterations,
			"error", err,
		)
		return nil, err
	}

	tracer.SetOK(span)
	o.publish(ctx, domain.EventOrchestrationCompleted, runID, payload)
	o.deps.Logger.InfoContext(ctx, "orchestration completed",
		"team", in.TeamName,
		"strategy", o.deps.Strategy,
		"iterations", iterations,
		"duration_ms", payload.DurationMs,
	)
	return out, nil
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, runID string, payload any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(ctx, domain.NewEvent(t, runID, payload))
}
