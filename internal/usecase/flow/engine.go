// Package flow runs prompt-template flows: validate the input, render a fixed
// prompt, call the model once and decode its JSON reply into a typed output.
package flow

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"agentverse/internal/domain"
	"agentverse/internal/infra/logger"
	"agentverse/internal/infra/tracer"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// SettingsSource supplies the generation settings used when a call carries no override.
type SettingsSource interface {
	Load(ctx context.Context) (domain.GenerationSettings, error)
}

// Definition binds a prompt template to its input validation and output shape.
type Definition[I, O any] struct {
	Name         string
	Template     string
	OutputSchema json.RawMessage
	// Validate runs before anything else; it must not do I/O.
	Validate func(op string, in I) error
	// Check runs on the decoded output for rules JSON Schema cannot express.
	Check func(out *O) error
}

// EngineDeps holds injected dependencies for the engine.
type EngineDeps struct {
	Provider  domain.LLMProvider
	Settings  SettingsSource
	Bus       domain.EventBus // optional
	Logger    *slog.Logger
	MaxTokens int // 0 leaves the provider default
}

// Engine executes flow definitions against one provider.
type Engine struct {
	deps      EngineDeps
	templates *template.Template

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewEngine parses the embedded prompt templates.
func NewEngine(deps EngineDeps) (*Engine, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &Engine{
		deps:      deps,
		templates: tmpl,
		schemas:   make(map[string]*jsonschema.Schema),
	}, nil
}

// Provider returns the engine's LLM provider.
func (e *Engine) Provider() domain.LLMProvider { return e.deps.Provider }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.deps.Logger }

// Bus returns the engine's event bus, which may be nil.
func (e *Engine) Bus() domain.EventBus { return e.deps.Bus }

// Render executes the named template with data.
func (e *Engine) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Option customises a single flow call.
type Option func(*callOptions)

type callOptions struct {
	settings *domain.GenerationSettings
	patch    *domain.SettingsPatch
	runID    string
}

// WithSettings replaces the stored settings for this call.
func WithSettings(s domain.GenerationSettings) Option {
	return func(o *callOptions) { o.settings = &s }
}

// WithSettingsPatch overrides individual settings for this call. It is merged
// over WithSettings or, without it, over the stored settings.
func WithSettingsPatch(p domain.SettingsPatch) Option {
	return func(o *callOptions) { o.patch = &p }
}

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(o *callOptions) { o.runID = id }
}

func collectOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRunID returns a fresh ULID string.
func NewRunID() string {
	return ulid.Make().String()
}

// Prepared is a validated, rendered call that has not been sent yet.
type Prepared struct {
	RunID    string
	Settings domain.GenerationSettings
	Request  domain.ChatRequest
}

// Prepare validates in, resolves settings and renders def's prompt into a
// provider request. No network call is made.
func Prepare[I, O any](ctx context.Context, e *Engine, def Definition[I, O], in I, opts ...Option) (*Prepared, error) {
	return prepare(ctx, e, def, in, collectOptions(opts))
}

func prepare[I, O any](ctx context.Context, e *Engine, def Definition[I, O], in I, o callOptions) (*Prepared, error) {
	op := "flow." + def.Name
	if def.Validate != nil {
		if err := def.Validate(op, in); err != nil {
			return nil, err
		}
	}

	settings, err := e.resolveSettings(ctx, o)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}

	prompt, err := e.Render(def.Template, in)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}

	runID := o.runID
	if runID == "" {
		runID = NewRunID()
	}

	req := domain.ChatRequest{
		Messages: []domain.Message{{
			Role:      domain.RoleUser,
			Content:   prompt,
			Timestamp: time.Now(),
		}},
		MaxTokens:      e.deps.MaxTokens,
		JSONOutput:     true,
		ResponseSchema: def.OutputSchema,
	}
	req.ApplySettings(settings)

	return &Prepared{RunID: runID, Settings: settings, Request: req}, nil
}

func (e *Engine) resolveSettings(ctx context.Context, o callOptions) (domain.GenerationSettings, error) {
	var s domain.GenerationSettings
	switch {
	case o.settings != nil:
		s = *o.settings
	case e.deps.Settings != nil:
		loaded, err := e.deps.Settings.Load(ctx)
		if err != nil {
			return s, fmt.Errorf("load settings: %w", err)
		}
		s = loaded
	default:
		s = domain.DefaultSettings()
	}
	if o.patch != nil {
		s = s.Merge(*o.patch)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Run executes def once: validate, render, call the provider, decode.
// Provider failures wrap domain.ErrGenerationFailed; replies that do not
// match def.OutputSchema return domain.ErrOutputShape.
func Run[I, O any](ctx context.Context, e *Engine, def Definition[I, O], in I, opts ...Option) (*O, error) {
	o := collectOptions(opts)
	if o.runID == "" {
		o.runID = NewRunID()
	}
	op := "flow." + def.Name
	start := time.Now()

	ctx = domain.ContextWithRunID(ctx, o.runID)
	ctx = logger.WithAttrs(ctx)
	logger.AddAttr(ctx, "run_id", o.runID)

	ctx, span := tracer.StartSpan(ctx, op,
		trace.WithAttributes(
			tracer.StringAttr("flow.name", def.Name),
			tracer.StringAttr("flow.run_id", o.runID),
		),
	)
	defer span.End()

	e.publish(ctx, domain.EventFlowStarted, o.runID, domain.FlowEventPayload{Flow: def.Name})

	fail := func(err error) (*O, error) {
		tracer.RecordError(span, err)
		e.publish(ctx, domain.EventFlowFailed, o.runID, domain.FlowEventPayload{
			Flow:       def.Name,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      err.Error(),
		})
		e.deps.Logger.WarnContext(ctx, "flow failed",
			"flow", def.Name,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return nil, err
	}

	p, err := prepare(ctx, e, def, in, o)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(tracer.StringAttr("llm.model", p.Settings.Model))

	callStart := time.Now()
	resp, err := e.deps.Provider.Chat(ctx, p.Request)
	if err != nil {
		return fail(domain.NewDomainError(op, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err), ""))
	}
	e.publish(ctx, domain.EventLLMCallCompleted, o.runID, domain.LLMCallPayload{
		Flow:             def.Name,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		DurationMs:       time.Since(callStart).Milliseconds(),
	})

	out, err := Decode(e, def, resp.Message.Content)
	if err != nil {
		return fail(err)
	}

	tracer.SetOK(span)
	e.publish(ctx, domain.EventFlowCompleted, o.runID, domain.FlowEventPayload{
		Flow:       def.Name,
		Model:      resp.Model,
		DurationMs: time.Since(start).Milliseconds(),
	})
	e.deps.Logger.InfoContext(ctx, "flow completed",
		"flow", def.Name,
		"model", p.Settings.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return out, nil
}

// Decode strips Markdown fences from content, validates it against
// def.OutputSchema and unmarshals it into O. Any mismatch is reported as
// domain.ErrOutputShape; nothing is salvaged from a partial reply.
func Decode[I, O any](e *Engine, def Definition[I, O], content string) (*O, error) {
	op := "flow." + def.Name
	raw := stripCodeFences(content)
	if raw == "" {
		return nil, domain.NewDomainError(op, domain.ErrOutputShape, "empty model output")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.NewDomainError(op, domain.ErrOutputShape, fmt.Sprintf("invalid JSON: %v", err))
	}

	if len(def.OutputSchema) > 0 {
		schema, err := e.compiledSchema(def.Name, def.OutputSchema)
		if err != nil {
			return nil, domain.WrapOp(op, err)
		}
		if result := schema.Validate(parsed); !result.IsValid() {
			return nil, domain.NewDomainError(op, domain.ErrOutputShape, fmt.Sprintf("%s", result.Error()))
		}
	}

	var out O
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, domain.NewDomainError(op, domain.ErrOutputShape, err.Error())
	}
	if def.Check != nil {
		if err := def.Check(&out); err != nil {
			return nil, domain.NewDomainError(op, domain.ErrOutputShape, err.Error())
		}
	}
	return &out, nil
}

func (e *Engine) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.schemas[name]; ok {
		return s, nil
	}
	s, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile output schema for %s: %w", name, err)
	}
	e.schemas[name] = s
	return s, nil
}

func (e *Engine) publish(ctx context.Context, t domain.EventType, runID string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(ctx, domain.NewEvent(t, runID, payload))
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
