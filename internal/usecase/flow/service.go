package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"agentverse/internal/domain"
)

// Handler runs a flow from its raw JSON input.
type Handler func(ctx context.Context, raw json.RawMessage, opts ...Option) (any, error)

// Service exposes the flows by name. runOrchestration is registered by the
// orchestration package so the configured strategy decides its behaviour.
type Service struct {
	engine *Engine

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewService registers every single-call flow.
func NewService(engine *Engine) *Service {
	s := &Service{
		engine:   engine,
		handlers: make(map[string]Handler),
	}
	s.Register(NameCreateAgentProfile, handle(NameCreateAgentProfile, s.CreateAgentProfile))
	s.Register(NameSuggestToolDescription, handle(NameSuggestToolDescription, s.SuggestToolDescription))
	s.Register(NameCreateChatbot, handle(NameCreateChatbot, s.CreateChatbot))
	s.Register(NameCreateSupportbot, handle(NameCreateSupportbot, s.CreateSupportbot))
	s.Register(NameCreateSamContent, handle(NameCreateSamContent, s.CreateSamContent))
	s.Register(NameRunAgent, handle(NameRunAgent, s.RunAgent))
	s.Register(NameRunChatbot, handle(NameRunChatbot, s.RunChatbot))
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// Register adds or replaces a named handler.
func (s *Service) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Names returns the registered flow names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for n := range s.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke decodes raw into the named flow's input and runs it.
func (s *Service) Invoke(ctx context.Context, name string, raw json.RawMessage, opts ...Option) (any, error) {
	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("flow.Invoke", domain.ErrFlowNotFound, name)
	}
	return h(ctx, raw, opts...)
}

// Typed adapts a typed flow function into a Handler.
func Typed[I, O any](name string, call func(context.Context, I, ...Option) (*O, error)) Handler {
	return handle(name, call)
}

func handle[I, O any](name string, call func(context.Context, I, ...Option) (*O, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage, opts ...Option) (any, error) {
		var in I
		if err := DecodeInput(raw, &in); err != nil {
			return nil, domain.NewDomainError("flow."+name, domain.ErrValidation, err.Error())
		}
		return call(ctx, in, opts...)
	}
}

// DecodeInput unmarshals a flow input. An empty body decodes to the zero value
// so that field validation reports what is missing.
func DecodeInput(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid input JSON: %w", err)
	}
	return nil
}
