// Package chat advances a stateless chatbot conversation by one bot message.
package chat

import (
	"context"
	"slices"

	"agentverse/internal/domain"
	"agentverse/internal/usecase/flow"
)

// Flows is the subset of the flow service a turn needs.
type Flows interface {
	RunChatbot(ctx context.Context, in flow.RunChatbotInput, opts ...flow.Option) (*flow.RunChatbotOutput, error)
}

// Service produces the next bot message for a persona and history.
type Service struct {
	flows Flows
}

// NewService creates a chat service backed by the runChatbot flow.
func NewService(flows Flows) *Service {
	return &Service{flows: flows}
}

// TurnResult is the bot reply and the history including it.
type TurnResult struct {
	Message string               `json:"message"`
	History []domain.ChatMessage `json:"history"`
}

// Turn returns the bot's reply and a new history with exactly one bot message
// appended. history is never modified and never aliased by the result.
func (s *Service) Turn(ctx context.Context, persona string, history []domain.ChatMessage, opts ...flow.Option) (*TurnResult, error) {
	out, err := s.flows.RunChatbot(ctx, flow.RunChatbotInput{
		Persona: persona,
		History: slices.Clone(history),
	}, opts...)
	if err != nil {
		return nil, err
	}

	next := make([]domain.ChatMessage, len(history), len(history)+1)
	copy(next, history)
	next = append(next, domain.ChatMessage{Role: domain.ChatRoleBot, Content: out.Message})

	return &TurnResult{Message: out.Message, History: next}, nil
}
