package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventFlowStarted   EventType = "flow.started"
	EventFlowCompleted EventType = "flow.completed"
	EventFlowFailed    EventType = "flow.failed"

	EventLLMCallCompleted EventType = "llm.call.completed"

	EventDelegationStarted   EventType = "delegation.started"
	EventDelegationCompleted EventType = "delegation.completed"

	EventOrchestrationStarted   EventType = "orchestration.started"
	EventOrchestrationCompleted EventType = "orchestration.completed"
	EventOrchestrationFailed    EventType = "orchestration.failed"

	EventSettingsUpdated EventType = "settings.updated"
	EventBoardChanged    EventType = "board.changed"
)

// Event is the envelope published on the event bus.
// RunID correlates every event emitted while serving one request.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a JSON payload. Marshal failures drop the payload.
func NewEvent(t EventType, runID string, payload any) Event {
	e := Event{Type: t, Timestamp: time.Now(), RunID: runID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}
	return e
}

// FlowEventPayload is attached to flow lifecycle events.
type FlowEventPayload struct {
	Flow       string `json:"flow"`
	Model      string `json:"model,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LLMCallPayload is attached to llm.call.completed.
type LLMCallPayload struct {
	Flow             string `json:"flow"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	DurationMs       int64  `json:"duration_ms"`
}

// DelegationEventPayload is attached to delegation events.
type DelegationEventPayload struct {
	AgentName string `json:"agent_name"`
	Task      string `json:"task"`
	Found     bool   `json:"found"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// OrchestrationEventPayload is attached to orchestration lifecycle events.
type OrchestrationEventPayload struct {
	TeamName   string `json:"team_name"`
	Strategy   string `json:"strategy"`
	Iterations int    `json:"iterations,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}
