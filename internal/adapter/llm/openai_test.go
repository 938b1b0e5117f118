package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
)

func newTestOpenAI(t *testing.T, apiKey string, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai-test",
		BaseURL: server.URL + "/",
		APIKey:  apiKey,
		Model:   "gpt-4o-mini",
	}, newTestLogger())
}

func TestOpenAIProviderChat(t *testing.T) {
	var got openaiRequest
	provider := newTestOpenAI(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(openaiResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "Hello!"},
				FinishReason: "stop",
			}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Created: 1700000000,
		})
	})

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		Temperature: 0.2,
		TopP:        0.9,
		JSONOutput:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "Hello!", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", got.Model, "provider default model is used")
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.TopP, 1e-9)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAIProviderNoAPIKey(t *testing.T) {
	provider := newTestOpenAI(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"local"}}]}`))
	})
	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Message.Content)
}

func TestOpenAIProviderErrorResponses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusBadGateway, domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		provider := newTestOpenAI(t, "k", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := provider.Chat(context.Background(), domain.ChatRequest{
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestOpenAIChatInvalidJSON(t *testing.T) {
	provider := newTestOpenAI(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{`))
	})
	_, err := provider.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorContains(t, err, "unmarshal response")
}

func TestOpenAIChatReadBodyError(t *testing.T) {
	provider := NewOpenAIProvider(config.ProviderConfig{Name: "x", BaseURL: "http://localhost"}, newTestLogger())
	provider.client = brokenBodyClient()
	_, err := provider.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorContains(t, err, "read response")
}

func TestOpenAIRequestResponseSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	oaiReq := toOpenAIRequest(domain.ChatRequest{ResponseSchema: schema, JSONOutput: true})

	require.NotNil(t, oaiReq.ResponseFormat)
	assert.Equal(t, "json_schema", oaiReq.ResponseFormat.Type)
	require.NotNil(t, oaiReq.ResponseFormat.JSONSchema)
	assert.Equal(t, "output", oaiReq.ResponseFormat.JSONSchema.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(oaiReq.ResponseFormat.JSONSchema.Schema))
}

func TestOpenAIRequestPlainText(t *testing.T) {
	oaiReq := toOpenAIRequest(domain.ChatRequest{})
	assert.Nil(t, oaiReq.ResponseFormat)

	data, err := json.Marshal(oaiReq)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"temperature":0`)
	assert.NotContains(t, string(data), "max_tokens")
}

func TestOpenAIRequestWithToolCalls(t *testing.T) {
	oaiReq := toOpenAIRequest(domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "orchestrate"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "runAgent", Arguments: json.RawMessage(`{"agentName":"A","task":"t"}`)},
			}},
			{Role: domain.RoleTool, Name: "runAgent", Content: "result", ToolCalls: []domain.ToolCall{{ID: "call_1"}}},
		},
		Tools: []domain.ToolSchema{{Name: "runAgent", Description: "Delegates", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})

	require.Len(t, oaiReq.Messages, 3)
	assistant := oaiReq.Messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "function", assistant.ToolCalls[0].Type)
	assert.Equal(t, `{"agentName":"A","task":"t"}`, assistant.ToolCalls[0].Function.Arguments)

	tool := oaiReq.Messages[2]
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Empty(t, tool.ToolCalls)

	require.Len(t, oaiReq.Tools, 1)
	assert.Equal(t, "runAgent", oaiReq.Tools[0].Function.Name)
}

func TestOpenAIResponseWithToolCalls(t *testing.T) {
	result := fromOpenAIResponse(openaiResponse{
		Choices: []openaiChoice{{
			Message: openaiMessage{
				Role: "assistant",
				ToolCalls: []openaiToolCall{{
					ID:       "call_9",
					Type:     "function",
					Function: openaiToolCallFunction{Name: "runAgent", Arguments: `{"agentName":"B"}`},
				}},
			},
		}},
	})

	require.Len(t, result.Message.ToolCalls, 1)
	tc := result.Message.ToolCalls[0]
	assert.Equal(t, "call_9", tc.ID)
	assert.JSONEq(t, `{"agentName":"B"}`, string(tc.Arguments))
}

func TestOpenAIResponseEmptyChoices(t *testing.T) {
	result := fromOpenAIResponse(openaiResponse{ID: "x"})
	assert.Equal(t, "x", result.ID)
	assert.Empty(t, result.Message.Content)
}
