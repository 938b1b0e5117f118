package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentverse/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

func TestFailoverPrimarySuccess(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Content: "primary response"}}, nil
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "primary response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "primary response")
	}
}

func TestFailoverPrimaryFailFallbackSuccess(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary down")
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Content: "fallback response"}}, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "fallback response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "fallback response")
	}
}

func TestFailoverAllFail(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary down")
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("fallback down")
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailoverName(t *testing.T) {
	primary := &mockProvider{name: "openai"}
	fp := NewFailoverProvider(primary, nil, slog.Default())
	if fp.Name() != "openai+failover" {
		t.Errorf("Name = %q, want %q", fp.Name(), "openai+failover")
	}
}

func TestFailoverProvider_AggregatesAllErrors(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary connection timeout")
		},
	}
	fb1 := &mockProvider{
		name: "gemini",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, domain.ErrRateLimit
		},
	}
	fb2 := &mockProvider{
		name: "claude",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, domain.ErrAuthInvalid
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fb1, fb2}, slog.Default())
	_, err := fp.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "test"}},
	})
	require.Error(t, err)

	for _, name := range []string{"primary", "gemini", "claude"} {
		assert.True(t, strings.Contains(err.Error(), name), "error should mention %q: %v", name, err)
	}
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(ctx context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback must not run after cancellation")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	_, err := fp.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{name: "vertex"}))
	require.NoError(t, r.Register(&mockProvider{name: "claude"}))
	assert.Error(t, r.Register(&mockProvider{name: "vertex"}))

	p, err := r.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	assert.Equal(t, []string{"claude", "vertex"}, r.List())
}
