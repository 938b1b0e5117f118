package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"agentverse/internal/adapter/settings"
	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
	"agentverse/internal/usecase/board"
	"agentverse/internal/usecase/chat"
	"agentverse/internal/usecase/flow"
	"agentverse/internal/usecase/orchestration"
)

const testToken = "test-token"

// --- test doubles ---

type mockLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (m *mockLLM) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: m.reply}}, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) set(reply string, err error) {
	m.mu.Lock()
	m.reply, m.err = reply, err
	m.mu.Unlock()
}

// syncBus delivers events inline so tests can assert right after a request.
type syncBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(domain.Event) bool
	byType map[int]domain.EventHandler
	events []domain.Event
}

func newSyncBus() *syncBus {
	return &syncBus{subs: map[int]func(domain.Event) bool{}, byType: map[int]domain.EventHandler{}}
}

func (b *syncBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	var hs []domain.EventHandler
	for id, match := range b.subs {
		if match(event) {
			hs = append(hs, b.byType[id])
		}
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *syncBus) add(match func(domain.Event) bool, h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = match
	b.byType[id] = h
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		delete(b.byType, id)
		b.mu.Unlock()
	}
}

func (b *syncBus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	return b.add(func(e domain.Event) bool { return e.Type == t }, h)
}

func (b *syncBus) SubscribeAll(h domain.EventHandler) func() {
	return b.add(func(domain.Event) bool { return true }, h)
}

func (b *syncBus) Close() {}

func (b *syncBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

// --- fixture ---

type fixture struct {
	srv   *Server
	llm   *mockLLM
	bus   *syncBus
	board *board.Board
}

func newFixture(t *testing.T, cfg config.GatewayConfig) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := &mockLLM{}
	bus := newSyncBus()
	store := settings.NewMemoryStore(domain.DefaultSettings())

	engine, err := flow.NewEngine(flow.EngineDeps{Provider: llm, Settings: store, Bus: bus, Logger: logger})
	require.NoError(t, err)
	flows := flow.NewService(engine)
	orch, err := orchestration.New(orchestration.Deps{Flows: flows, Strategy: orchestration.StrategySimulate, Logger: logger})
	require.NoError(t, err)
	orch.Register(flows)

	if cfg.Auth.Tokens == nil {
		cfg.Auth.Tokens = []config.TokenConfig{{Token: testToken, Name: "tester"}}
	}
	b := board.New()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, cfg, Deps{
		Flows:    flows,
		Chat:     chat.NewService(flows),
		Settings: store,
		Board:    b,
		Bus:      bus,
		Logger:   logger,
		Provider: "mock",
		Strategy: orch.Strategy(),
		Version:  "test",
	})
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, llm: llm, bus: bus, board: b}
}

// do sends an authenticated request through the router.
func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
}

var _ http.Handler = (*Server)(nil)
