package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"agentverse/internal/adapter/settings"
	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
	"agentverse/internal/usecase/board"
	"agentverse/internal/usecase/chat"
	"agentverse/internal/usecase/eventbus"
	"agentverse/internal/usecase/flow"
	"agentverse/internal/usecase/orchestration"
)

// settingsStore is a domain.SettingsStore that may hold resources.
type settingsStore interface {
	domain.SettingsStore
	Close() error
}

type nopCloser struct{ *settings.MemoryStore }

func (nopCloser) Close() error { return nil }

// app wires the use cases shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	llm      *LLMComponents
	bus      *eventbus.Bus
	settings settingsStore
	flows    *flow.Service
	orch     *orchestration.Orchestrator
	chat     *chat.Service
	board    *board.Board
}

// defaultsFrom seeds the settings store from the generation config.
func defaultsFrom(cfg config.GenerationConfig) domain.GenerationSettings {
	return domain.GenerationSettings{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopK:        cfg.TopK,
		TopP:        cfg.TopP,
	}
}

func openSettings(cfg *config.Config) (settingsStore, error) {
	defaults := defaultsFrom(cfg.Generation)
	switch cfg.Storage.Driver {
	case "memory":
		return nopCloser{settings.NewMemoryStore(defaults)}, nil
	case "sqlite", "":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return settings.NewSQLiteStore(cfg.Storage.Path, defaults)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newApp builds providers, storage, the event bus and the flow services.
// The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, needLLM bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	store, err := openSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	a.settings = store
	if !needLLM {
		return a, nil
	}

	a.llm, err = initLLM(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	a.bus = eventbus.New(log)

	engine, err := flow.NewEngine(flow.EngineDeps{
		Provider:  a.llm.DefaultLLM,
		Settings:  store,
		Bus:       a.bus,
		Logger:    log,
		MaxTokens: cfg.Generation.MaxTokens,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("flow engine: %w", err)
	}
	a.flows = flow.NewService(engine)

	a.orch, err = orchestration.New(orchestration.Deps{
		Flows:         a.flows,
		Strategy:      cfg.Orchestration.Strategy,
		MaxIterations: cfg.Orchestration.MaxIterations,
		Bus:           a.bus,
		Logger:        log,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.orch.Register(a.flows)

	a.chat = chat.NewService(a.flows)
	a.board = board.New()
	return a, nil
}

func (a *app) close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			a.log.Warn("close settings store", "error", err)
		}
	}
}
