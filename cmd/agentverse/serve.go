package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"agentverse/internal/adapter/gateway"
)

func runServe(args []string) error {
	args, cfgPath := splitConfigFlag(args)
	if cfgPath == "" && len(args) > 0 {
		cfgPath = args[0]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	if !cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is disabled in config")
	}

	var auth gateway.Authenticator = gateway.NewStaticTokenAuth(cfg.Gateway.Auth.Tokens)
	if len(cfg.Gateway.Auth.Tokens) == 0 {
		if !isLoopback(cfg.Gateway.Addr) {
			return fmt.Errorf("gateway.auth.tokens is required when listening on %s", cfg.Gateway.Addr)
		}
		log.Warn("no gateway tokens configured; API is open to any local client", "addr", cfg.Gateway.Addr)
		auth = gateway.OpenAuth{}
	}

	srv := gateway.NewServer(ctx, cfg.Gateway, gateway.Deps{
		Flows:    a.flows,
		Chat:     a.chat,
		Settings: a.settings,
		Board:    a.board,
		Bus:      a.bus,
		Auth:     auth,
		Logger:   log,
		Provider: a.llm.DefaultLLM.Name(),
		Strategy: a.orch.Strategy(),
		Version:  version,
	})

	log.Info("agentverse serving",
		"addr", cfg.Gateway.Addr,
		"provider", a.llm.DefaultLLM.Name(),
		"strategy", a.orch.Strategy(),
		"storage", cfg.Storage.Driver,
	)
	return srv.Start(ctx)
}

// isLoopback reports whether addr binds only to a loopback interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
