package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"agentverse/internal/infra/config"
	"agentverse/internal/infra/logger"
	"agentverse/internal/infra/tracer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "serve":
		err = runServe(os.Args[2:])
	case "flow":
		err = runFlow(os.Args[2:])
	case "settings":
		err = runSettings(os.Args[2:])
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'agentverse --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agentverse - AI agent team builder backend

USAGE:
    agentverse <COMMAND> [ARGS] [--config PATH]

COMMANDS:
    serve [config]              Run the HTTP/WebSocket gateway
    flow <name> [-f FILE]       Run one flow; input JSON from FILE or stdin
    flow list                   List flow names
    settings get                Print the stored generation settings
    settings set KEY=VALUE...   Update model, temperature, topK or topP
    encrypt <value>             Encrypt a secret for an "enc:" config value
                                (passphrase from AGENTVERSE_CONFIG_KEY)
    version                     Print the build version

CONFIGURATION:
    Config file: ./config.yaml, AGENTVERSE_CONFIG or --config
    Environment: AGENTVERSE_* variables override config
    GEMINI_API_KEY adds a default Gemini provider when none is configured

EXAMPLES:
    agentverse serve
    echo '{"roleDescription":"SEO analyst"}' | agentverse flow createAgentProfile
    agentverse flow runOrchestration -f team.json
    agentverse settings set temperature=0.3 model=gemini-2.5-pro`)
}

// splitConfigFlag removes --config PATH / --config=PATH from args.
func splitConfigFlag(args []string) (rest []string, path string) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
		}
	}
	return rest, path
}

func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(config.EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// bootstrap loads config and sets up logging and tracing. The returned
// cleanup flushes both.
func bootstrap(ctx context.Context, cfgPath string) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath(cfgPath))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser() //nolint:errcheck
		return nil, nil, nil, fmt.Errorf("tracer: %w", err)
	}

	cleanup := func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
		logCloser() //nolint:errcheck
	}
	return cfg, log, cleanup, nil
}
