package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

// markdownFields are output fields rendered as Markdown on a terminal.
var markdownFields = []string{"result", "blogPost", "agentProfile"}

func runFlow(args []string) error {
	args, cfgPath := splitConfigFlag(args)
	name, inputPath, err := parseFlowArgs(args)
	if err != nil {
		return err
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

	if name == "list" {
		for _, n := range a.flows.Names() {
			fmt.Println(n)
		}
		return nil
	}

	input, err := readInput(inputPath, os.Stdin)
	if err != nil {
		return err
	}

	out, err := a.flows.Invoke(ctx, name, input)
	if err != nil {
		return err
	}
	return renderOutput(os.Stdout, out, isatty.IsTerminal(os.Stdout.Fd()))
}

func parseFlowArgs(args []string) (name, inputPath string, err error) {
	for i := 0; i < len(args); i++ {
		switch {
		case (args[i] == "-f" || args[i] == "--file") && i+1 < len(args):
			inputPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-"):
			return "", "", fmt.Errorf("unknown flag %s", args[i])
		case name == "":
			name = args[i]
		default:
			return "", "", fmt.Errorf("unexpected argument %q", args[i])
		}
	}
	if name == "" {
		return "", "", fmt.Errorf("usage: agentverse flow <name> [-f input.json]")
	}
	return name, inputPath, nil
}

// readInput reads the flow input from path, or from stdin when path is
// empty or "-".
func readInput(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// renderOutput prints the flow output as indented JSON. On a terminal, a
// Markdown field is rendered with glamour instead.
func renderOutput(w io.Writer, out any, tty bool) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if tty {
		if md, ok := markdownField(data); ok {
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err == nil {
				rendered, err := r.Render(md)
				if err == nil {
					_, err = io.WriteString(w, rendered)
					return err
				}
			}
		}
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func markdownField(data []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) != 1 {
		return "", false
	}
	for _, key := range markdownFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}
