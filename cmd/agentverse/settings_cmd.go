package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
)

func runSettings(args []string) error {
	args, cfgPath := splitConfigFlag(args)
	if len(args) == 0 {
		args = []string{"get"}
	}

	ctx := context.Background()
	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	var s domain.GenerationSettings
	switch args[0] {
	case "get":
		s, err = a.settings.Load(ctx)
	case "set":
		var patch domain.SettingsPatch
		patch, err = parseAssignments(args[1:])
		if err == nil {
			s, err = a.settings.Update(ctx, patch)
		}
	default:
		return fmt.Errorf("unknown settings subcommand: %s (want get or set)", args[0])
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// parseAssignments turns key=value pairs into a settings patch. Keys match
// the JSON names; top_k and top_p are accepted too.
func parseAssignments(pairs []string) (domain.SettingsPatch, error) {
	var p domain.SettingsPatch
	if len(pairs) == 0 {
		return p, fmt.Errorf("usage: agentverse settings set key=value ...")
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			return p, fmt.Errorf("invalid assignment %q", pair)
		}
		switch strings.ToLower(key) {
		case "model":
			p.Model = new(value)
		case "temperature":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return p, fmt.Errorf("temperature: %w", err)
			}
			p.Temperature = new(f)
		case "topk", "top_k":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("topK: %w", err)
			}
			p.TopK = new(n)
		case "topp", "top_p":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return p, fmt.Errorf("topP: %w", err)
			}
			p.TopP = new(f)
		default:
			return p, fmt.Errorf("unknown setting %q", key)
		}
	}
	return p, nil
}

func runEncrypt(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: agentverse encrypt <value>")
	}
	passphrase := os.Getenv(config.EnvPrefix + "_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("%s_CONFIG_KEY must be set", config.EnvPrefix)
	}
	enc, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("enc:%s\n", enc)
	return nil
}
