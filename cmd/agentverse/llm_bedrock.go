//go:build bedrock

package main

import (
	"context"
	"log/slog"

	"agentverse/internal/adapter/llm"
	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
)

func createBedrockProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(ctx, pc, log)
}
