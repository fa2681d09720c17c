//go:build bedrock

package main

import (
	"log/slog"

	"foodcourt/internal/adapter/llm"
	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

func createBedrockProvider(cfg config.LLMConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(cfg, log)
}
