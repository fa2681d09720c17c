//go:build !bedrock

package main

import (
	"fmt"
	"log/slog"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

func createBedrockProvider(_ config.LLMConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, fmt.Errorf("bedrock provider requires build with -tags bedrock")
}
