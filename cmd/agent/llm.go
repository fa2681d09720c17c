package main

import (
	"fmt"
	"log/slog"

	"foodcourt/internal/adapter/llm"
	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

// initLLM builds the configured provider, wraps it in the circuit breaker
// when enabled, and resolves it back through the provider registry.
func initLLM(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	name := cfg.LLM.Provider
	if name == "" {
		name = "anthropic"
	}

	var provider domain.LLMProvider
	switch name {
	case "anthropic":
		provider = llm.NewAnthropicProvider(cfg.LLM, log)
	case "bedrock":
		p, err := createBedrockProvider(cfg.LLM, log)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	registry := llm.NewRegistry()
	if err := registry.Register(provider); err != nil {
		return nil, err
	}
	return registry.Get(name)
}
