//go:build integration

package integration

import (
	"strings"
	"testing"

	"foodcourt/internal/adapter/llm"
	"foodcourt/internal/infra/config"
	"foodcourt/internal/usecase"
)

// TestE2E_QueryWithRealAnthropic drives the full loop against the live
// Messages API: real provider, real tool registry, seeded catalog. Requires
// ANTHROPIC_API_KEY; run with -tags integration.
func TestE2E_QueryWithRealAnthropic(t *testing.T) {
	SkipIfShort(t)
	icfg := LoadConfig()
	SkipIfNoAPIKey(t, icfg.AnthropicKey, "ANTHROPIC")

	ctx := NewTestContext(t, icfg.TestTimeout)
	h := newHarness(t)

	cfg := config.Defaults()
	cfg.LLM.APIKey = icfg.AnthropicKey

	provider := llm.NewAnthropicProvider(cfg.LLM, h.Logger)

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:   provider,
		Tools: h.Registry,
		ContextBuilder: usecase.NewContextBuilder(
			"You are the family food ordering assistant. Use the available tools to answer.",
			cfg.LLM.Model, 0, cfg.LLM.MaxTokens),
		Logger:          h.Logger,
		MaxIterations:   cfg.Agent.MaxIterations,
		ErrorClassifier: usecase.NewErrorClassifier(),
	})

	session := usecase.NewSession("e2e-test")
	answer, err := orch.HandleQuery(ctx, session, "What restaurants are available?")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}

	t.Logf("answer: %s", answer)

	if !strings.Contains(answer, "[Calling tool list_restaurants") {
		t.Error("expected a list_restaurants trace line")
	}
	if !strings.Contains(answer, "Pizza Palace") {
		t.Error("expected Pizza Palace in the answer")
	}
}

// TestE2E_DeniedDishesWithRealAnthropic checks that the model relays a
// denial rather than inventing menu content.
func TestE2E_DeniedDishesWithRealAnthropic(t *testing.T) {
	SkipIfShort(t)
	icfg := LoadConfig()
	SkipIfNoAPIKey(t, icfg.AnthropicKey, "ANTHROPIC")
	if icfg.SkipSlow {
		t.Skip("Skipping slow integration test")
	}

	ctx := NewTestContext(t, icfg.TestTimeout)
	h := newHarness(t)

	cfg := config.Defaults()
	cfg.LLM.APIKey = icfg.AnthropicKey

	provider := llm.NewAnthropicProvider(cfg.LLM, h.Logger)

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:   provider,
		Tools: h.Registry,
		ContextBuilder: usecase.NewContextBuilder(
			"You are the family food ordering assistant. The current user is henry. Their role is child. Use the available tools to answer.",
			cfg.LLM.Model, 0, cfg.LLM.MaxTokens),
		Logger:          h.Logger,
		MaxIterations:   cfg.Agent.MaxIterations,
		ErrorClassifier: usecase.NewErrorClassifier(),
	})

	session := usecase.NewSession("e2e-denied")
	answer, err := orch.HandleQuery(ctx, session, "Show me the dishes at Fancy French.")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}

	t.Logf("answer: %s", answer)

	if strings.Contains(answer, "Escargot") {
		t.Error("model should not see dishes henry is denied access to")
	}
}
