package usecase

import (
	"encoding/json"
	"strings"
	"testing"

	"foodcourt/internal/domain"
)

func TestTokenCounterEmptyText(t *testing.T) {
	tc := NewTokenCounter("gpt-4")
	if got := tc.CountText(""); got != 0 {
		t.Errorf("CountText(\"\") = %d, want 0", got)
	}
}

func TestTokenCounterNonEmptyText(t *testing.T) {
	tc := NewTokenCounter("gpt-4")
	text := "I would like to order a Cheese Pizza from Pizza Palace, please."
	if got := tc.CountText(text); got <= 0 {
		t.Errorf("CountText = %d, want > 0", got)
	}
}

func TestTokenCounterGrowsWithText(t *testing.T) {
	tc := NewTokenCounter("gpt-4")
	short := "List the restaurants available to henry."
	long := strings.Repeat(short+" ", 10)

	if tc.CountText(long) <= tc.CountText(short) {
		t.Error("longer text should count more tokens")
	}
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	// Models tiktoken does not know still produce usable estimates.
	tc := NewTokenCounter("anthropic.claude-3-5-sonnet-20241022-v2:0")
	text := "What dishes does Burger Bonanza have on the menu today?"
	if got := tc.CountText(text); got <= 0 {
		t.Errorf("CountText = %d, want > 0", got)
	}
}

func TestTokenCounterCountMessages(t *testing.T) {
	tc := NewTokenCounter("gpt-4")

	if got := tc.CountMessages(nil); got != 0 {
		t.Errorf("CountMessages(nil) = %d, want 0", got)
	}

	one := []domain.Message{
		{Role: domain.RoleUser, Content: "Show me the restaurants."},
	}
	two := append(one, domain.Message{Role: domain.RoleAssistant, Content: "Here are the restaurants you can order from."})

	c1 := tc.CountMessages(one)
	c2 := tc.CountMessages(two)
	if c1 < messageOverheadTokens {
		t.Errorf("single message count = %d, want >= %d", c1, messageOverheadTokens)
	}
	if c2 <= c1 {
		t.Errorf("two messages (%d) should count more than one (%d)", c2, c1)
	}
}

func TestTokenCounterCountsToolCalls(t *testing.T) {
	tc := NewTokenCounter("gpt-4")

	plain := []domain.Message{
		{Role: domain.RoleAssistant, Content: "checking"},
	}
	withCall := []domain.Message{
		{
			Role:    domain.RoleAssistant,
			Content: "checking",
			ToolCalls: []domain.ToolCall{
				{
					ID:        "c1",
					Name:      "request_dish_approval",
					Arguments: json.RawMessage(`{"username":"henry","dish_name":"Sushi Platter","restaurant_name":"Sushi World"}`),
				},
			},
		},
	}

	if tc.CountMessages(withCall) <= tc.CountMessages(plain) {
		t.Error("tool call name and arguments should add to the count")
	}
}
