package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"foodcourt/internal/domain"
)

// Benchmark basic operations that are performance-critical

// BenchmarkContextBuilderBuild benchmarks building chat requests
func BenchmarkContextBuilderBuild(b *testing.B) {
	cb := NewContextBuilder("You are a food ordering assistant.", "test-model", 100, 4096)

	history := make([]domain.Message, 10)
	for i := 0; i < 10; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history[i] = domain.Message{
			Role:      role,
			Content:   fmt.Sprintf("Message %d", i),
			Timestamp: time.Now(),
		}
	}

	schemas := []domain.ToolSchema{
		{Name: "list_restaurants", Description: "List available restaurants"},
		{Name: "order_dish", Description: "Place an order"},
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = cb.Build(history, schemas)
	}
}

// BenchmarkSessionAddMessage benchmarks adding messages to session
func BenchmarkSessionAddMessage(b *testing.B) {
	session := &Session{
		ID:        "bench-session",
		Msgs:      make([]domain.Message, 0, 1000),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	msg := domain.Message{
		Role:      domain.RoleUser,
		Content:   "Benchmark message",
		Timestamp: time.Now(),
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		session.AddMessage(msg)
		// Reset periodically to avoid unbounded growth
		if i%100 == 99 {
			session.Msgs = session.Msgs[:0]
		}
	}
}

// BenchmarkSessionMessages benchmarks copying message history
func BenchmarkSessionMessages(b *testing.B) {
	session := &Session{
		ID:   "bench-session",
		Msgs: make([]domain.Message, 50),
	}

	// Populate with messages
	for i := 0; i < 50; i++ {
		session.Msgs[i] = domain.Message{
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("Message %d", i),
			Timestamp: time.Now(),
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = session.Messages()
	}
}

// BenchmarkSessionManagerGetOrCreate benchmarks session lookup/creation
func BenchmarkSessionManagerGetOrCreate(b *testing.B) {
	mgr := NewSessionManager(b.TempDir())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		sessionID := fmt.Sprintf("session-%d", i%100) // Reuse 100 sessions
		_ = mgr.GetOrCreate(sessionID)
	}
}

// BenchmarkSessionManagerConcurrent benchmarks concurrent session access
func BenchmarkSessionManagerConcurrent(b *testing.B) {
	mgr := NewSessionManager(b.TempDir())

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			sessionID := fmt.Sprintf("session-%d", i%10)
			session := mgr.GetOrCreate(sessionID)
			session.AddMessage(domain.Message{
				Role:      domain.RoleUser,
				Content:   "Concurrent message",
				Timestamp: time.Now(),
			})
			i++
		}
	})
}

// BenchmarkToolExecutorGet benchmarks tool lookup
func BenchmarkToolExecutorGet(b *testing.B) {
	tool := &staticTool{name: "list_restaurants", result: "- Pizza Palace"}
	executor := &mockToolExecutor{
		tools: map[string]domain.Tool{
			"list_restaurants": tool,
		},
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = executor.Get("list_restaurants")
	}
}

// BenchmarkToolExecute benchmarks tool execution
func BenchmarkToolExecute(b *testing.B) {
	tool := &staticTool{name: "list_dishes", result: "- Cheese Pizza ($8.99)"}
	ctx := context.Background()
	params := json.RawMessage(`{"restaurant_name":"Pizza Palace"}`)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = tool.Execute(ctx, params)
	}
}

// BenchmarkLLMChatMock benchmarks mock LLM chat calls
func BenchmarkLLMChatMock(b *testing.B) {
	llm := &mockLLM{
		responses: []domain.ChatResponse{
			{Message: domain.Message{Role: domain.RoleAssistant, Content: "Response"}},
		},
	}

	ctx := context.Background()
	req := domain.ChatRequest{
		Model: "test",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Hello"},
		},
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = llm.Chat(ctx, req)
		// Reset call index
		if i%10 == 9 {
			llm.callIdx = 0
		}
	}
}

// BenchmarkHandleQuery benchmarks the complete conversation cycle
func BenchmarkHandleQuery(b *testing.B) {
	llm := &mockLLM{
		responses: []domain.ChatResponse{
			{
				Message: domain.Message{
					Role:    domain.RoleAssistant,
					Content: "Hello! What would you like to order today?",
				},
				Usage: domain.Usage{
					PromptTokens:     10,
					CompletionTokens: 8,
					TotalTokens:      18,
				},
			},
		},
	}

	tools := &mockToolExecutor{
		tools:   map[string]domain.Tool{},
		schemas: []domain.ToolSchema{},
	}

	orch := NewOrchestrator(OrchestratorDeps{
		LLM:            llm,
		Tools:          tools,
		ContextBuilder: NewContextBuilder("You are a food ordering assistant.", "test-model", 50, 4096),
		Logger:         newTestLogger(),
		MaxIterations:  10,
	})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		session := NewSession(fmt.Sprintf("bench-session-%d", i))
		_, _ = orch.HandleQuery(context.Background(), session, "Hello")
		// Reset LLM call index
		if i%10 == 9 {
			llm.callIdx = 0
		}
	}
}

// BenchmarkHandleQueryWithToolCall benchmarks the loop with tool execution
func BenchmarkHandleQueryWithToolCall(b *testing.B) {
	llm := &mockLLM{
		responses: []domain.ChatResponse{
			// First response: request tool call
			{
				Message: domain.Message{
					Role: domain.RoleAssistant,
					ToolCalls: []domain.ToolCall{
						{ID: "call_1", Name: "list_restaurants", Arguments: json.RawMessage(`{"username":"jacob"}`)},
					},
				},
			},
			// Second response: final answer
			{
				Message: domain.Message{
					Role:    domain.RoleAssistant,
					Content: "Here are the restaurants you can order from.",
				},
			},
		},
	}

	tools := &mockToolExecutor{
		tools: map[string]domain.Tool{
			"list_restaurants": &staticTool{name: "list_restaurants", result: "- Pizza Palace\n- Burger Bonanza"},
		},
		schemas: []domain.ToolSchema{
			{Name: "list_restaurants", Description: "List available restaurants"},
		},
	}

	orch := NewOrchestrator(OrchestratorDeps{
		LLM:            llm,
		Tools:          tools,
		ContextBuilder: NewContextBuilder("You are a food ordering assistant.", "test-model", 50, 4096),
		Logger:         newTestLogger(),
		MaxIterations:  10,
	})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		session := NewSession(fmt.Sprintf("bench-session-%d", i))
		_, _ = orch.HandleQuery(context.Background(), session, "Show me the restaurants")
		// Reset LLM call index
		if i%2 == 1 {
			llm.callIdx = 0
		}
	}
}

// BenchmarkContextCompression benchmarks context compression performance
func BenchmarkContextCompression(b *testing.B) {
	llm := &mockLLM{
		responses: []domain.ChatResponse{
			{
				Message: domain.Message{
					Role:    domain.RoleAssistant,
					Content: "This is a summary of the previous conversation covering key points and decisions.",
				},
			},
		},
	}

	compressor := NewCompressor(llm, CompressionConfig{
		Threshold:  10,
		KeepRecent: 3,
	}, newTestLogger())

	// Create session with messages exceeding threshold
	session := NewSession("bench-compress")
	for i := 0; i < 15; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		session.AddMessage(domain.Message{
			Role:      role,
			Content:   fmt.Sprintf("Message number %d with some content to compress", i),
			Timestamp: time.Now(),
		})
	}

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// Make a copy to avoid modifying original session
		testSession := NewSession("bench-compress-test")
		for _, msg := range session.Messages() {
			testSession.AddMessage(msg)
		}

		_ = compressor.Compress(ctx, testSession)

		// Reset LLM call index
		if i%10 == 9 {
			llm.callIdx = 0
		}
	}
}
