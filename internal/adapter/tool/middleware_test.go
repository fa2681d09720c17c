package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
)

// nopLogger returns a logger that discards output.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Execute tests ---

func TestExecute_Success_JSON(t *testing.T) {
	type params struct {
		Name string `json:"name"`
	}
	raw := json.RawMessage(`{"name":"henry"}`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, p params) (any, error) {
			return map[string]string{"greeting": "hello " + p.Name}, nil
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, `"greeting"`) {
		t.Errorf("expected JSON with greeting, got: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello henry") {
		t.Errorf("expected 'hello henry', got: %s", result.Content)
	}
}

func TestExecute_Success_String(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return "plain text response", nil
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("unexpected error result")
	}
	if result.Content != "plain text response" {
		t.Errorf("expected plain text, got: %s", result.Content)
	}
}

func TestExecute_Success_CustomToolResult(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	custom := &domain.ToolResult{Content: "custom formatted"}
	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return custom, nil
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != custom {
		t.Error("expected exact custom ToolResult to be returned")
	}
}

func TestExecute_Success_CustomErrorToolResult(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	custom := &domain.ToolResult{IsError: true, Content: "Dish not found."}
	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return custom, nil
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Content != "Dish not found." {
		t.Errorf("expected exact message, got: %s", result.Content)
	}
	if result.IsRetryable {
		t.Error("domain failures must not be marked retryable")
	}
}

func TestExecute_InvalidJSON(t *testing.T) {
	type params struct {
		Name string `json:"name"`
	}
	raw := json.RawMessage(`{invalid`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for invalid JSON")
	}
	if !strings.Contains(result.Content, "invalid params") {
		t.Errorf("expected 'invalid params' in content, got: %s", result.Content)
	}
}

func TestExecute_HandlerError_Permanent(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return nil, errors.New("malformed dish record")
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Content != "malformed dish record" {
		t.Errorf("expected exact error message, got: %s", result.Content)
	}
	if result.IsRetryable {
		t.Error("expected permanent error to have IsRetryable=false")
	}
}

func TestExecute_HandlerError_Retryable(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return nil, errors.New("dial tcp 10.0.0.1:7766: connection refused")
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !result.IsRetryable {
		t.Error("expected transient error to have IsRetryable=true")
	}
	if !strings.Contains(result.Content, "connection refused") {
		t.Errorf("expected error message in content, got: %s", result.Content)
	}
	if !strings.Contains(result.Content, "transient error") {
		t.Errorf("expected retry hint in content, got: %s", result.Content)
	}
}

func TestExecute_HandlerError_RetryableSentinel(t *testing.T) {
	type params struct{}
	raw := json.RawMessage(`{}`)

	result, err := Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			return nil, fmt.Errorf("policy check: %w", domain.ErrRateLimit)
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !result.IsRetryable {
		t.Error("expected ErrRateLimit to produce IsRetryable=true")
	}
	if !strings.Contains(result.Content, "transient error") {
		t.Errorf("expected retry hint in content, got: %s", result.Content)
	}
}

func TestExecute_SpanAttributesAccessible(t *testing.T) {
	type params struct {
		Username string `json:"username"`
	}
	raw := json.RawMessage(`{"username":"henry"}`)

	var spanCaptured trace.Span
	_, _ = Execute(context.Background(), "test.tool", nopLogger(), raw,
		func(_ context.Context, span trace.Span, p params) (any, error) {
			spanCaptured = span
			return "ok", nil
		},
	)

	if spanCaptured == nil {
		t.Fatal("expected span to be passed to handler")
	}
}

// --- ErrResult tests ---

func TestErrResult(t *testing.T) {
	result, err := ErrResult("Request failed with status %d: %s", 403, "forbidden")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Content != "Request failed with status 403: forbidden" {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

// --- TextResult tests ---

func TestTextResult(t *testing.T) {
	result := TextResult("No pending requests found.")
	if result.IsError {
		t.Fatal("unexpected error result")
	}
	if result.Content != "No pending requests found." {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

// --- upstreamResult tests ---

func TestUpstreamResult_UpstreamError(t *testing.T) {
	ue := &domain.UpstreamError{Op: "Check", Status: 429, Body: `{"detail":"rate limited"}`}

	res, err := upstreamResult(fmt.Errorf("wrapped: %w", ue))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := res.(*domain.ToolResult)
	if !ok {
		t.Fatalf("expected *domain.ToolResult, got %T", res)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Content != `Request failed with status 429: {"detail":"rate limited"}` {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestUpstreamResult_TransportError(t *testing.T) {
	cause := errors.New("dial tcp: no such host")

	res, err := upstreamResult(cause)
	if res != nil {
		t.Fatalf("expected nil result, got %v", res)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the original error back, got: %v", err)
	}
}
