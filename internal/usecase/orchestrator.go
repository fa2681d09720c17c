package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// OrchestratorDeps holds injected dependencies for the conversation loop.
type OrchestratorDeps struct {
	LLM             domain.LLMProvider
	Tools           domain.ToolExecutor
	ContextBuilder  *ContextBuilder
	Logger          *slog.Logger
	MaxIterations   int
	AuditLogger     domain.AuditLogger // optional, nil = no audit
	Compressor      *Compressor        // optional, nil = no compression
	ErrorClassifier *ErrorClassifier   // optional, nil = no retry on provider errors
	ContextGuard    *ContextGuard      // optional, nil = no context window guard
	Locker          *SessionLocker     // optional, nil = no per-session serialization
}

// Orchestrator drives the query-complete-execute loop: it feeds the session
// history and the tool list to the model, runs each requested tool strictly
// in emission order, and folds text segments and tool trace lines into the
// final answer.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps}
}

// HandleQuery processes a single user query through the conversation loop
// and returns the assembled answer. The session is updated as a side effect:
// the query, every completion, and every tool result become turns.
//
// Tool failures come back as result content and the loop continues; only
// transport failures (provider or tool server unreachable) surface as errors.
// When the iteration cap is hit, the answer assembled so far is returned
// together with ErrMaxIterations.
func (o *Orchestrator) HandleQuery(ctx context.Context, session *Session, query string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.handle_query")
	defer span.End()

	ctx = domain.ContextWithSessionID(ctx, session.ID)

	if o.deps.Locker != nil {
		unlock, err := o.deps.Locker.Lock(ctx, session.ID)
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}
		defer unlock()
	}

	session.AddMessage(domain.Message{
		Role:      domain.RoleUser,
		Content:   query,
		Timestamp: time.Now(),
	})

	if o.deps.ContextGuard != nil {
		if err := o.deps.ContextGuard.Check(ctx, session); err != nil {
			return "", err
		}
	}

	// Answer segments in emission order: completion text, then one trace
	// line per tool call, then the next completion's text, and so on.
	var parts []string

	for i := 0; i < o.deps.MaxIterations; i++ {
		span.AddEvent("orchestrator.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		chatReq := o.deps.ContextBuilder.Build(session.Messages(), o.deps.Tools.Schemas())

		msg, usage, err := o.completeWithRetry(ctx, session, chatReq)
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}

		o.auditLLMCall(ctx, usage)
		session.AddMessage(msg)

		o.deps.Logger.Debug("completion",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		if msg.Content != "" {
			parts = append(parts, msg.Content)
		}

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			if o.deps.Compressor != nil && o.deps.Compressor.ShouldCompress(session) {
				if err := o.deps.Compressor.Compress(ctx, session); err != nil {
					o.deps.Logger.Warn("compression failed", "error", err)
				}
			}
			tracer.SetOK(span)
			return strings.Join(parts, "\n"), nil
		}

		for _, call := range msg.ToolCalls {
			parts = append(parts, traceLine(call))

			toolMsg, err := o.executeTool(ctx, call)
			if err != nil {
				tracer.RecordError(span, err)
				return "", err
			}
			session.AddMessage(toolMsg)
		}

		if o.deps.ContextGuard != nil {
			if err := o.deps.ContextGuard.Check(ctx, session); err != nil {
				return "", err
			}
		}
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	return strings.Join(parts, "\n"), domain.ErrMaxIterations
}

// traceLine renders the user-visible record of a tool invocation.
func traceLine(call domain.ToolCall) string {
	return fmt.Sprintf("[Calling tool %s with args %s]", call.Name, compactArgs(call.Arguments))
}

// compactArgs renders tool arguments as compact JSON. Empty or unparseable
// arguments render as an empty object rather than breaking the trace line.
func compactArgs(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "{}"
	}
	return buf.String()
}

// executeTool runs a single tool call and returns the result as a tool turn.
// Unknown names and tool-level failures become result content so the model
// can react; a non-nil error means the call itself could not complete and
// the turn must abort.
func (o *Orchestrator) executeTool(ctx context.Context, call domain.ToolCall) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	tool, err := o.deps.Tools.Get(call.Name)
	if err != nil {
		// The model asked for a name outside the registry. Feed the
		// dispatch error back as data; the conversation continues.
		tracer.RecordError(span, err)
		o.auditToolExec(ctx, call.Name, false)
		return toolTurn(call, err.Error()), nil
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		o.auditToolExec(ctx, call.Name, false)
		return domain.Message{}, domain.WrapOp("execute "+call.Name, err)
	}

	o.auditToolExec(ctx, call.Name, !result.IsError)
	tracer.SetOK(span)
	return toolTurn(call, result.Content), nil
}

// toolTurn builds the tool-role message echoing the call id so the provider
// can pair the result with its invocation.
func toolTurn(call domain.ToolCall, content string) domain.Message {
	return domain.Message{
		Role:    domain.RoleTool,
		Name:    call.Name,
		Content: content,
		ToolCalls: []domain.ToolCall{{
			ID:   call.ID,
			Name: call.Name,
		}},
		Timestamp: time.Now(),
	}
}

// completeWithRetry performs the LLM call with retry for transient provider
// errors. A context overflow triggers forced compression and a prompt
// rebuild instead of a delay.
func (o *Orchestrator) completeWithRetry(ctx context.Context, session *Session, chatReq domain.ChatRequest) (domain.Message, domain.Usage, error) {
	maxAttempts := 1
	if o.deps.ErrorClassifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "orchestrator.llm_call")
		resp, err := o.deps.LLM.Chat(llmCtx, chatReq)
		llmSpan.End()

		if err == nil {
			return resp.Message, resp.Usage, nil
		}
		lastErr = err

		// No classifier: fail immediately.
		if o.deps.ErrorClassifier == nil {
			return domain.Message{}, domain.Usage{}, lastErr
		}

		classified := o.deps.ErrorClassifier.Classify(err)
		if classified.Category != ErrorCategoryRetryable {
			return domain.Message{}, domain.Usage{}, lastErr
		}

		// Context overflow: force compression, rebuild the prompt.
		if errors.Is(classified.Sentinel, domain.ErrContextOverflow) && o.deps.Compressor != nil {
			if compErr := o.deps.Compressor.ForceCompress(ctx, session); compErr != nil {
				o.deps.Logger.Warn("force compression failed", "error", compErr)
			}
			chatReq = o.deps.ContextBuilder.Build(session.Messages(), o.deps.Tools.Schemas())
			continue
		}

		// Rate limit or server error: exponential backoff with jitter.
		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			o.deps.Logger.Info("retrying completion after error",
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return domain.Message{}, domain.Usage{}, ctx.Err()
			}
		}
	}

	return domain.Message{}, domain.Usage{}, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (o *Orchestrator) auditLLMCall(ctx context.Context, usage domain.Usage) {
	o.audit(ctx, domain.AuditEvent{
		Type: domain.AuditLLMCall,
		Detail: map[string]string{
			"model":             o.deps.LLM.Name(),
			"prompt_tokens":     fmt.Sprintf("%d", usage.PromptTokens),
			"completion_tokens": fmt.Sprintf("%d", usage.CompletionTokens),
			"total_tokens":      fmt.Sprintf("%d", usage.TotalTokens),
		},
	})
}

func (o *Orchestrator) auditToolExec(ctx context.Context, tool string, success bool) {
	o.audit(ctx, domain.AuditEvent{
		Type: domain.AuditToolExec,
		Detail: map[string]string{
			"tool":    tool,
			"success": fmt.Sprintf("%v", success),
		},
	})
}

func (o *Orchestrator) audit(ctx context.Context, event domain.AuditEvent) {
	if o.deps.AuditLogger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := o.deps.AuditLogger.Log(ctx, event); err != nil {
		o.deps.Logger.Warn("audit write failed", "error", err)
	}
}
