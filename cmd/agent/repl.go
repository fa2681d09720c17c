package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
	"foodcourt/internal/usecase"
)

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"})

// replDeps carries everything the console loop needs.
type replDeps struct {
	Config    *config.Config
	LLM       domain.LLMProvider
	Tools     domain.ToolExecutor
	ToolNames []string
	Sessions  *usecase.SessionManager
	Audit     domain.AuditLogger
	Logger    *slog.Logger
}

// chatLoop drives the interactive console session: name prompt, access
// check, then queries until 'quit' or EOF.
func chatLoop(ctx context.Context, deps replDeps) error {
	fmt.Printf("\nConnected to server with tools: %s\n\n", strings.Join(deps.ToolNames, ", "))
	fmt.Println(bannerStyle.Render("Welcome to the Family Food Ordering System"))
	fmt.Println("Type your queries or 'quit' to exit.")

	in := bufio.NewScanner(os.Stdin)

	username, role, ok := login(ctx, in, deps)
	if !ok {
		return in.Err()
	}

	sessionKey := "console:" + username
	session := deps.Sessions.GetOrCreate(sessionKey)
	auditEvent(ctx, deps.Audit, deps.Logger, domain.AuditEvent{
		Type:     domain.AuditSessionCreate,
		Actor:    username,
		Resource: session.ID,
		Action:   "create",
		Outcome:  "ok",
		Detail:   map[string]string{"resumed": strconv.FormatBool(session.MessageCount() > 0)},
	})
	defer func() {
		if err := deps.Sessions.Save(sessionKey); err != nil {
			deps.Logger.Warn("session save failed", "session", session.ID, "error", err)
		}
	}()

	orch := buildOrchestrator(deps, username, role)
	render := newRenderer(deps.Config.Agent.RenderMarkdown)

	for {
		fmt.Print("\nQuery: ")
		if !in.Scan() {
			return in.Err()
		}
		query := strings.TrimSpace(in.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "quit" {
			return nil
		}

		answer, err := orch.HandleQuery(ctx, session, query)
		if answer != "" {
			fmt.Println("\n" + render(answer))
		}
		if err != nil {
			fmt.Printf("\nError: %s\n", err)
		}
	}
}

// login prompts for a name and verifies it against the household catalog.
// It returns ok=false when the user quits, input ends, or access is denied.
func login(ctx context.Context, in *bufio.Scanner, deps replDeps) (username, role string, ok bool) {
	for {
		fmt.Print("First, what is your name? ")
		if !in.Scan() {
			return "", "", false
		}
		name := strings.ToLower(strings.TrimSpace(in.Text()))
		if name == "quit" {
			return "", "", false
		}
		if name == "" {
			continue
		}

		userRole, err := verifyAccess(ctx, deps.Tools, name)
		if err != nil {
			fmt.Printf("\nError: %s\n", err)
			continue
		}
		if userRole == "" {
			fmt.Println("Access denied")
			return "", "", false
		}

		fmt.Printf("Welcome %s! You are logged in as a %s.\n", name, userRole)
		return name, userRole, true
	}
}

// verifyAccess calls the verify_access tool through the bridge. An empty
// role means the user is unknown to the household.
func verifyAccess(ctx context.Context, tools domain.ToolExecutor, username string) (string, error) {
	t, err := tools.Get("verify_access")
	if err != nil {
		return "", err
	}
	params, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		return "", err
	}
	result, err := t.Execute(ctx, params)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", nil
	}
	return strings.TrimSpace(result.Content), nil
}

// buildOrchestrator wires the query loop for one signed-in user. The system
// prompt carries the user's identity so the model knows who is talking.
func buildOrchestrator(deps replDeps, username, role string) *usecase.Orchestrator {
	cfg := deps.Config

	systemPrompt := fmt.Sprintf("%s\n\nThe current user is %s. Their role is %s.",
		cfg.Agent.SystemPrompt, username, role)

	builder := usecase.NewContextBuilder(systemPrompt, cfg.LLM.Model, 0, cfg.LLM.MaxTokens)

	var compressor *usecase.Compressor
	if cfg.Agent.Compression.Enabled {
		compressor = usecase.NewCompressor(deps.LLM, usecase.CompressionConfig{
			Enabled:    true,
			Threshold:  cfg.Agent.Compression.Threshold,
			KeepRecent: cfg.Agent.Compression.KeepRecent,
		}, deps.Logger)
	}

	var guard *usecase.ContextGuard
	if cfg.Agent.ContextGuard.Enabled {
		counter := usecase.NewTokenCounter(cfg.LLM.Model)
		guard = usecase.NewContextGuard(usecase.ContextGuardConfig{
			MaxTokens:     cfg.Agent.ContextGuard.MaxTokens,
			ReserveTokens: cfg.Agent.ContextGuard.ReserveTokens,
			SafetyMargin:  cfg.Agent.ContextGuard.SafetyMargin,
		}, counter, compressor, deps.Logger)
	}

	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:             deps.LLM,
		Tools:           deps.Tools,
		ContextBuilder:  builder,
		Logger:          deps.Logger,
		MaxIterations:   cfg.Agent.MaxIterations,
		AuditLogger:     deps.Audit,
		Compressor:      compressor,
		ErrorClassifier: usecase.NewErrorClassifier(),
		ContextGuard:    guard,
		Locker:          usecase.NewSessionLocker(),
	})
}

// newRenderer returns the answer formatter for the terminal. Markdown
// rendering degrades to plain text when the renderer cannot be built or a
// render fails.
func newRenderer(markdown bool) func(string) string {
	plain := func(s string) string { return s }
	if !markdown {
		return plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return plain
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.TrimRight(out, "\n")
	}
}
