package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"foodcourt/internal/adapter/tool"
	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
	"foodcourt/internal/infra/logger"
	"foodcourt/internal/infra/tracer"
	"foodcourt/internal/security"
	"foodcourt/internal/usecase"
	"foodcourt/internal/usecase/scheduling"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	serverPath := serverPathArg()
	if serverPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: agent <path_to_toolserver>")
		os.Exit(1)
	}

	if err := run(serverPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agent - Family food ordering assistant

USAGE:
    agent <path_to_toolserver> [FLAGS]

The agent spawns the tool server binary, connects to it over stdio, and runs
an interactive console session against the configured LLM provider.

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: FOODCOURT_* variables override config
    ANTHROPIC_API_KEY is honored when llm.api_key is unset`)
}

// serverPathArg returns the first non-flag argument: the tool server binary.
func serverPathArg() string {
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		if arg == "--config" {
			skipNext = true
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}

func run(serverPath string) error {
	// 1. Config
	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Audit trail. The tool server appends to the same file; both sides
	// write whole lines through O_APPEND so the streams interleave cleanly.
	var audit domain.AuditLogger
	if cfg.Audit.Enabled {
		fileAudit, err := security.NewFileAuditLogger(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer fileAudit.Close()
		audit = fileAudit
	}

	// 5. Tool server bridge. The subprocess reads the same config file the
	// agent resolved, wherever the agent found it.
	bridge, err := tool.NewBridge(ctx, serverPath, nil,
		map[string]string{"FOODCOURT_CONFIG": cfgPath}, log)
	if err != nil {
		return fmt.Errorf("tool server: %w", err)
	}
	defer bridge.Close()

	registry := tool.NewRegistry(log)
	toolNames := make([]string, 0, len(bridge.Tools()))
	for _, t := range bridge.Tools() {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
		toolNames = append(toolNames, t.Name())
	}

	// 6. LLM provider
	provider, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 7. Sessions
	if err := os.MkdirAll(cfg.Agent.DataDir, 0700); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	sessions := usecase.NewSessionManager(cfg.Agent.DataDir)

	// 8. Session reaper
	if cfg.Agent.SessionReap.Enabled {
		maxAge, err := time.ParseDuration(cfg.Agent.SessionReap.MaxAge)
		if err != nil {
			return fmt.Errorf("session reap max_age %q: %w", cfg.Agent.SessionReap.MaxAge, err)
		}
		sched := scheduling.NewScheduler(log)
		sched.RegisterAction(scheduling.ActionSessionReap, func(ctx context.Context) error {
			reaped := sessions.ReapStaleSessions(maxAge)
			if reaped > 0 {
				log.Info("stale sessions reaped", "count", reaped)
				auditEvent(ctx, audit, log, domain.AuditEvent{
					Type:    domain.AuditSessionDelete,
					Actor:   "scheduler",
					Action:  "reap",
					Outcome: "ok",
					Detail:  map[string]string{"count": strconv.Itoa(reaped)},
				})
			}
			return nil
		})
		if err := sched.AddTask(scheduling.ScheduledTask{
			Name:     "session-reap",
			Schedule: cfg.Agent.SessionReap.Schedule,
			Action:   scheduling.ActionSessionReap,
		}); err != nil {
			return fmt.Errorf("schedule session reap: %w", err)
		}
		go sched.Start(ctx)
		defer sched.Stop()
	}

	// 9. Console session
	log.Info("agent starting",
		"provider", provider.Name(),
		"model", cfg.LLM.Model,
		"tools", len(toolNames),
		"audit", audit != nil,
	)

	return chatLoop(ctx, replDeps{
		Config:    cfg,
		LLM:       provider,
		Tools:     registry,
		ToolNames: toolNames,
		Sessions:  sessions,
		Audit:     audit,
		Logger:    log,
	})
}

// auditEvent writes an audit event, filling the timestamp. Audit failures
// are logged and swallowed so they never break the interactive flow.
func auditEvent(ctx context.Context, audit domain.AuditLogger, log *slog.Logger, event domain.AuditEvent) {
	if audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := audit.Log(ctx, event); err != nil {
		log.Warn("audit write failed", "type", string(event.Type), "error", err)
	}
}

func configPath() string {
	// Check --config flag in os.Args.
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("FOODCOURT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
