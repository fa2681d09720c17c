package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"foodcourt/internal/adapter/authz"
	"foodcourt/internal/adapter/catalog"
	"foodcourt/internal/adapter/mcpserver"
	"foodcourt/internal/adapter/notify"
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

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`toolserver - Food ordering tool server (MCP over stdio)

USAGE:
    toolserver [FLAGS]

The server speaks the Model Context Protocol on stdin/stdout. It is normally
spawned by the agent binary rather than started by hand. All logging goes to
stderr so the protocol stream stays clean.

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: FOODCOURT_* variables override config`)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer. Stdout carries the MCP protocol stream, so any
	// logging aimed at stdout is rerouted to stderr.
	log, logCloser, err := logger.NewStdioSafe(cfg.Logger)
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

	// 4. Catalog store
	store, err := catalog.NewSQLiteStore(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer store.Close()

	if err := store.Seed(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	// 5. Audit trail
	var audit domain.AuditLogger
	var fileAudit *security.FileAuditLogger
	if cfg.Audit.Enabled {
		fileAudit, err = security.NewFileAuditLogger(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer fileAudit.Close()

		policy, err := parseRetention(cfg.Audit.Retention)
		if err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
		fileAudit.SetRetention(policy)
		audit = fileAudit
	}

	// 6. Authorization gateway. Bootstrap pushes the catalog into the PDP
	// so checks and approvals see the same world the tools do.
	gateway := authz.NewPermitGateway(cfg.Authz, log)
	if err := authz.Bootstrap(ctx, gateway, store, audit, log); err != nil {
		return fmt.Errorf("authz bootstrap: %w", err)
	}

	// 7. Notifier
	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	// 8. Approval workflow
	approvals := usecase.NewApprovals(usecase.ApprovalsDeps{
		Authz:            gateway,
		Notifier:         notifier,
		Audit:            audit,
		Logger:           log,
		Tenant:           cfg.Authz.Tenant,
		OperateRole:      cfg.Authz.OperateRole,
		MaxDishPrice:     cfg.Approval.MaxAllowedDishPrice,
		RevokeAfterOrder: cfg.Approval.RevokeAfterOrder,
	})

	// 9. Tools
	limiter := tool.NewPerUserLimiter(cfg.Approval.RequestLimit, cfg.Approval.RequestWindow)
	registry := tool.NewRegistry(log)
	for _, t := range []domain.Tool{
		tool.NewVerifyAccessTool(store, log),
		tool.NewListRestaurantsTool(store, log),
		tool.NewListDishesTool(store, gateway, audit, log),
		tool.NewOrderDishTool(store, approvals, audit, log),
		tool.NewRequestRestaurantAccessTool(store, approvals, limiter, log),
		tool.NewRequestDishApprovalTool(store, approvals, limiter, log),
		tool.NewListPendingRestaurantRequestTool(store, approvals, log),
		tool.NewListPendingDishRequestTool(store, approvals, log),
		tool.NewApproveRestaurantAccessTool(approvals, log),
		tool.NewApproveOperationRequestTool(approvals, log),
	} {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	// 10. Maintenance scheduler
	if fileAudit != nil && cfg.Audit.Retention.Schedule != "" {
		sched := scheduling.NewScheduler(log)
		sched.RegisterAction(scheduling.ActionAuditRetention, func(ctx context.Context) error {
			removed, err := fileAudit.EnforceRetention(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				log.Info("audit retention enforced", "removed", removed)
			}
			return nil
		})
		if err := sched.AddTask(scheduling.ScheduledTask{
			Name:     "audit-retention",
			Schedule: cfg.Audit.Retention.Schedule,
			Action:   scheduling.ActionAuditRetention,
		}); err != nil {
			return fmt.Errorf("schedule audit retention: %w", err)
		}
		go sched.Start(ctx)
		defer sched.Stop()
	}

	// 11. Serve MCP over stdio
	srv := mcpserver.New(registry, log)
	log.Info("food ordering tool server starting",
		"tools", len(srv.ToolNames()),
		"catalog", cfg.Catalog.Path,
		"audit", audit != nil,
	)
	return srv.ServeStdio(ctx)
}

// parseRetention converts the config retention strings into a policy.
// Empty strings mean no limit on that axis.
func parseRetention(cfg config.RetentionConfig) (security.RetentionPolicy, error) {
	var policy security.RetentionPolicy

	if cfg.MaxAge != "" {
		maxAge, err := time.ParseDuration(cfg.MaxAge)
		if err != nil {
			return policy, fmt.Errorf("invalid max_age %q: %w", cfg.MaxAge, err)
		}
		policy.MaxAge = maxAge
	}

	if cfg.MaxSize != "" {
		maxSize, err := security.ParseRetentionMaxSize(cfg.MaxSize)
		if err != nil {
			return policy, fmt.Errorf("invalid max_size %q: %w", cfg.MaxSize, err)
		}
		policy.MaxSize = maxSize
	}

	return policy, nil
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
