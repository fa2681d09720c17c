package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/tracer"
)

// VerifyAccessTool checks whether a username is known to the household
// catalog. It returns the user's role as plain text, or an empty result
// for unknown users. It never returns an error result: the front-end
// decides what an empty role means.
type VerifyAccessTool struct {
	catalog domain.CatalogStore
	logger  *slog.Logger
}

// NewVerifyAccessTool creates the access verification tool.
func NewVerifyAccessTool(catalog domain.CatalogStore, logger *slog.Logger) *VerifyAccessTool {
	return &VerifyAccessTool{catalog: catalog, logger: logger}
}

func (t *VerifyAccessTool) Name() string { return "verify_access" }

func (t *VerifyAccessTool) Description() string {
	return "Check if a user has access to the system after they provide their username. Returns the user's role, or an empty result for an unknown user."
}

func (t *VerifyAccessTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username to check"}
			},
			"required": ["username"]
		}`),
	}
}

type verifyAccessParams struct {
	Username string `json:"username"`
}

func (t *VerifyAccessTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.verify_access", t.logger, params,
		func(ctx context.Context, span trace.Span, p verifyAccessParams) (any, error) {
			if err := RequireField("username", p.Username); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("user.name", p.Username))

			user, err := t.catalog.UserByUsername(ctx, p.Username)
			if errors.Is(err, domain.ErrUserNotFound) {
				t.logger.Info("access check for unknown user", "user", p.Username)
				return TextResult(""), nil
			}
			if err != nil {
				return nil, err
			}

			t.logger.Info("access verified", "user", user.Username, "role", user.Role)
			return TextResult(user.Role), nil
		},
	)
}
