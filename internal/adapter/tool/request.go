package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/tracer"
	"foodcourt/internal/usecase"
)

// RequestRestaurantAccessTool files a standing access request for a
// restaurant the user cannot currently read. The shared per-user limiter
// keeps one user from flooding reviewers with requests.
type RequestRestaurantAccessTool struct {
	catalog   domain.CatalogStore
	approvals *usecase.Approvals
	limiter   *PerUserLimiter
	logger    *slog.Logger
}

// NewRequestRestaurantAccessTool creates the access request tool.
func NewRequestRestaurantAccessTool(catalog domain.CatalogStore, approvals *usecase.Approvals, limiter *PerUserLimiter, logger *slog.Logger) *RequestRestaurantAccessTool {
	return &RequestRestaurantAccessTool{catalog: catalog, approvals: approvals, limiter: limiter, logger: logger}
}

func (t *RequestRestaurantAccessTool) Name() string { return "request_restaurant_access" }

func (t *RequestRestaurantAccessTool) Description() string {
	return "Request permanent access to a restaurant."
}

func (t *RequestRestaurantAccessTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the person requesting access"},
				"restaurant_name": {"type": "string", "description": "The name of the restaurant to request access for"}
			},
			"required": ["username", "restaurant_name"]
		}`),
	}
}

type requestRestaurantAccessParams struct {
	Username       string `json:"username"`
	RestaurantName string `json:"restaurant_name"`
}

func (t *RequestRestaurantAccessTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.request_restaurant_access", t.logger, params,
		func(ctx context.Context, span trace.Span, p requestRestaurantAccessParams) (any, error) {
			if err := RequireFields("username", p.Username, "restaurant_name", p.RestaurantName); err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.StringAttr("user.name", p.Username),
				tracer.StringAttr("restaurant.name", p.RestaurantName),
			)

			if !t.limiter.Allow(p.Username) {
				t.logger.Warn("request rate limit hit", "user", p.Username)
				return ErrResult("Too many requests. Please wait before submitting another request.")
			}

			restaurant, err := t.catalog.RestaurantByName(ctx, p.RestaurantName)
			if errors.Is(err, domain.ErrRestaurantNotFound) {
				return ErrResult("Restaurant not found.")
			}
			if err != nil {
				return nil, err
			}

			if err := t.approvals.RequestRestaurantAccess(ctx, p.Username, restaurant); err != nil {
				return upstreamResult(err)
			}

			return TextResult("Your request has been sent. Please check back later."), nil
		},
	)
}

// RequestDishApprovalTool files a one-time operation approval request for
// a dish priced above the child threshold.
type RequestDishApprovalTool struct {
	catalog   domain.CatalogStore
	approvals *usecase.Approvals
	limiter   *PerUserLimiter
	logger    *slog.Logger
}

// NewRequestDishApprovalTool creates the dish approval request tool.
func NewRequestDishApprovalTool(catalog domain.CatalogStore, approvals *usecase.Approvals, limiter *PerUserLimiter, logger *slog.Logger) *RequestDishApprovalTool {
	return &RequestDishApprovalTool{catalog: catalog, approvals: approvals, limiter: limiter, logger: logger}
}

func (t *RequestDishApprovalTool) Name() string { return "request_dish_approval" }

func (t *RequestDishApprovalTool) Description() string {
	return "Request a one-time approval to order a dish."
}

func (t *RequestDishApprovalTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the person requesting approval"},
				"dish_name": {"type": "string", "description": "The name of the dish to request approval for"}
			},
			"required": ["username", "dish_name"]
		}`),
	}
}

type requestDishApprovalParams struct {
	Username string `json:"username"`
	DishName string `json:"dish_name"`
}

func (t *RequestDishApprovalTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.request_dish_approval", t.logger, params,
		func(ctx context.Context, span trace.Span, p requestDishApprovalParams) (any, error) {
			if err := RequireFields("username", p.Username, "dish_name", p.DishName); err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.StringAttr("user.name", p.Username),
				tracer.StringAttr("dish.name", p.DishName),
			)

			if !t.limiter.Allow(p.Username) {
				t.logger.Warn("request rate limit hit", "user", p.Username)
				return ErrResult("Too many requests. Please wait before submitting another request.")
			}

			restaurant, err := t.catalog.RestaurantByDishName(ctx, p.DishName)
			if errors.Is(err, domain.ErrDishNotFound) {
				return ErrResult("Dish not found.")
			}
			if err != nil {
				return nil, err
			}

			if err := t.approvals.RequestDishApproval(ctx, p.Username, restaurant, p.DishName); err != nil {
				return upstreamResult(err)
			}

			return TextResult("Your request has been successfully sent. Please check back later."), nil
		},
	)
}
