package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/tracer"
	"foodcourt/internal/usecase"
)

// OrderDishTool places an order for a dish. A child ordering a dish priced
// strictly above the configured threshold needs a live operate grant; when
// the grant is what let the order through, it is consumed right after.
type OrderDishTool struct {
	catalog   domain.CatalogStore
	approvals *usecase.Approvals
	audit     domain.AuditLogger
	logger    *slog.Logger
}

// NewOrderDishTool creates the order tool. audit may be nil.
func NewOrderDishTool(catalog domain.CatalogStore, approvals *usecase.Approvals, audit domain.AuditLogger, logger *slog.Logger) *OrderDishTool {
	return &OrderDishTool{catalog: catalog, approvals: approvals, audit: audit, logger: logger}
}

func (t *OrderDishTool) Name() string { return "order_dish" }

func (t *OrderDishTool) Description() string {
	return "Process an order for a dish. If the dish is above a specific price, a one-time approval request is required."
}

func (t *OrderDishTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the person ordering"},
				"restaurant_name": {"type": "string", "description": "The name of the restaurant"},
				"dish_name": {"type": "string", "description": "The name of the dish to order"}
			},
			"required": ["username", "restaurant_name", "dish_name"]
		}`),
	}
}

type orderDishParams struct {
	Username       string `json:"username"`
	RestaurantName string `json:"restaurant_name"`
	DishName       string `json:"dish_name"`
}

func (t *OrderDishTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.order_dish", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderDishParams) (any, error) {
			if err := RequireFields(
				"username", p.Username,
				"restaurant_name", p.RestaurantName,
				"dish_name", p.DishName,
			); err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.StringAttr("user.name", p.Username),
				tracer.StringAttr("restaurant.name", p.RestaurantName),
				tracer.StringAttr("dish.name", p.DishName),
			)

			restaurant, err := t.catalog.RestaurantByName(ctx, p.RestaurantName)
			if errors.Is(err, domain.ErrRestaurantNotFound) {
				return ErrResult("Restaurant not found.")
			}
			if err != nil {
				return nil, err
			}

			dish, err := t.catalog.DishByName(ctx, restaurant.ID, p.DishName)
			if errors.Is(err, domain.ErrDishNotFound) {
				return ErrResult("Dish not found.")
			}
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.Float64Attr("dish.price", dish.Price))

			user, err := t.catalog.UserByUsername(ctx, p.Username)
			if errors.Is(err, domain.ErrUserNotFound) {
				return ErrResult("User not found.")
			}
			if err != nil {
				return nil, err
			}

			decision, err := t.approvals.AuthorizeOrder(ctx, user, restaurant, dish)
			if err != nil {
				return upstreamResult(err)
			}
			if !decision.Allowed {
				return TextResult(fmt.Sprintf(
					"This dish costs $%.2f, and you can only order dishes less than $%.2f. To order this dish, you need to request approval.",
					dish.Price, t.approvals.MaxDishPrice(),
				)), nil
			}

			t.logger.Info("order placed",
				"user", user.Username,
				"restaurant", restaurant.Name,
				"dish", dish.Name,
				"used_grant", decision.UsedGrant,
			)
			t.auditOrder(ctx, user.Username, restaurant, dish, decision.UsedGrant)

			if decision.UsedGrant {
				if err := t.approvals.ConsumeOperateGrant(ctx, user.Username, restaurant.ID); err != nil {
					// The order already went through; the stale grant is a
					// revocation bug, not an order failure.
					t.logger.Warn("operate grant revocation failed", "user", user.Username, "error", err)
				}
			}

			return TextResult(fmt.Sprintf(
				"Order successfully placed for %s from %s!", dish.Name, restaurant.Name,
			)), nil
		},
	)
}

func (t *OrderDishTool) auditOrder(ctx context.Context, username string, restaurant *domain.Restaurant, dish *domain.Dish, usedGrant bool) {
	if t.audit == nil {
		return
	}
	err := t.audit.Log(ctx, domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      domain.AuditOrderPlaced,
		Actor:     username,
		Resource:  domain.InstanceKey(domain.ResourceRestaurants, restaurant.ID),
		Action:    domain.ActionOperate,
		Outcome:   "placed",
		Detail: map[string]string{
			"dish":       dish.Name,
			"price":      fmt.Sprintf("%.2f", dish.Price),
			"used_grant": fmt.Sprintf("%t", usedGrant),
		},
	})
	if err != nil {
		t.logger.Warn("audit write failed", "error", err)
	}
}
