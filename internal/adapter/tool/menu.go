package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/tracer"
)

// ListRestaurantsTool lists every restaurant in the catalog. Restaurants
// not allowed for children carry a "not for kids" marker so the model can
// warn before a child even asks for the menu.
type ListRestaurantsTool struct {
	catalog domain.CatalogStore
	logger  *slog.Logger
}

// NewListRestaurantsTool creates the restaurant listing tool.
func NewListRestaurantsTool(catalog domain.CatalogStore, logger *slog.Logger) *ListRestaurantsTool {
	return &ListRestaurantsTool{catalog: catalog, logger: logger}
}

func (t *ListRestaurantsTool) Name() string { return "list_restaurants" }

func (t *ListRestaurantsTool) Description() string {
	return "List available restaurants. Restaurants that are not for kids are marked as such."
}

func (t *ListRestaurantsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

type listRestaurantsParams struct{}

func (t *ListRestaurantsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_restaurants", t.logger, params,
		func(ctx context.Context, span trace.Span, p listRestaurantsParams) (any, error) {
			restaurants, err := t.catalog.Restaurants(ctx)
			if err != nil {
				return nil, err
			}
			if len(restaurants) == 0 {
				return TextResult("No restaurants available."), nil
			}

			span.SetAttributes(tracer.IntAttr("restaurant.count", len(restaurants)))

			lines := make([]string, 0, len(restaurants))
			for _, r := range restaurants {
				if r.AllowedForChildren {
					lines = append(lines, "- "+r.Name)
				} else {
					lines = append(lines, "- "+r.Name+" (not for kids)")
				}
			}
			return TextResult(strings.Join(lines, "\n")), nil
		},
	)
}

// ListDishesTool lists the dishes of one restaurant with prices. Before
// touching the menu it asks the policy service whether the user may read
// that restaurant instance; a denial comes back as data, not an error.
type ListDishesTool struct {
	catalog domain.CatalogStore
	authz   domain.AuthzGateway
	audit   domain.AuditLogger
	logger  *slog.Logger
}

// NewListDishesTool creates the dish listing tool. audit may be nil.
func NewListDishesTool(catalog domain.CatalogStore, authz domain.AuthzGateway, audit domain.AuditLogger, logger *slog.Logger) *ListDishesTool {
	return &ListDishesTool{catalog: catalog, authz: authz, audit: audit, logger: logger}
}

func (t *ListDishesTool) Name() string { return "list_dishes" }

func (t *ListDishesTool) Description() string {
	return "List dishes for a given restaurant along with their prices. Checks that the user is permitted to view the restaurant."
}

func (t *ListDishesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the user requesting dishes"},
				"restaurant_name": {"type": "string", "description": "The name of the restaurant"}
			},
			"required": ["username", "restaurant_name"]
		}`),
	}
}

type listDishesParams struct {
	Username       string `json:"username"`
	RestaurantName string `json:"restaurant_name"`
}

func (t *ListDishesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_dishes", t.logger, params,
		func(ctx context.Context, span trace.Span, p listDishesParams) (any, error) {
			if err := RequireFields("username", p.Username, "restaurant_name", p.RestaurantName); err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.StringAttr("user.name", p.Username),
				tracer.StringAttr("restaurant.name", p.RestaurantName),
			)

			restaurant, err := t.catalog.RestaurantByName(ctx, p.RestaurantName)
			if errors.Is(err, domain.ErrRestaurantNotFound) {
				return ErrResult("Restaurant not found")
			}
			if err != nil {
				return nil, err
			}

			instance := domain.InstanceKey(domain.ResourceRestaurants, restaurant.ID)
			allowed, err := t.authz.Check(ctx, p.Username, domain.ActionRead, instance)
			if err != nil {
				return upstreamResult(err)
			}
			if !allowed {
				t.logger.Info("menu read denied", "user", p.Username, "restaurant", restaurant.Name)
				t.auditDenied(ctx, p.Username, instance)
				return ErrResult("Access denied. You are not permitted to view dishes from this restaurant.")
			}

			dishes, err := t.catalog.Dishes(ctx, restaurant.ID)
			if err != nil {
				return nil, err
			}
			if len(dishes) == 0 {
				return TextResult("No dishes available for this restaurant."), nil
			}

			lines := make([]string, 0, len(dishes))
			for _, d := range dishes {
				lines = append(lines, fmt.Sprintf("- %s ($%.2f)", d.Name, d.Price))
			}
			return TextResult(strings.Join(lines, "\n")), nil
		},
	)
}

func (t *ListDishesTool) auditDenied(ctx context.Context, username, instance string) {
	if t.audit == nil {
		return
	}
	err := t.audit.Log(ctx, domain.AuditEvent{
		Type:     domain.AuditAccessDenied,
		Actor:    username,
		Resource: instance,
		Action:   domain.ActionRead,
		Outcome:  "denied",
	})
	if err != nil {
		t.logger.Warn("audit write failed", "error", err)
	}
}
