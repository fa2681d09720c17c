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
	"foodcourt/internal/usecase"
)

// ListPendingRestaurantRequestTool lists pending access requests for one
// restaurant so a parent can review them.
type ListPendingRestaurantRequestTool struct {
	catalog   domain.CatalogStore
	approvals *usecase.Approvals
	logger    *slog.Logger
}

// NewListPendingRestaurantRequestTool creates the pending access request listing tool.
func NewListPendingRestaurantRequestTool(catalog domain.CatalogStore, approvals *usecase.Approvals, logger *slog.Logger) *ListPendingRestaurantRequestTool {
	return &ListPendingRestaurantRequestTool{catalog: catalog, approvals: approvals, logger: logger}
}

func (t *ListPendingRestaurantRequestTool) Name() string { return "list_pending_restaurant_request" }

func (t *ListPendingRestaurantRequestTool) Description() string {
	return "List pending restaurant access requests for a restaurant, for review by a parent."
}

func (t *ListPendingRestaurantRequestTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the reviewer"},
				"restaurant_name": {"type": "string", "description": "The name of the restaurant to list requests for"}
			},
			"required": ["username", "restaurant_name"]
		}`),
	}
}

type listPendingParams struct {
	Username       string `json:"username"`
	RestaurantName string `json:"restaurant_name"`
}

func (t *ListPendingRestaurantRequestTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_pending_restaurant_request", t.logger, params,
		func(ctx context.Context, span trace.Span, p listPendingParams) (any, error) {
			if err := RequireFields("username", p.Username, "restaurant_name", p.RestaurantName); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("restaurant.name", p.RestaurantName))

			restaurant, err := t.catalog.RestaurantByName(ctx, p.RestaurantName)
			if errors.Is(err, domain.ErrRestaurantNotFound) {
				return ErrResult("Restaurant not found.")
			}
			if err != nil {
				return nil, err
			}

			pending, err := t.approvals.ListPendingAccessRequests(ctx, restaurant)
			if err != nil {
				return upstreamResult(err)
			}
			return formatPending(pending), nil
		},
	)
}

// ListPendingDishRequestTool lists pending one-time dish approval requests
// for one restaurant.
type ListPendingDishRequestTool struct {
	catalog   domain.CatalogStore
	approvals *usecase.Approvals
	logger    *slog.Logger
}

// NewListPendingDishRequestTool creates the pending operation approval listing tool.
func NewListPendingDishRequestTool(catalog domain.CatalogStore, approvals *usecase.Approvals, logger *slog.Logger) *ListPendingDishRequestTool {
	return &ListPendingDishRequestTool{catalog: catalog, approvals: approvals, logger: logger}
}

func (t *ListPendingDishRequestTool) Name() string { return "list_pending_dish_request" }

func (t *ListPendingDishRequestTool) Description() string {
	return "List pending dish order approval requests for a restaurant, for review by a parent."
}

func (t *ListPendingDishRequestTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the reviewer"},
				"restaurant_name": {"type": "string", "description": "The name of the restaurant to list requests for"}
			},
			"required": ["username", "restaurant_name"]
		}`),
	}
}

func (t *ListPendingDishRequestTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_pending_dish_request", t.logger, params,
		func(ctx context.Context, span trace.Span, p listPendingParams) (any, error) {
			if err := RequireFields("username", p.Username, "restaurant_name", p.RestaurantName); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("restaurant.name", p.RestaurantName))

			restaurant, err := t.catalog.RestaurantByName(ctx, p.RestaurantName)
			if errors.Is(err, domain.ErrRestaurantNotFound) {
				return ErrResult("Restaurant not found.")
			}
			if err != nil {
				return nil, err
			}

			pending, err := t.approvals.ListPendingOperationApprovals(ctx, restaurant)
			if err != nil {
				return upstreamResult(err)
			}
			return formatPending(pending), nil
		},
	)
}

// ApproveRestaurantAccessTool approves a pending access request, granting
// the requester standing access to the restaurant.
type ApproveRestaurantAccessTool struct {
	approvals *usecase.Approvals
	logger    *slog.Logger
}

// NewApproveRestaurantAccessTool creates the access approval tool.
func NewApproveRestaurantAccessTool(approvals *usecase.Approvals, logger *slog.Logger) *ApproveRestaurantAccessTool {
	return &ApproveRestaurantAccessTool{approvals: approvals, logger: logger}
}

func (t *ApproveRestaurantAccessTool) Name() string { return "approve_restaurant_access" }

func (t *ApproveRestaurantAccessTool) Description() string {
	return "Approve a pending restaurant access request by its id."
}

func (t *ApproveRestaurantAccessTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the approver"},
				"access_request_id": {"type": "string", "description": "The id of the access request to approve"}
			},
			"required": ["username", "access_request_id"]
		}`),
	}
}

type approveAccessParams struct {
	Username        string `json:"username"`
	AccessRequestID string `json:"access_request_id"`
}

func (t *ApproveRestaurantAccessTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.approve_restaurant_access", t.logger, params,
		func(ctx context.Context, span trace.Span, p approveAccessParams) (any, error) {
			if err := RequireFields("username", p.Username, "access_request_id", p.AccessRequestID); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("request.id", p.AccessRequestID))

			if err := t.approvals.ApproveAccessRequest(ctx, p.Username, p.AccessRequestID); err != nil {
				return upstreamResult(err)
			}
			return TextResult(fmt.Sprintf("Access request %s approved.", p.AccessRequestID)), nil
		},
	)
}

// ApproveOperationRequestTool approves a pending one-time dish order
// request, granting the requester a single operate grant.
type ApproveOperationRequestTool struct {
	approvals *usecase.Approvals
	logger    *slog.Logger
}

// NewApproveOperationRequestTool creates the operation approval tool.
func NewApproveOperationRequestTool(approvals *usecase.Approvals, logger *slog.Logger) *ApproveOperationRequestTool {
	return &ApproveOperationRequestTool{approvals: approvals, logger: logger}
}

func (t *ApproveOperationRequestTool) Name() string { return "approve_operation_request" }

func (t *ApproveOperationRequestTool) Description() string {
	return "Approve a pending dish order approval request by its id."
}

func (t *ApproveOperationRequestTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "The username of the approver"},
				"operation_approval_id": {"type": "string", "description": "The id of the operation approval request to approve"}
			},
			"required": ["username", "operation_approval_id"]
		}`),
	}
}

type approveOperationParams struct {
	Username            string `json:"username"`
	OperationApprovalID string `json:"operation_approval_id"`
}

func (t *ApproveOperationRequestTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.approve_operation_request", t.logger, params,
		func(ctx context.Context, span trace.Span, p approveOperationParams) (any, error) {
			if err := RequireFields("username", p.Username, "operation_approval_id", p.OperationApprovalID); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("request.id", p.OperationApprovalID))

			if err := t.approvals.ApproveOperationApproval(ctx, p.Username, p.OperationApprovalID); err != nil {
				return upstreamResult(err)
			}
			return TextResult(fmt.Sprintf("Operation request %s approved.", p.OperationApprovalID)), nil
		},
	)
}

// formatPending renders pending requests as "- <id>: <reason>" lines.
func formatPending(pending []domain.ApprovalRequest) *domain.ToolResult {
	if len(pending) == 0 {
		return TextResult("No pending requests found.")
	}
	lines := make([]string, 0, len(pending))
	for _, r := range pending {
		lines = append(lines, fmt.Sprintf("- %s: %s", r.ID, r.Reason))
	}
	return TextResult(strings.Join(lines, "\n"))
}
