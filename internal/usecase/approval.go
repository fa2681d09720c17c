package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foodcourt/internal/domain"
)

// Default workflow settings, overridable via ApprovalsDeps.
const (
	defaultMaxDishPrice = 10.00
	defaultTenant       = "default"
	defaultOperateRole  = "operate-approved"
)

// ApprovalsDeps holds injected dependencies for the approval workflow.
type ApprovalsDeps struct {
	Authz    domain.AuthzGateway
	Notifier domain.Notifier    // optional, nil = no notifications
	Audit    domain.AuditLogger // optional, nil = no audit trail
	Logger   *slog.Logger

	Tenant           string
	OperateRole      string  // role assigned by an operation approval
	MaxDishPrice     float64 // strictly-above threshold for child orders
	RevokeAfterOrder bool    // consume operate grants after one order
}

// Approvals coordinates the human approval workflow against the
// authorization gateway: deciding whether an order may proceed, creating
// access and operation requests, listing pending ones, approving them,
// and revoking consumed one-time grants.
//
// Decisions are never cached. Every permission check is a live gateway
// round trip so an approval granted mid-session takes effect on the very
// next order attempt.
type Approvals struct {
	deps ApprovalsDeps
}

// NewApprovals creates the approval workflow with the given dependencies.
func NewApprovals(deps ApprovalsDeps) *Approvals {
	if deps.Tenant == "" {
		deps.Tenant = defaultTenant
	}
	if deps.OperateRole == "" {
		deps.OperateRole = defaultOperateRole
	}
	if deps.MaxDishPrice <= 0 {
		deps.MaxDishPrice = defaultMaxDishPrice
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Approvals{deps: deps}
}

// MaxDishPrice returns the configured price threshold for child orders.
func (a *Approvals) MaxDishPrice() float64 {
	return a.deps.MaxDishPrice
}

// OrderDecision is the outcome of an order authorization check.
type OrderDecision struct {
	Allowed   bool
	UsedGrant bool // the order relied on a live operate grant
}

// AuthorizeOrder decides whether user may order dish from restaurant.
// The operate permission is always checked live; a child ordering a dish
// priced strictly above the threshold needs that grant, everyone else
// passes regardless. UsedGrant reports when the grant was what let the
// order through, so the caller knows to consume it.
func (a *Approvals) AuthorizeOrder(ctx context.Context, user *domain.User, restaurant *domain.Restaurant, dish *domain.Dish) (OrderDecision, error) {
	instance := domain.InstanceKey(domain.ResourceRestaurants, restaurant.ID)

	granted, err := a.deps.Authz.Check(ctx, user.Username, domain.ActionOperate, instance)
	if err != nil {
		return OrderDecision{}, err
	}

	restricted := user.Role == domain.RoleChild && dish.Price > a.deps.MaxDishPrice
	if restricted && !granted {
		a.audit(ctx, domain.AuditEvent{
			Type:     domain.AuditAccessDenied,
			Actor:    user.Username,
			Resource: instance,
			Action:   domain.ActionOperate,
			Outcome:  "refused",
			Detail:   map[string]string{"dish": dish.Name, "price": fmt.Sprintf("%.2f", dish.Price)},
		})
		return OrderDecision{Allowed: false}, nil
	}

	return OrderDecision{Allowed: true, UsedGrant: restricted && granted}, nil
}

// ConsumeOperateGrant unassigns the one-time operate role after an order
// that relied on it. No-op when revocation is disabled by config.
func (a *Approvals) ConsumeOperateGrant(ctx context.Context, username string, restaurantID int64) error {
	if !a.deps.RevokeAfterOrder {
		return nil
	}

	instance := domain.InstanceKey(domain.ResourceRestaurants, restaurantID)
	err := a.deps.Authz.UnassignRole(ctx, domain.RoleAssignment{
		User:             username,
		Role:             a.deps.OperateRole,
		Tenant:           a.deps.Tenant,
		ResourceInstance: instance,
	})
	if err != nil {
		return domain.WrapOp("consume operate grant", err)
	}

	a.deps.Logger.Info("operate grant consumed", "user", username, "instance", instance)
	a.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditGrantRevoked,
		Actor:    username,
		Resource: instance,
		Action:   domain.ActionOperate,
		Outcome:  "revoked",
	})
	return nil
}

// RequestRestaurantAccess creates a standing access request asking for the
// child-can-order role on the restaurant. Reviewers are notified; notifier
// failures are logged and swallowed.
func (a *Approvals) RequestRestaurantAccess(ctx context.Context, username string, restaurant *domain.Restaurant) error {
	instance := domain.InstanceKey(domain.ResourceRestaurants, restaurant.ID)
	reason := fmt.Sprintf("User %s requests role %s for %s restaurant",
		username, domain.AuthzRoleMember, restaurant.Name)

	if err := a.deps.Authz.CreateAccessRequest(ctx, username, instance, domain.AuthzRoleMember, reason); err != nil {
		return err
	}

	a.deps.Logger.Info("access request created", "user", username, "restaurant", restaurant.Name)
	a.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditRequestCreated,
		Actor:    username,
		Resource: instance,
		Outcome:  domain.StatusPending,
		Detail:   map[string]string{"kind": "access_request", "reason": reason},
	})
	a.notify(ctx, "New access request: "+reason)
	return nil
}

// RequestDishApproval creates a one-time operation approval request for
// ordering a dish from the restaurant that serves it.
func (a *Approvals) RequestDishApproval(ctx context.Context, username string, restaurant *domain.Restaurant, dishName string) error {
	instance := domain.InstanceKey(domain.ResourceRestaurants, restaurant.ID)
	reason := fmt.Sprintf("User %s requests approval to order %s", username, dishName)

	if err := a.deps.Authz.CreateOperationApproval(ctx, username, instance, reason); err != nil {
		return err
	}

	a.deps.Logger.Info("operation approval requested", "user", username, "dish", dishName)
	a.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditRequestCreated,
		Actor:    username,
		Resource: instance,
		Outcome:  domain.StatusPending,
		Detail:   map[string]string{"kind": "operation_approval", "reason": reason},
	})
	a.notify(ctx, "New operation approval request: "+reason)
	return nil
}

// ListPendingAccessRequests returns pending access requests scoped to the
// given restaurant instance.
func (a *Approvals) ListPendingAccessRequests(ctx context.Context, restaurant *domain.Restaurant) ([]domain.ApprovalRequest, error) {
	all, err := a.deps.Authz.ListAccessRequests(ctx)
	if err != nil {
		return nil, err
	}
	return filterPending(all, restaurant.ID), nil
}

// ListPendingOperationApprovals returns pending operation approvals scoped
// to the given restaurant instance.
func (a *Approvals) ListPendingOperationApprovals(ctx context.Context, restaurant *domain.Restaurant) ([]domain.ApprovalRequest, error) {
	all, err := a.deps.Authz.ListOperationApprovals(ctx)
	if err != nil {
		return nil, err
	}
	return filterPending(all, restaurant.ID), nil
}

// ApproveAccessRequest marks the request approved upstream and assigns the
// requested role to the requester on the request's restaurant instance.
func (a *Approvals) ApproveAccessRequest(ctx context.Context, reviewer, id string) error {
	req, err := a.deps.Authz.ApproveAccessRequest(ctx, id)
	if err != nil {
		return err
	}

	if req.User != "" && req.ResourceInstance != "" {
		role := req.Role
		if role == "" {
			role = domain.AuthzRoleMember
		}
		err := a.deps.Authz.AssignRole(ctx, domain.RoleAssignment{
			User:             req.User,
			Role:             role,
			Tenant:           a.deps.Tenant,
			ResourceInstance: req.ResourceInstance,
		})
		if err != nil {
			return domain.WrapOp("assign approved role", err)
		}
	}

	a.deps.Logger.Info("access request approved", "id", id, "reviewer", reviewer)
	a.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditRequestApproved,
		Actor:    reviewer,
		Resource: req.ResourceInstance,
		Outcome:  domain.StatusApproved,
		Detail:   map[string]string{"kind": "access_request", "id": id, "requester": req.User},
	})
	return nil
}

// ApproveOperationApproval marks the operation approval approved upstream
// and assigns the one-time operate role to the requester.
func (a *Approvals) ApproveOperationApproval(ctx context.Context, reviewer, id string) error {
	req, err := a.deps.Authz.ApproveOperationApproval(ctx, id)
	if err != nil {
		return err
	}

	if req.User != "" && req.ResourceInstance != "" {
		err := a.deps.Authz.AssignRole(ctx, domain.RoleAssignment{
			User:             req.User,
			Role:             a.deps.OperateRole,
			Tenant:           a.deps.Tenant,
			ResourceInstance: req.ResourceInstance,
		})
		if err != nil {
			return domain.WrapOp("assign operate role", err)
		}
	}

	a.deps.Logger.Info("operation approval approved", "id", id, "reviewer", reviewer)
	a.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditRequestApproved,
		Actor:    reviewer,
		Resource: req.ResourceInstance,
		Outcome:  domain.StatusApproved,
		Detail:   map[string]string{"kind": "operation_approval", "id": id, "requester": req.User},
	})
	return nil
}

func filterPending(reqs []domain.ApprovalRequest, restaurantID int64) []domain.ApprovalRequest {
	instance := domain.InstanceKey(domain.ResourceRestaurants, restaurantID)
	var pending []domain.ApprovalRequest
	for _, r := range reqs {
		if r.Status == domain.StatusPending && r.ResourceInstance == instance {
			pending = append(pending, r)
		}
	}
	return pending
}

func (a *Approvals) notify(ctx context.Context, message string) {
	if a.deps.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.deps.Notifier.Notify(nctx, message); err != nil {
		a.deps.Logger.Warn("request notification failed", "error", err)
	}
}

func (a *Approvals) audit(ctx context.Context, event domain.AuditEvent) {
	if a.deps.Audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := a.deps.Audit.Log(ctx, event); err != nil {
		a.deps.Logger.Warn("audit write failed", "error", err)
	}
}
