package domain

import (
	"context"
	"fmt"
)

// ResourceRestaurants is the resource type every policy object belongs to.
const ResourceRestaurants = "restaurants"

// Actions evaluated against the policy-decision point.
const (
	ActionRead    = "read"
	ActionOperate = "operate"
)

// InstanceKey formats a typed resource instance reference, e.g. "restaurants:3".
func InstanceKey(resource string, id int64) string {
	return fmt.Sprintf("%s:%d", resource, id)
}

// Roles known to the authorization service.
const (
	AuthzRoleParent = "parent"
	AuthzRoleMember = "child-can-order"
)

// Approval request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// RoleAssignment binds a subject to a role on a resource instance within a tenant.
type RoleAssignment struct {
	User             string `json:"user"`
	Role             string `json:"role"`
	Tenant           string `json:"tenant"`
	ResourceInstance string `json:"resource_instance"`
}

// ApprovalRequest is a pending exception record held by the authorization
// service. The same shape serves both standing access requests and one-time
// operation approvals; the id is opaque and issued upstream.
type ApprovalRequest struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
	User             string `json:"user,omitempty"`
	Resource         string `json:"resource,omitempty"`
	ResourceInstance string `json:"resource_instance,omitempty"`
	Role             string `json:"role,omitempty"`
}

// AuthzGateway wraps the remote policy service. Decisions are never cached:
// every check is a live round trip so grants and revocations take effect
// immediately.
type AuthzGateway interface {
	// Check asks the PDP whether subject may perform action on the resource
	// instance (e.g. "restaurants:3").
	Check(ctx context.Context, subject, action, instance string) (bool, error)

	SyncUser(ctx context.Context, username string) error
	CreateResourceInstance(ctx context.Context, resource, key string) error
	BulkAssignRoles(ctx context.Context, assignments []RoleAssignment) error
	AssignRole(ctx context.Context, a RoleAssignment) error
	UnassignRole(ctx context.Context, a RoleAssignment) error

	// LoginAs mints a member token for element-scoped request calls.
	LoginAs(ctx context.Context, username string) (string, error)

	CreateAccessRequest(ctx context.Context, username, instance, role, reason string) error
	ListAccessRequests(ctx context.Context) ([]ApprovalRequest, error)
	ApproveAccessRequest(ctx context.Context, id string) (*ApprovalRequest, error)

	CreateOperationApproval(ctx context.Context, username, instance, reason string) error
	ListOperationApprovals(ctx context.Context) ([]ApprovalRequest, error)
	ApproveOperationApproval(ctx context.Context, id string) (*ApprovalRequest, error)
}
