// Package integration wires real components together for cross-package
// tests: the SQLite catalog, the tool registry, the approval workflow, and
// the orchestrator loop. The authorization gateway is replaced with an
// in-memory implementation so the tests run without a policy service.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"foodcourt/internal/domain"
)

// Config holds integration test configuration from environment.
type Config struct {
	AnthropicKey string
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads integration test configuration from environment.
func LoadConfig() *Config {
	return &Config{
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		TestTimeout:  60 * time.Second,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set.
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// MemoryGateway is an in-memory domain.AuthzGateway. It mirrors the
// household policy: the parent role allows everything, child-can-order
// allows read, operate-approved allows operate. Requests get sequential
// ids ("req-1", "op-2") so tests can reference them deterministically.
type MemoryGateway struct {
	mu        sync.Mutex
	seq       int
	users     map[string]bool
	instances map[string]bool
	roles     map[string]map[string]bool // "user|instance" -> roles
	access    []domain.ApprovalRequest
	approvals []domain.ApprovalRequest
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		users:     make(map[string]bool),
		instances: make(map[string]bool),
		roles:     make(map[string]map[string]bool),
	}
}

func roleAllows(role, action string) bool {
	switch role {
	case domain.AuthzRoleParent:
		return true
	case domain.AuthzRoleMember:
		return action == domain.ActionRead
	case "operate-approved":
		return action == domain.ActionOperate
	}
	return false
}

func (g *MemoryGateway) Check(_ context.Context, subject, action, instance string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for role := range g.roles[subject+"|"+instance] {
		if roleAllows(role, action) {
			return true, nil
		}
	}
	return false, nil
}

func (g *MemoryGateway) SyncUser(_ context.Context, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[username] = true
	return nil
}

func (g *MemoryGateway) CreateResourceInstance(_ context.Context, resource, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances[resource+":"+key] = true
	return nil
}

func (g *MemoryGateway) BulkAssignRoles(ctx context.Context, assignments []domain.RoleAssignment) error {
	for _, a := range assignments {
		if err := g.AssignRole(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (g *MemoryGateway) AssignRole(_ context.Context, a domain.RoleAssignment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := a.User + "|" + a.ResourceInstance
	if g.roles[key] == nil {
		g.roles[key] = make(map[string]bool)
	}
	g.roles[key][a.Role] = true
	return nil
}

func (g *MemoryGateway) UnassignRole(_ context.Context, a domain.RoleAssignment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.roles[a.User+"|"+a.ResourceInstance], a.Role)
	return nil
}

func (g *MemoryGateway) LoginAs(_ context.Context, username string) (string, error) {
	return "member-token:" + username, nil
}

func (g *MemoryGateway) CreateAccessRequest(_ context.Context, username, instance, role, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.access = append(g.access, domain.ApprovalRequest{
		ID:               fmt.Sprintf("req-%d", g.seq),
		Status:           domain.StatusPending,
		Reason:           reason,
		User:             username,
		Resource:         domain.ResourceRestaurants,
		ResourceInstance: instance,
		Role:             role,
	})
	return nil
}

func (g *MemoryGateway) ListAccessRequests(_ context.Context) ([]domain.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.ApprovalRequest, len(g.access))
	copy(out, g.access)
	return out, nil
}

func (g *MemoryGateway) ApproveAccessRequest(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.access {
		if g.access[i].ID == id {
			g.access[i].Status = domain.StatusApproved
			req := g.access[i]
			return &req, nil
		}
	}
	return nil, &domain.UpstreamError{Op: "approve access request", Status: 404, Body: "request not found"}
}

func (g *MemoryGateway) CreateOperationApproval(_ context.Context, username, instance, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.approvals = append(g.approvals, domain.ApprovalRequest{
		ID:               fmt.Sprintf("op-%d", g.seq),
		Status:           domain.StatusPending,
		Reason:           reason,
		User:             username,
		Resource:         domain.ResourceRestaurants,
		ResourceInstance: instance,
	})
	return nil
}

func (g *MemoryGateway) ListOperationApprovals(_ context.Context) ([]domain.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.ApprovalRequest, len(g.approvals))
	copy(out, g.approvals)
	return out, nil
}

func (g *MemoryGateway) ApproveOperationApproval(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.approvals {
		if g.approvals[i].ID == id {
			g.approvals[i].Status = domain.StatusApproved
			req := g.approvals[i]
			return &req, nil
		}
	}
	return nil, &domain.UpstreamError{Op: "approve operation approval", Status: 404, Body: "request not found"}
}

// Roles reports the roles currently assigned to user on instance.
func (g *MemoryGateway) Roles(user, instance string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for role := range g.roles[user+"|"+instance] {
		out = append(out, role)
	}
	return out
}
