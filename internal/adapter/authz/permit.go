package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"foodcourt/internal/adapter/llm"
	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

const (
	defaultAPIURL = "https://api.permit.io"
	defaultPDPURL = "https://cloudpdp.api.permit.io"

	// Policy API responses are small JSON documents. Cap reads so a
	// misbehaving upstream cannot exhaust memory.
	maxResponseBody = 1 << 20

	maxAttempts    = 3
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 2 * time.Second

	defaultRateLimitRPS = 10
	defaultTimeout      = 30 * time.Second
)

// PermitGateway implements domain.AuthzGateway against the Permit.io
// REST API and its policy-decision point. Facts (users, instances, role
// assignments) go to the REST API; permission checks go to the PDP.
//
// Every call is rate limited client-side and retried on 429 and 5xx
// with exponential backoff. A final non-2xx response surfaces as
// *domain.UpstreamError so tools can report the status and body.
type PermitGateway struct {
	apiURL     string
	pdpURL     string
	apiKey     string
	project    string
	env        string
	elementsID string // access request element config
	approvalID string // operation approval element config
	tenant     string
	normalize  NormalizeFunc
	client     *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewPermitGateway builds a gateway from configuration. Zero values fall
// back to the hosted Permit endpoints, 10 requests per second, and a
// 30 second per-call timeout.
func NewPermitGateway(cfg config.AuthzConfig, logger *slog.Logger) *PermitGateway {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	pdpURL := strings.TrimRight(cfg.PDPURL, "/")
	if pdpURL == "" {
		pdpURL = defaultPDPURL
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "default"
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	approvalID := cfg.ApprovalConfigID
	if approvalID == "" {
		approvalID = cfg.ElementsConfigID
	}

	return &PermitGateway{
		apiURL:     apiURL,
		pdpURL:     pdpURL,
		apiKey:     cfg.APIKey,
		project:    cfg.ProjectID,
		env:        cfg.EnvID,
		elementsID: cfg.ElementsConfigID,
		approvalID: approvalID,
		tenant:     tenant,
		normalize:  NewNormalizer(cfg.Normalize),
		client: &http.Client{
			Transport: llm.NewPooledTransport(10*time.Second, timeout, config.PoolConfig{}),
			Timeout:   timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// splitInstance separates "restaurants:3" into resource type and
// instance key. A bare key is treated as a restaurant instance.
func splitInstance(instance string) (resource, key string) {
	if r, k, ok := strings.Cut(instance, ":"); ok {
		return r, k
	}
	return domain.ResourceRestaurants, instance
}

// Check asks the PDP whether the subject may perform the action on the
// given resource instance.
func (g *PermitGateway) Check(ctx context.Context, subject, action, instance string) (bool, error) {
	resource, key := splitInstance(instance)
	payload := pdpCheckRequest{
		User:   pdpUser{Key: g.normalize(subject)},
		Action: action,
		Resource: pdpResource{
			Type:   resource,
			Key:    key,
			Tenant: g.tenant,
		},
	}

	body, err := g.do(ctx, "authz.Check", http.MethodPost, g.pdpURL+"/allowed", payload, g.apiKey)
	if err != nil {
		return false, err
	}

	var decision struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(body, &decision); err != nil {
		return false, fmt.Errorf("authz.Check: decode response: %w", err)
	}
	return decision.Allow, nil
}

// SyncUser upserts the subject in the authorization service directory.
func (g *PermitGateway) SyncUser(ctx context.Context, username string) error {
	key := g.normalize(username)
	payload := map[string]string{"key": key}
	_, err := g.do(ctx, "authz.SyncUser", http.MethodPut, g.factsURL("users", key), payload, g.apiKey)
	return err
}

// CreateResourceInstance registers a policy object for one resource key.
// Upstream treats re-creation of an existing instance as a conflict, so
// callers run this behind an idempotent bootstrap.
func (g *PermitGateway) CreateResourceInstance(ctx context.Context, resource, key string) error {
	payload := map[string]string{
		"resource": resource,
		"key":      key,
		"tenant":   g.tenant,
	}
	_, err := g.do(ctx, "authz.CreateResourceInstance", http.MethodPost, g.factsURL("resource_instances"), payload, g.apiKey)
	return err
}

// BulkAssignRoles pushes a batch of role assignments in one call.
func (g *PermitGateway) BulkAssignRoles(ctx context.Context, assignments []domain.RoleAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	wire := make([]domain.RoleAssignment, len(assignments))
	for i, a := range assignments {
		a.User = g.normalize(a.User)
		if a.Tenant == "" {
			a.Tenant = g.tenant
		}
		wire[i] = a
	}
	_, err := g.do(ctx, "authz.BulkAssignRoles", http.MethodPost, g.factsURL("role_assignments", "bulk"), wire, g.apiKey)
	return err
}

// AssignRole grants a single role assignment.
func (g *PermitGateway) AssignRole(ctx context.Context, a domain.RoleAssignment) error {
	a.User = g.normalize(a.User)
	if a.Tenant == "" {
		a.Tenant = g.tenant
	}
	_, err := g.do(ctx, "authz.AssignRole", http.MethodPost, g.factsURL("role_assignments"), a, g.apiKey)
	return err
}

// UnassignRole revokes a single role assignment.
func (g *PermitGateway) UnassignRole(ctx context.Context, a domain.RoleAssignment) error {
	a.User = g.normalize(a.User)
	if a.Tenant == "" {
		a.Tenant = g.tenant
	}
	_, err := g.do(ctx, "authz.UnassignRole", http.MethodDelete, g.factsURL("role_assignments"), a, g.apiKey)
	return err
}

// LoginAs mints a member token scoped to the subject. Element request
// endpoints accept this token so the request is recorded as coming from
// the member rather than the workspace key.
func (g *PermitGateway) LoginAs(ctx context.Context, username string) (string, error) {
	payload := map[string]string{
		"user_id":   g.normalize(username),
		"tenant_id": g.tenant,
	}
	body, err := g.do(ctx, "authz.LoginAs", http.MethodPost, g.apiURL+"/v2/auth/elements_login_as", payload, g.apiKey)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("authz.LoginAs: decode response: %w", err)
	}
	return out.Token, nil
}

// elementToken resolves the bearer for member-scoped element calls,
// falling back to the workspace API key when login fails so a degraded
// elements endpoint does not block the request itself.
func (g *PermitGateway) elementToken(ctx context.Context, username string) string {
	token, err := g.LoginAs(ctx, username)
	if err != nil || token == "" {
		g.logger.Warn("member login failed, falling back to api key",
			"user", g.normalize(username), "error", err)
		return g.apiKey
	}
	return token
}

// CreateAccessRequest files a standing access request: the subject asks
// for a role on one resource instance and a reviewer approves it later.
func (g *PermitGateway) CreateAccessRequest(ctx context.Context, username, instance, role, reason string) error {
	userKey := g.normalize(username)
	resource, key := splitInstance(instance)
	payload := createRequestBody{
		Details: requestDetails{
			Tenant:           g.tenant,
			Resource:         resource,
			ResourceInstance: key,
			Role:             role,
		},
		Reason: reason,
	}
	endpoint := g.factsURL("access_requests", g.elementsID, "user", userKey, "tenant", g.tenant)
	_, err := g.do(ctx, "authz.CreateAccessRequest", http.MethodPost, endpoint, payload, g.elementToken(ctx, username))
	return err
}

// ListAccessRequests returns every access request the element holds,
// all statuses included.
func (g *PermitGateway) ListAccessRequests(ctx context.Context) ([]domain.ApprovalRequest, error) {
	body, err := g.do(ctx, "authz.ListAccessRequests", http.MethodGet, g.factsURL("access_requests", g.elementsID), nil, g.apiKey)
	if err != nil {
		return nil, err
	}
	return decodeRequestList("authz.ListAccessRequests", body)
}

// ApproveAccessRequest marks one access request approved upstream and
// returns the updated record.
func (g *PermitGateway) ApproveAccessRequest(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	endpoint := g.factsURL("access_requests", g.elementsID, id, "approve")
	return g.approve(ctx, "authz.ApproveAccessRequest", endpoint)
}

// CreateOperationApproval files a one-time approval request for an
// operation on a resource instance.
func (g *PermitGateway) CreateOperationApproval(ctx context.Context, username, instance, reason string) error {
	resource, key := splitInstance(instance)
	payload := createRequestBody{
		Details: requestDetails{
			Tenant:           g.tenant,
			Resource:         resource,
			ResourceInstance: key,
		},
		Reason: reason,
	}
	endpoint := fmt.Sprintf("%s/v2/elements/%s/%s/config/%s/operation_approval",
		g.apiURL, url.PathEscape(g.project), url.PathEscape(g.env), url.PathEscape(g.approvalID))
	_, err := g.do(ctx, "authz.CreateOperationApproval", http.MethodPost, endpoint, payload, g.elementToken(ctx, username))
	return err
}

// ListOperationApprovals returns every operation approval the element
// holds, all statuses included.
func (g *PermitGateway) ListOperationApprovals(ctx context.Context) ([]domain.ApprovalRequest, error) {
	body, err := g.do(ctx, "authz.ListOperationApprovals", http.MethodGet, g.factsURL("operation_approvals", g.approvalID), nil, g.apiKey)
	if err != nil {
		return nil, err
	}
	return decodeRequestList("authz.ListOperationApprovals", body)
}

// ApproveOperationApproval marks one operation approval approved
// upstream and returns the updated record.
func (g *PermitGateway) ApproveOperationApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	endpoint := g.factsURL("operation_approvals", g.approvalID, id, "approve")
	return g.approve(ctx, "authz.ApproveOperationApproval", endpoint)
}

func (g *PermitGateway) approve(ctx context.Context, op, endpoint string) (*domain.ApprovalRequest, error) {
	body, err := g.do(ctx, op, http.MethodPut, endpoint, nil, g.apiKey)
	if err != nil {
		return nil, err
	}
	var item requestItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	req := item.toDomain()
	return &req, nil
}

// factsURL joins path segments under the project/environment facts API.
func (g *PermitGateway) factsURL(parts ...string) string {
	var b strings.Builder
	b.WriteString(g.apiURL)
	b.WriteString("/v2/facts/")
	b.WriteString(url.PathEscape(g.project))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(g.env))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do executes one API call with rate limiting and retries. Responses
// with 429 or 5xx status retry up to maxAttempts with jittered backoff,
// as do transport failures. The final failure is returned either as a
// *domain.UpstreamError (HTTP-level) or a wrapped transport error.
func (g *PermitGateway) do(ctx context.Context, op, method, endpoint string, payload any, bearer string) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", op, err)
			if !g.waitRetry(ctx, op, attempt, lastErr) {
				break
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%s: read response: %w", op, readErr)
			if !g.waitRetry(ctx, op, attempt, lastErr) {
				break
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		lastErr = &domain.UpstreamError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			break
		}
		if !g.waitRetry(ctx, op, attempt, lastErr) {
			break
		}
	}
	return nil, lastErr
}

// waitRetry sleeps the backoff for attempt and reports whether another
// attempt should run.
func (g *PermitGateway) waitRetry(ctx context.Context, op string, attempt int, cause error) bool {
	if attempt >= maxAttempts-1 {
		return false
	}
	delay := authzBackoff(attempt)
	g.logger.Debug("retrying authz call", "op", op, "attempt", attempt+1, "delay", delay, "error", cause)
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// authzBackoff computes exponential backoff with jitter.
func authzBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// --- wire types ---

type pdpCheckRequest struct {
	User     pdpUser     `json:"user"`
	Action   string      `json:"action"`
	Resource pdpResource `json:"resource"`
}

type pdpUser struct {
	Key string `json:"key"`
}

type pdpResource struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Tenant string `json:"tenant"`
}

type requestDetails struct {
	Tenant           string `json:"tenant"`
	Resource         string `json:"resource"`
	ResourceInstance string `json:"resource_instance"`
	Role             string `json:"role,omitempty"`
}

type createRequestBody struct {
	Details requestDetails `json:"access_request_details"`
	Reason  string         `json:"reason"`
}

// requestItem is the upstream representation of one access request or
// operation approval. resource_instance arrives as either a string key
// or a bare number depending on how the record was created, so it
// decodes through flexKey.
type requestItem struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Reason  string  `json:"reason"`
	UserID  flexKey `json:"requesting_user_id"`
	Details struct {
		Tenant           string  `json:"tenant"`
		Resource         string  `json:"resource"`
		ResourceInstance flexKey `json:"resource_instance"`
		Role             string  `json:"role"`
	} `json:"access_request_details"`
}

// toDomain reassembles the typed instance reference ("restaurants:3")
// the use case layer matches against.
func (it requestItem) toDomain() domain.ApprovalRequest {
	req := domain.ApprovalRequest{
		ID:       it.ID,
		Status:   it.Status,
		Reason:   it.Reason,
		User:     string(it.UserID),
		Resource: it.Details.Resource,
		Role:     it.Details.Role,
	}
	if it.Details.Resource != "" && it.Details.ResourceInstance != "" {
		req.ResourceInstance = it.Details.Resource + ":" + string(it.Details.ResourceInstance)
	}
	return req
}

type listEnvelope struct {
	Data []requestItem `json:"data"`
}

func decodeRequestList(op string, body []byte) ([]domain.ApprovalRequest, error) {
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	out := make([]domain.ApprovalRequest, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		out = append(out, item.toDomain())
	}
	return out, nil
}

// flexKey decodes a JSON value that may be a string or a number into
// its string form.
type flexKey string

func (k *flexKey) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*k = flexKey(s)
		return nil
	}
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		*k = ""
		return nil
	}
	*k = flexKey(trimmed)
	return nil
}
