package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditLLMCall         AuditEventType = "llm_call"
	AuditToolExec        AuditEventType = "tool_exec"
	AuditAccessDenied    AuditEventType = "access_denied"
	AuditOrderPlaced     AuditEventType = "order_placed"
	AuditGrantRevoked    AuditEventType = "grant_revoked"
	AuditRequestCreated  AuditEventType = "request_created"
	AuditRequestApproved AuditEventType = "request_approved"
	AuditBootstrapSync   AuditEventType = "bootstrap_sync"
	AuditSessionCreate   AuditEventType = "session_create"
	AuditSessionDelete   AuditEventType = "session_delete"
)

// AuditEvent represents a single auditable action.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail,omitempty"`

	Actor    string `json:"actor,omitempty"`
	Session  string `json:"session,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
