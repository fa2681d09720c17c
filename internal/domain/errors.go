package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("agent reached max iterations")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrEncryption       = fmt.Errorf("encryption operation failed")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrAuditWrite       = fmt.Errorf("audit log write failed")

	// Catalog errors.
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrRestaurantNotFound = fmt.Errorf("restaurant not found")
	ErrDishNotFound       = fmt.Errorf("dish not found")

	// Authorization errors.
	ErrAccessDenied    = fmt.Errorf("access denied")
	ErrRequestNotFound = fmt.Errorf("approval request not found")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Tool.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}

// UpstreamError carries a non-2xx response from the authorization service.
// Tools embed the status and body in their result text so a human or the
// model can diagnose the failure.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Body)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations      ErrorCode = "MAX_ITERATIONS"
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	CodeRestaurantNotFound ErrorCode = "RESTAURANT_NOT_FOUND"
	CodeDishNotFound       ErrorCode = "DISH_NOT_FOUND"
	CodeAccessDenied       ErrorCode = "ACCESS_DENIED"
	CodeRequestNotFound    ErrorCode = "REQUEST_NOT_FOUND"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrToolNotFound:       CodeToolNotFound,
	ErrToolFailure:        CodeToolFailure,
	ErrMaxIterations:      CodeMaxIterations,
	ErrSessionNotFound:    CodeSessionNotFound,
	ErrConfigLoad:         CodeConfigLoad,
	ErrEncryption:         CodeEncryption,
	ErrDecryption:         CodeDecryption,
	ErrAuditWrite:         CodeAuditWrite,
	ErrUserNotFound:       CodeUserNotFound,
	ErrRestaurantNotFound: CodeRestaurantNotFound,
	ErrDishNotFound:       CodeDishNotFound,
	ErrAccessDenied:       CodeAccessDenied,
	ErrRequestNotFound:    CodeRequestNotFound,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
