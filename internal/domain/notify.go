package domain

import "context"

// Notifier announces newly created approval requests so reviewers hear
// about them without polling. Failures are logged by callers, never
// surfaced to the requester.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
