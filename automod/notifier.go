package automod

import (
	"context"
)

// Interface for a type that can publish notifications about moderated records.
//
// Implementations must not return or propagate delivery failures: by the time a notifier is called, the
// moderation action has already been committed.
type Notifier interface {
	NotifyModerated(ctx context.Context, path string, res *Result, action string)
}
