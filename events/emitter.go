package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/contentmod/contentmod/automod"
)

// Emitter turns moderation outcomes in to events. It implements automod.Notifier.
type Emitter struct {
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

var _ automod.Notifier = (*Emitter)(nil)

func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		Publisher: pub,
		Logger:    logger.With("system", "events"),
		Now:       time.Now,
	}
}

// Publishes a "moderated" event for every outcome, and an additional "flagged" event when the result was
// flagged. Publish errors are logged and dropped.
func (e *Emitter) NotifyModerated(ctx context.Context, path string, res *automod.Result, action string) {
	now := e.Now()
	e.publish(ctx, NewEvent(TypeModerated, path, res, action, now))
	if res.Flagged {
		e.publish(ctx, NewEvent(TypeFlagged, path, res, action, now))
	}
}

func (e *Emitter) publish(ctx context.Context, evt *Event) {
	if err := e.Publisher.Publish(ctx, evt); err != nil {
		e.Logger.Warn("failed to publish event", "type", evt.Type, "path", evt.Subject, "err", err)
		eventsPublishErrors.WithLabelValues(evt.Type).Inc()
		return
	}
	eventsPublished.WithLabelValues(evt.Type).Inc()
}
