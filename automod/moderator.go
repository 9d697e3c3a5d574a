package automod

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentmod/contentmod/automod/docstore"

	"go.opentelemetry.io/otel/attribute"
)

// Real-time moderation pipeline, invoked once per record creation event.
//
// Invocations share no state with each other: redelivered or concurrent events for the same record are
// handled by the idempotency guard over stored metadata.
type Moderator struct {
	Logger   *slog.Logger
	Config   *Config
	Provider Provider
	Actions  *Actioner
	// optional; nil when events are disabled
	Notifier Notifier
}

// Result of a single real-time invocation.
type Outcome struct {
	Path   string  `json:"path"`
	Action string  `json:"action"`
	Result *Result `json:"result,omitempty"`
}

func NewModerator(config *Config, prov Provider, store docstore.Store, notifier Notifier, logger *slog.Logger) *Moderator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Moderator{
		Logger:   logger,
		Config:   config,
		Provider: prov,
		Actions:  NewActioner(store, config),
		Notifier: notifier,
	}
}

// HandleCreate moderates a newly created record, given the record fields at creation time.
//
// Provider and store failures are recorded on the record with status "error" and then returned, so the
// caller can surface them to whatever delivered the event.
func (m *Moderator) HandleCreate(ctx context.Context, rec *docstore.Record) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "HandleCreate")
	defer span.End()
	span.SetAttributes(attribute.String("path", rec.Path))

	start := time.Now()
	defer func() {
		recordProcessDuration.Observe(time.Since(start).Seconds())
	}()

	logger := m.Logger.With("path", rec.Path)
	logger.Info("processing new record")

	if ShouldSkipRecord(rec.Data, m.Config.ModerationField) {
		logger.Info("skipping already processed record")
		recordOutcomeCount.WithLabelValues(OutcomeUnchanged).Inc()
		return &Outcome{Path: rec.Path, Action: OutcomeUnchanged}, nil
	}

	text, ok := RecordText(rec.Data, m.Config.TextField)
	if !ok {
		logger.Warn("no text found in record", "field", m.Config.TextField)
		if err := m.Actions.RecordSkipped(ctx, rec.Path, ReasonNoText); err != nil {
			return nil, fmt.Errorf("recording skipped status: %w", err)
		}
		recordOutcomeCount.WithLabelValues(OutcomeSkipped).Inc()
		return &Outcome{Path: rec.Path, Action: OutcomeSkipped}, nil
	}

	logger.Info("evaluating content", "provider", m.Provider.Name())
	res, act, err := m.moderate(ctx, rec.Path, text)
	if err != nil {
		logger.Error("moderation failed", "err", err)
		recordErrorCount.WithLabelValues(m.Provider.Name()).Inc()
		span.RecordError(err)
		if rerr := m.Actions.RecordError(ctx, rec.Path, err); rerr != nil {
			logger.Error("failed to record moderation error", "err", rerr)
		}
		return nil, err
	}
	logger.Info("moderation result", "flagged", res.Flagged, "score", res.Score, "action", act.Action)
	recordOutcomeCount.WithLabelValues(act.Action).Inc()

	if m.Notifier != nil {
		m.Notifier.NotifyModerated(ctx, rec.Path, res, act.Action)
	}

	return &Outcome{Path: rec.Path, Action: act.Action, Result: res}, nil
}

func (m *Moderator) moderate(ctx context.Context, path, text string) (*Result, *ActionResult, error) {
	res, err := m.Provider.Moderate(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	act, err := m.Actions.ApplyAction(ctx, path, res)
	if err != nil {
		return nil, nil, err
	}
	return res, act, nil
}
