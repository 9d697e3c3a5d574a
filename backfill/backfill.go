// Backfill moderation for records which existed before real-time moderation was enabled.
//
// A backfill is a chain of bounded batches. Each batch is a Task read from a TaskQueue; a full batch
// enqueues the task for the following batch, and a short (or empty) batch ends the chain. Progress is
// reported through a Runtime.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/automod/docstore"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Stable name of the backfill job, used for queue keys and logging
const JobName = "backfillModeration"

// Maximum number of records read per batch
const BatchSize = 20

var (
	// StateInProgress is reported at the start of every batch
	StateInProgress = "in_progress"
	// StateComplete is reported once, when a scan finishes or backfill is disabled
	StateComplete = "complete"
	// StateFailed is reported when a batch has exhausted its retries
	StateFailed = "failed"
)

const (
	MessageSkipped  = "Backfill skipped per configuration."
	MessageComplete = "Backfill complete."
	MessageEnqueued = "Backfill scan enqueued."
)

// ErrQueueEmpty is returned by TaskQueue.Dequeue when no task became available before the poll timeout
var ErrQueueEmpty = errors.New("backfill queue empty")

// ErrScanInProgress is returned by Start when another scan has not finished yet
var ErrScanInProgress = errors.New("backfill scan already in progress")

var tracer = otel.Tracer("backfiller")

// Task is the message for a single batch. An empty StartAfter starts from the beginning of the collection.
type Task struct {
	// Path of the last record visited by the previous batch
	StartAfter string `json:"startAfter,omitempty"`
	// Cumulative count of records moderated by earlier batches of the same scan
	Processed int `json:"processed"`
	// Number of times this batch has failed
	Attempt int `json:"attempt"`
}

// Summary of a single batch
type BatchReport struct {
	State string
	// Records fetched in this batch
	Fetched int
	// Records moderated in this batch
	Processed int
	Skipped   int
	Failed    int
	// Records moderated across the whole scan, including this batch
	Total   int
	Message string
	// Task enqueued for the following batch, if any
	Next *Task
}

type BackfillOptions struct {
	// Pacing of provider calls during backfill. Zero or negative means unlimited.
	ProviderRequestsPerSecond float64
	// Maximum attempts to enqueue the follow-up task before the batch is considered failed
	EnqueueMaxRetries uint64
	// An in-progress scan with no status update for this long is treated as abandoned, and a new scan may
	// be started. Must exceed the longest batch retry delay.
	StaleAfter time.Duration
}

func DefaultBackfillOptions() *BackfillOptions {
	return &BackfillOptions{
		ProviderRequestsPerSecond: 5,
		EnqueueMaxRetries:         5,
		StaleAfter:                3 * time.Hour,
	}
}

// Scheduler runs backfill batches against the configured collection.
type Scheduler struct {
	Config   *automod.Config
	Store    docstore.Store
	Provider automod.Provider
	Actions  *automod.Actioner
	Queue    TaskQueue
	Runtime  Runtime
	Logger   *slog.Logger

	providerLimiter   *rate.Limiter
	enqueueMaxRetries uint64
	staleAfter        time.Duration
	// delay before a failed batch is retried; defaults to computeExponentialBackoff
	retryDelay func(attempt int) time.Duration
}

func NewScheduler(config *automod.Config, store docstore.Store, prov automod.Provider, queue TaskQueue, runtime Runtime, logger *slog.Logger, opts *BackfillOptions) *Scheduler {
	if opts == nil {
		opts = DefaultBackfillOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.ProviderRequestsPerSecond > 0 {
		limit = rate.Limit(opts.ProviderRequestsPerSecond)
	}
	return &Scheduler{
		Config:            config,
		Store:             store,
		Provider:          prov,
		Actions:           automod.NewActioner(store, config),
		Queue:             queue,
		Runtime:           runtime,
		Logger:            logger.With("source", "backfiller", "name", JobName),
		providerLimiter:   rate.NewLimiter(limit, 1),
		enqueueMaxRetries: opts.EnqueueMaxRetries,
		staleAfter:        opts.StaleAfter,
		retryDelay:        computeExponentialBackoff,
	}
}

// Kicks off a new scan from the beginning of the collection.
func (s *Scheduler) Start(ctx context.Context) error {
	ok, err := s.Runtime.Claim(ctx, &Status{State: StateInProgress, Message: MessageEnqueued}, s.staleAfter)
	if err != nil {
		return fmt.Errorf("claiming backfill scan: %w", err)
	}
	if !ok {
		return ErrScanInProgress
	}
	if err := s.Queue.Enqueue(ctx, &Task{}); err != nil {
		// release the claim so the scan can be started again
		if serr := s.Runtime.SetStatus(ctx, &Status{State: StateFailed, Message: err.Error()}); serr != nil {
			s.Logger.Warn("failed to report backfill state", "err", serr)
		}
		return fmt.Errorf("enqueueing initial backfill task: %w", err)
	}
	backfillTasksEnqueued.Inc()
	s.Logger.Info("enqueued backfill scan")
	return nil
}

// RunBatch processes a single batch. Per-record failures are logged and counted, and do not fail the
// batch; an error is returned only when the batch itself could not be read or continued.
func (s *Scheduler) RunBatch(ctx context.Context, task *Task) (*BatchReport, error) {
	ctx, span := tracer.Start(ctx, "RunBatch")
	defer span.End()
	span.SetAttributes(attribute.String("startAfter", task.StartAfter), attribute.Int("attempt", task.Attempt))

	log := s.Logger.With("startAfter", task.StartAfter)

	if !s.Config.DoBackfill {
		log.Info("backfill disabled by configuration")
		rep := &BatchReport{State: StateComplete, Message: MessageSkipped, Total: task.Processed}
		return rep, s.report(ctx, rep)
	}

	if err := s.Runtime.SetStatus(ctx, &Status{State: StateInProgress, Processed: task.Processed}); err != nil {
		log.Warn("failed to report backfill state", "err", err)
	}

	startAfter, err := s.resolveCursor(ctx, task.StartAfter)
	if err != nil {
		return nil, err
	}

	log.Info("starting backfill batch")
	recs, err := s.Store.List(ctx, s.Config.CollectionPath, startAfter, BatchSize)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	if len(recs) == 0 {
		log.Info("backfill complete, no more records")
		rep := &BatchReport{State: StateComplete, Message: MessageComplete, Total: task.Processed}
		return rep, s.report(ctx, rep)
	}

	rep := &BatchReport{Fetched: len(recs)}
	for _, rec := range recs {
		switch s.processRecord(ctx, rec) {
		case recordModerated:
			rep.Processed++
		case recordFailed:
			rep.Failed++
		default:
			rep.Skipped++
		}
	}
	rep.Total = task.Processed + rep.Processed
	backfillBatchesProcessed.Inc()
	log.Info("batch complete", "processed", rep.Processed, "skipped", rep.Skipped, "failed", rep.Failed)

	if len(recs) == BatchSize {
		next := &Task{
			StartAfter: recs[len(recs)-1].Path,
			Processed:  rep.Total,
		}
		if err := s.enqueueNext(ctx, next); err != nil {
			return nil, err
		}
		rep.State = StateInProgress
		rep.Next = next
		log.Info("queued next batch", "next", next.StartAfter)
		return rep, nil
	}

	rep.State = StateComplete
	rep.Message = fmt.Sprintf("%s Processed %d documents in final batch.", MessageComplete, rep.Processed)
	return rep, s.report(ctx, rep)
}

// Returns the cursor to list from. A cursor pointing at a record which no longer exists restarts the scan
// from the beginning; the guard makes already-processed records cheap to revisit.
func (s *Scheduler) resolveCursor(ctx context.Context, startAfter string) (string, error) {
	if startAfter == "" {
		return "", nil
	}
	_, err := s.Store.Get(ctx, startAfter)
	if errors.Is(err, docstore.ErrNotFound) {
		s.Logger.Warn("backfill cursor record no longer exists, restarting scan from the beginning", "startAfter", startAfter)
		backfillCursorResets.Inc()
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving backfill cursor: %w", err)
	}
	return startAfter, nil
}

type recordOutcome int

const (
	recordSkipped recordOutcome = iota
	recordModerated
	recordFailed
)

func (s *Scheduler) processRecord(ctx context.Context, rec *docstore.Record) (out recordOutcome) {
	log := s.Logger.With("path", rec.Path)
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic processing record", "panic", r)
			backfillRecordsFailed.Inc()
			out = recordFailed
		}
	}()

	if automod.ShouldSkipRecord(rec.Data, s.Config.ModerationField) {
		return recordSkipped
	}
	text, ok := automod.RecordText(rec.Data, s.Config.TextField)
	if !ok {
		return recordSkipped
	}

	if err := s.providerLimiter.Wait(ctx); err != nil {
		log.Error("provider rate limiter wait failed", "err", err)
		backfillRecordsFailed.Inc()
		return recordFailed
	}

	res, err := s.Provider.Moderate(ctx, text)
	if err != nil {
		log.Error("processing failed", "err", err)
		backfillRecordsFailed.Inc()
		return recordFailed
	}
	act, err := s.Actions.ApplyAction(ctx, rec.Path, res)
	if err != nil {
		log.Error("applying moderation action failed", "err", err)
		backfillRecordsFailed.Inc()
		return recordFailed
	}

	log.Info("processed record", "action", act.Action)
	backfillRecordsProcessed.WithLabelValues(act.Action).Inc()
	return recordModerated
}

func (s *Scheduler) enqueueNext(ctx context.Context, next *Task) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.enqueueMaxRetries), ctx)
	err := backoff.Retry(func() error {
		err := s.Queue.Enqueue(ctx, next)
		if err != nil {
			s.Logger.Warn("failed to enqueue next backfill batch, retrying", "err", err)
		}
		return err
	}, bo)
	if err != nil {
		return fmt.Errorf("enqueueing next backfill batch: %w", err)
	}
	backfillTasksEnqueued.Inc()
	return nil
}

func (s *Scheduler) report(ctx context.Context, rep *BatchReport) error {
	err := s.Runtime.SetStatus(ctx, &Status{
		State:     rep.State,
		Message:   rep.Message,
		Processed: rep.Total,
	})
	if err != nil {
		return fmt.Errorf("reporting backfill state: %w", err)
	}
	return nil
}

// MaxRetries is the maximum number of times to retry a backfill batch
var MaxRetries = 10

func computeExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 10 * time.Second
}
