package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Run consumes backfill tasks until the context is cancelled. A single worker processes one batch at a
// time, so at most one batch of a scan is ever in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Logger.Info("starting backfill processor")
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("stopping backfill processor")
			return nil
		default:
		}

		task, err := s.Queue.Dequeue(ctx)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Logger.Error("failed to get next backfill task", "err", err)
			sleepCtx(ctx, 1*time.Second)
			continue
		}

		if err := s.HandleTask(ctx, task); err != nil {
			s.Logger.Error("failed to handle backfill task", "err", err)
		}
	}
}

// HandleTask runs one batch, re-enqueueing the same task with exponential backoff when the batch fails.
// After MaxRetries failed attempts the scan is reported as failed.
func (s *Scheduler) HandleTask(ctx context.Context, task *Task) error {
	rep, err := s.RunBatch(ctx, task)
	if err == nil {
		if rep.State == StateComplete {
			s.Logger.Info("backfill scan finished", "message", rep.Message, "total", rep.Total)
		}
		return nil
	}

	backfillBatchErrors.Inc()
	log := s.Logger.With("startAfter", task.StartAfter, "attempt", task.Attempt)
	log.Error("backfill batch failed", "err", err)

	if task.Attempt >= MaxRetries {
		msg := fmt.Sprintf("Backfill failed after %d attempts: %s", task.Attempt+1, err)
		if serr := s.Runtime.SetStatus(ctx, &Status{State: StateFailed, Message: msg, Processed: task.Processed}); serr != nil {
			log.Error("failed to report backfill state", "err", serr)
		}
		return fmt.Errorf("backfill batch exhausted retries: %w", err)
	}

	if !sleepCtx(ctx, s.retryDelay(task.Attempt)) {
		return ctx.Err()
	}
	retry := *task
	retry.Attempt++
	if err := s.Queue.Enqueue(ctx, &retry); err != nil {
		return fmt.Errorf("re-enqueueing failed backfill batch: %w", err)
	}
	return nil
}

// sleeps for the given duration, returning false if the context was cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
