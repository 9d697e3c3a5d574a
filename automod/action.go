package automod

import (
	"context"
	"fmt"
	"time"

	"github.com/contentmod/contentmod/automod/docstore"
)

// Outcomes returned by the action engine and the real-time pipeline
const (
	OutcomeFlagged   = "flagged"
	OutcomeApproved  = "approved"
	OutcomeHidden    = "hidden"
	OutcomeDeleted   = "deleted"
	OutcomeSkipped   = "skipped"
	OutcomeUnchanged = "unchanged"
)

// Name of the marker field set on records hidden by the "hide" policy
const HiddenField = "hidden"

// Reason recorded when a record has no usable text
const ReasonNoText = "No text content found"

type ActionResult struct {
	Action string `json:"action"`
}

// Applies moderation results to records in the store. This is the only component which mutates records.
type Actioner struct {
	Store  docstore.Store
	Config *Config
	// clock for metadata timestamps; defaults to time.Now
	Now func() time.Time
}

func NewActioner(store docstore.Store, config *Config) *Actioner {
	return &Actioner{
		Store:  store,
		Config: config,
		Now:    time.Now,
	}
}

func (a *Actioner) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

// Computes the metadata which will be written for a result.
func (a *Actioner) NewMetadata(res *Result) *Metadata {
	status := StatusApproved
	if res.Flagged {
		status = StatusFlagged
	}
	return &Metadata{
		Processed:      true,
		Version:        CurrentVersion,
		Status:         status,
		Flagged:        res.Flagged,
		Score:          res.Score,
		Provider:       res.Provider,
		Reason:         res.Reason,
		Categories:     res.Categories,
		CategoryScores: res.CategoryScores,
		Timestamp:      a.now(),
	}
}

// Applies the configured action policy for a moderation result.
//
// Re-applying the same result is idempotent, except for the "delete" policy: a deleted record has no
// metadata left for the idempotency guard to find.
func (a *Actioner) ApplyAction(ctx context.Context, path string, res *Result) (*ActionResult, error) {
	md := a.NewMetadata(res)
	fields := map[string]any{
		a.Config.ModerationField: md.Fields(),
	}

	switch a.Config.Action {
	case ActionDelete:
		if res.Flagged {
			if err := a.Store.Delete(ctx, path); err != nil {
				return nil, fmt.Errorf("deleting flagged record: %w", err)
			}
			return &ActionResult{Action: OutcomeDeleted}, nil
		}
		if err := a.Store.Merge(ctx, path, fields); err != nil {
			return nil, fmt.Errorf("writing moderation metadata: %w", err)
		}
		return &ActionResult{Action: OutcomeApproved}, nil
	case ActionHide:
		if res.Flagged {
			fields[HiddenField] = true
		}
		if err := a.Store.Merge(ctx, path, fields); err != nil {
			return nil, fmt.Errorf("writing moderation metadata: %w", err)
		}
		if res.Flagged {
			return &ActionResult{Action: OutcomeHidden}, nil
		}
		return &ActionResult{Action: OutcomeApproved}, nil
	default:
		if err := a.Store.Merge(ctx, path, fields); err != nil {
			return nil, fmt.Errorf("writing moderation metadata: %w", err)
		}
		if res.Flagged {
			return &ActionResult{Action: OutcomeFlagged}, nil
		}
		return &ActionResult{Action: OutcomeApproved}, nil
	}
}

// Marks a record as skipped (eg, no text to moderate).
func (a *Actioner) RecordSkipped(ctx context.Context, path, reason string) error {
	md := &Metadata{
		Processed: true,
		Version:   CurrentVersion,
		Status:    StatusSkipped,
		Reason:    reason,
		Timestamp: a.now(),
	}
	return a.Store.Merge(ctx, path, map[string]any{a.Config.ModerationField: md.Fields()})
}

// Marks a record as failed. The record is not retried until CurrentVersion changes.
func (a *Actioner) RecordError(ctx context.Context, path string, cause error) error {
	md := &Metadata{
		Processed: true,
		Version:   CurrentVersion,
		Status:    StatusError,
		Error:     cause.Error(),
		Timestamp: a.now(),
	}
	return a.Store.Merge(ctx, path, map[string]any{a.Config.ModerationField: md.Fields()})
}
