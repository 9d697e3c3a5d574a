package automod

import (
	"context"
	"encoding/json"
	"time"
)

// Version stamp written in to all moderation metadata. Records processed under a different version are
// treated as unprocessed.
const CurrentVersion = "0.1.0"

type Status string

const (
	StatusFlagged  Status = "flagged"
	StatusApproved Status = "approved"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

// Canonical output of every moderation provider, regardless of the backend's native response schema.
type Result struct {
	Flagged        bool               `json:"flagged"`
	Score          float64            `json:"score"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"categoryScores"`
	Provider       string             `json:"provider"`
	Reason         string             `json:"reason"`
}

// Interface for a scoring backend. Credentials, word lists, and the sensitivity threshold are bound when
// the provider is constructed.
type Provider interface {
	Name() string
	Moderate(ctx context.Context, text string) (*Result, error)
}

// Metadata stored on a record under the configured moderation field.
type Metadata struct {
	Processed      bool               `json:"processed"`
	Version        string             `json:"version"`
	Status         Status             `json:"status"`
	Flagged        bool               `json:"flagged"`
	Score          float64            `json:"score"`
	Provider       string             `json:"provider,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	Categories     map[string]bool    `json:"categories,omitempty"`
	CategoryScores map[string]float64 `json:"categoryScores,omitempty"`
	Error          string             `json:"error,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Fields returns the metadata as a generic JSON object, which is the form written to the store.
func (md *Metadata) Fields() map[string]any {
	raw, err := json.Marshal(md)
	if err != nil {
		// all field types are plain JSON values
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

// Decodes whatever the store returned for the moderation field. Returns nil if the value is missing or
// can not be interpreted as metadata.
func MetadataFromValue(v any) *Metadata {
	switch md := v.(type) {
	case nil:
		return nil
	case *Metadata:
		return md
	case Metadata:
		return &md
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil
	}
	return &md
}

// ShouldSkip reports whether a record has already been processed by the current logic version.
func ShouldSkip(md *Metadata) bool {
	if md == nil {
		return false
	}
	return md.Processed && md.Version == CurrentVersion
}

// Helper which applies the idempotency guard to raw record fields. Only the processed and version keys
// are read; other metadata fields may have been written by other producers in any shape.
func ShouldSkipRecord(data map[string]any, moderationField string) bool {
	switch md := data[moderationField].(type) {
	case map[string]any:
		processed, _ := md["processed"].(bool)
		version, _ := md["version"].(string)
		return processed && version == CurrentVersion
	case nil:
		return false
	}
	raw, err := json.Marshal(data[moderationField])
	if err != nil {
		return false
	}
	var guard struct {
		Processed bool   `json:"processed"`
		Version   string `json:"version"`
	}
	if err := json.Unmarshal(raw, &guard); err != nil {
		return false
	}
	return guard.Processed && guard.Version == CurrentVersion
}

// Extracts the text to moderate. Returns false if the field is missing, not a string, or empty.
func RecordText(data map[string]any, textField string) (string, bool) {
	text, ok := data[textField].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}
