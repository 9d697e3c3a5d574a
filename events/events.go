// Notifications about moderated records, published to an event bus.
//
// Publishing is a side channel: failures are logged and counted, and never affect the moderation
// outcome which has already been written to the document store.
package events

import (
	"context"
	"time"

	"github.com/contentmod/contentmod/automod"

	"github.com/google/uuid"
)

const (
	TypeModerated = "contentmod.v1.moderated"
	TypeFlagged   = "contentmod.v1.flagged"
)

type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Data    EventData `json:"data"`
}

type EventData struct {
	DocumentPath   string             `json:"documentPath"`
	Flagged        bool               `json:"flagged"`
	Score          float64            `json:"score"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"categoryScores"`
	Provider       string             `json:"provider"`
	Reason         string             `json:"reason"`
	Action         string             `json:"action"`
}

// Interface for an event bus.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
	Close() error
}

func NewEvent(typ, path string, res *automod.Result, action string, now time.Time) *Event {
	return &Event{
		ID:      uuid.New().String(),
		Type:    typ,
		Subject: path,
		Time:    now.UTC(),
		Data: EventData{
			DocumentPath:   path,
			Flagged:        res.Flagged,
			Score:          res.Score,
			Categories:     res.Categories,
			CategoryScores: res.CategoryScores,
			Provider:       res.Provider,
			Reason:         res.Reason,
			Action:         action,
		},
	}
}
