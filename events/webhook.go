package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/contentmod/contentmod/util"

	"github.com/carlmjohnson/versioninfo"
)

// Publishes events as JSON POST requests to a single URL.
type WebhookPublisher struct {
	Client *http.Client
	URL    string
}

var _ Publisher = (*WebhookPublisher)(nil)

func NewWebhookPublisher(url string) *WebhookPublisher {
	return &WebhookPublisher{
		Client: util.RobustHTTPClient(),
		URL:    url,
	}
}

func (wp *WebhookPublisher) Publish(ctx context.Context, evt *Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", wp.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "contentmod/"+versioninfo.Short())
	req.Header.Set("ce-type", evt.Type)
	req.Header.Set("ce-id", evt.ID)

	resp, err := wp.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook request failed statusCode=%d", resp.StatusCode)
	}
	return nil
}

func (wp *WebhookPublisher) Close() error {
	return nil
}
