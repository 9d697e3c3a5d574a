package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/util"

	"github.com/carlmjohnson/versioninfo"
)

const OpenAIModerationURL = "https://api.openai.com/v1/moderations"

type OpenAIClient struct {
	Client      *http.Client
	ApiKey      string
	Endpoint    string
	Sensitivity float64
	Logger      *slog.Logger
}

var _ automod.Provider = (*OpenAIClient)(nil)

// schema: https://platform.openai.com/docs/api-reference/moderations/object
type OpenAIModerationResp struct {
	Results []OpenAIModerationResp_Result `json:"results"`
}

type OpenAIModerationResp_Result struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

func NewOpenAIClient(apiKey string, sensitivity float64) *OpenAIClient {
	return &OpenAIClient{
		Client:      util.RobustHTTPClient(),
		ApiKey:      apiKey,
		Endpoint:    OpenAIModerationURL,
		Sensitivity: sensitivity,
		Logger:      providerLogger(automod.ProviderOpenAI),
	}
}

func (oc *OpenAIClient) Name() string {
	return automod.ProviderOpenAI
}

func (oc *OpenAIClient) Moderate(ctx context.Context, text string) (*automod.Result, error) {
	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", oc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+oc.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "contentmod/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		providerAPIDuration.WithLabelValues(oc.Name()).Observe(time.Since(start).Seconds())
	}()

	res, err := oc.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI request failed: %v", automod.ErrProvider, err)
	}
	defer res.Body.Close()

	providerAPICount.WithLabelValues(oc.Name(), fmt.Sprint(res.StatusCode)).Inc()
	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read OpenAI resp body: %v", automod.ErrProvider, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: OpenAI API error: %d - %s", automod.ErrProvider, res.StatusCode, string(respBytes))
	}

	var respObj OpenAIModerationResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse OpenAI resp JSON: %v", automod.ErrProvider, err)
	}
	if len(respObj.Results) == 0 {
		return nil, fmt.Errorf("%w: OpenAI response contained no results", automod.ErrProvider)
	}

	result := respObj.Summarize(oc.Sensitivity)
	oc.Logger.Debug("openai moderation response", "flagged", result.Flagged, "score", result.Score)
	return result, nil
}

// Maps the first moderation result in to a uniform result, applying the sensitivity threshold.
func (resp *OpenAIModerationResp) Summarize(sensitivity float64) *automod.Result {
	first := resp.Results[0]
	cats := first.Categories
	if cats == nil {
		cats = map[string]bool{}
	}
	scores := first.CategoryScores
	if scores == nil {
		scores = map[string]float64{}
	}

	over := violations(scores, sensitivity)
	return &automod.Result{
		Flagged:        first.Flagged || len(over) > 0,
		Score:          clampScore(maxScore(scores)),
		Categories:     cats,
		CategoryScores: scores,
		Provider:       automod.ProviderOpenAI,
		Reason:         flaggedReason(over),
	}
}
