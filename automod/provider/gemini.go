package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/util"

	"github.com/carlmjohnson/versioninfo"
)

const GeminiAPIHost = "https://generativelanguage.googleapis.com"

const DefaultGeminiModel = "gemini-1.5-flash"

// Instruction sent to the generative model. "{TEXT}" is replaced with the text under review.
const geminiPrompt = `You are a content moderation system. Analyze the following text and return a JSON object with your assessment.

Evaluate for these categories:
- hate: Content expressing hatred toward groups based on identity
- harassment: Content that harasses or bullies individuals
- violence: Content promoting or depicting violence
- sexual: Explicit sexual content
- self_harm: Content promoting self-harm
- dangerous: Content promoting dangerous activities

Return ONLY a valid JSON object in this exact format:
{
  "flagged": boolean,
  "score": number between 0.0 and 1.0 representing overall toxicity,
  "categories": {
    "hate": boolean,
    "harassment": boolean,
    "violence": boolean,
    "sexual": boolean,
    "self_harm": boolean,
    "dangerous": boolean
  },
  "categoryScores": {
    "hate": number,
    "harassment": number,
    "violence": number,
    "sexual": number,
    "self_harm": number,
    "dangerous": number
  },
  "reason": "brief explanation if flagged, empty string if not"
}

Text to analyze:
"""
{TEXT}
"""`

// matches a fenced code block, optionally tagged as json
var codeFenceRegex = regexp.MustCompile("```(?:[a-zA-Z]*)?\\s*([\\s\\S]*?)```")

type GeminiClient struct {
	Client      *http.Client
	ApiKey      string
	Host        string
	Model       string
	Sensitivity float64
	Logger      *slog.Logger
}

var _ automod.Provider = (*GeminiClient)(nil)

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// schema: https://ai.google.dev/api/generate-content#generatecontentresponse
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Assessment object the model is instructed to reply with
type GeminiVerdict struct {
	Flagged        bool               `json:"flagged"`
	Score          float64            `json:"score"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"categoryScores"`
	Reason         string             `json:"reason"`
}

func NewGeminiClient(apiKey, model string, sensitivity float64) *GeminiClient {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{
		Client:      util.RobustHTTPClient(),
		ApiKey:      apiKey,
		Host:        GeminiAPIHost,
		Model:       model,
		Sensitivity: sensitivity,
		Logger:      providerLogger(automod.ProviderGemini),
	}
}

func (gc *GeminiClient) Name() string {
	return automod.ProviderGemini
}

func (gc *GeminiClient) Moderate(ctx context.Context, text string) (*automod.Result, error) {
	reply, err := gc.generate(ctx, strings.Replace(geminiPrompt, "{TEXT}", text, 1))
	if err != nil {
		return nil, err
	}
	verdict, err := ParseGeminiVerdict(reply)
	if err != nil {
		gc.Logger.Warn("unparseable gemini reply", "err", err, "reply", reply)
		return nil, err
	}
	return verdict.Summarize(gc.Sensitivity), nil
}

func (gc *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimSuffix(gc.Host, "/"), gc.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", gc.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "contentmod/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		providerAPIDuration.WithLabelValues(gc.Name()).Observe(time.Since(start).Seconds())
	}()

	res, err := gc.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: Gemini request failed: %v", automod.ErrProvider, err)
	}
	defer res.Body.Close()

	providerAPICount.WithLabelValues(gc.Name(), fmt.Sprint(res.StatusCode)).Inc()
	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read Gemini resp body: %v", automod.ErrProvider, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("%w: Gemini API error: %d - %s", automod.ErrProvider, res.StatusCode, string(respBytes))
	}

	var respObj geminiResponse
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return "", fmt.Errorf("%w: failed to parse Gemini resp JSON: %v", automod.ErrProvider, err)
	}
	var sb strings.Builder
	for _, cand := range respObj.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		// only the first candidate is considered
		break
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: Gemini response contained no text", automod.ErrProvider)
	}
	return sb.String(), nil
}

// Extracts the JSON object from a model reply, which may or may not be wrapped in a fenced code block.
func ExtractJSON(reply string) string {
	if m := codeFenceRegex.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

func ParseGeminiVerdict(reply string) (*GeminiVerdict, error) {
	var v *GeminiVerdict
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &v); err != nil {
		return nil, fmt.Errorf("%w: Gemini moderation error: %v", automod.ErrProvider, err)
	}
	// a literal null decodes without error
	if v == nil {
		return nil, fmt.Errorf("%w: Gemini moderation error: reply is not a JSON object", automod.ErrProvider)
	}
	return v, nil
}

// Applies the sensitivity threshold to a parsed verdict.
func (v *GeminiVerdict) Summarize(sensitivity float64) *automod.Result {
	cats := v.Categories
	if cats == nil {
		cats = map[string]bool{}
	}
	scores := v.CategoryScores
	if scores == nil {
		scores = map[string]float64{}
	}

	over := violations(scores, sensitivity)
	flagged := v.Flagged || len(over) > 0

	reason := ""
	if flagged {
		reason = v.Reason
		if reason == "" {
			reason = flaggedReason(unionCategories(cats, over))
		}
	}

	return &automod.Result{
		Flagged:        flagged,
		Score:          clampScore(v.Score),
		Categories:     cats,
		CategoryScores: scores,
		Provider:       automod.ProviderGemini,
		Reason:         reason,
	}
}

func unionCategories(cats map[string]bool, over []string) []string {
	seen := make(map[string]bool)
	for cat, marked := range cats {
		if marked {
			seen[cat] = true
		}
	}
	for _, cat := range over {
		seen[cat] = true
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}
