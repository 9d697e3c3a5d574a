package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/util"

	"github.com/stretchr/testify/assert"
)

const bareVerdict = `{"flagged": false, "score": 0.7, "categories": {"hate": true, "violence": false}, "categoryScores": {"hate": 0.4, "violence": 0.65}, "reason": ""}`

func TestExtractJSON(t *testing.T) {
	assert := assert.New(t)

	fenced := "```json\n" + bareVerdict + "\n```"
	untagged := "Here you go:\n```\n" + bareVerdict + "\n```\nthanks"

	assert.Equal(bareVerdict, ExtractJSON(bareVerdict))
	assert.Equal(bareVerdict, ExtractJSON("  "+bareVerdict+"\n"))
	assert.Equal(bareVerdict, ExtractJSON(fenced))
	assert.Equal(bareVerdict, ExtractJSON(untagged))
	assert.Equal(bareVerdict, ExtractJSON("```JSON\n"+bareVerdict+"\n```"))
	assert.Equal(bareVerdict, ExtractJSON("```jsonc\n"+bareVerdict+"\n```"))

	a, err := ParseGeminiVerdict(bareVerdict)
	assert.NoError(err)
	b, err := ParseGeminiVerdict(fenced)
	assert.NoError(err)
	assert.Equal(a, b)
	assert.Equal(a.Summarize(0.5), b.Summarize(0.5))
}

func TestGeminiSummarize(t *testing.T) {
	assert := assert.New(t)

	v, err := ParseGeminiVerdict(bareVerdict)
	assert.NoError(err)
	res := v.Summarize(0.5)
	assert.True(res.Flagged)
	assert.Equal(0.7, res.Score)
	assert.Equal("Content flagged for: hate, violence", res.Reason)

	v.Reason = "targets a group"
	assert.Equal("targets a group", v.Summarize(0.5).Reason)

	clean := &GeminiVerdict{Score: 1.7, Reason: "ignored"}
	res = clean.Summarize(0.5)
	assert.False(res.Flagged)
	assert.Equal(1.0, res.Score)
	assert.Equal("", res.Reason)
	assert.NotNil(res.Categories)
	assert.NotNil(res.CategoryScores)
}

func TestGeminiParseFailure(t *testing.T) {
	assert := assert.New(t)

	_, err := ParseGeminiVerdict("I can not help with that.")
	assert.ErrorIs(err, automod.ErrProvider)
	_, err = ParseGeminiVerdict("```json\n{\"flagged\": tru\n```")
	assert.ErrorIs(err, automod.ErrProvider)

	for _, reply := range []string{"null", "```json\nnull\n```", "[]", "\"ok\""} {
		v, err := ParseGeminiVerdict(reply)
		assert.ErrorIs(err, automod.ErrProvider, reply)
		assert.Nil(v)
	}
}

func TestGeminiModerate(t *testing.T) {
	assert := assert.New(t)

	reply := "```json\n" + bareVerdict + "\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "gm-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Contents) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "\"\"\"\nhello there\n\"\"\"") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": reply}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	gc := NewGeminiClient("gm-test", "gemini-test", 0.5)
	gc.Client = util.QuickHTTPClient()
	gc.Host = srv.URL

	res, err := gc.Moderate(context.Background(), "hello there")
	assert.NoError(err)
	assert.True(res.Flagged)
	assert.Equal("gemini", res.Provider)

	reply = "sorry, no"
	_, err = gc.Moderate(context.Background(), "hello there")
	assert.ErrorIs(err, automod.ErrProvider)

	gc.ApiKey = "wrong"
	_, err = gc.Moderate(context.Background(), "hello there")
	assert.ErrorIs(err, automod.ErrProvider)
}
