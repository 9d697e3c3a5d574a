package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/util"

	"github.com/stretchr/testify/assert"
)

func testOpenAIClient(srv *httptest.Server, sensitivity float64) *OpenAIClient {
	oc := NewOpenAIClient("sk-test", sensitivity)
	oc.Client = util.QuickHTTPClient()
	oc.Endpoint = srv.URL + "/v1/moderations"
	return oc
}

func TestOpenAIModerate(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["input"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"modr-1","results":[{"flagged":false,"categories":{"hate":false,"violence":false,"harassment":false},"category_scores":{"hate":0.61,"violence":0.02,"harassment":0.55}}]}`))
	}))
	defer srv.Close()

	oc := testOpenAIClient(srv, 0.5)
	res, err := oc.Moderate(context.Background(), "some text")
	assert.NoError(err)
	// native flag is false, but scores are over threshold
	assert.True(res.Flagged)
	assert.Equal(0.61, res.Score)
	assert.Equal("Content flagged for: harassment, hate", res.Reason)
	assert.Equal("openai", res.Provider)

	oc.Sensitivity = 0.9
	res, err = oc.Moderate(context.Background(), "some text")
	assert.NoError(err)
	assert.False(res.Flagged)
	assert.Equal("", res.Reason)
}

func TestOpenAIErrors(t *testing.T) {
	assert := assert.New(t)

	status := http.StatusBadRequest
	payload := `{"error":"bad"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	defer srv.Close()
	oc := testOpenAIClient(srv, 0.5)

	_, err := oc.Moderate(context.Background(), "text")
	assert.ErrorIs(err, automod.ErrProvider)

	status = http.StatusOK
	payload = `{"results":[]}`
	_, err = oc.Moderate(context.Background(), "text")
	assert.ErrorIs(err, automod.ErrProvider)

	payload = `not json`
	_, err = oc.Moderate(context.Background(), "text")
	assert.ErrorIs(err, automod.ErrProvider)

	srv.Close()
	_, err = oc.Moderate(context.Background(), "text")
	assert.ErrorIs(err, automod.ErrProvider)
}

func TestOpenAISummarizeEmptyScores(t *testing.T) {
	assert := assert.New(t)

	resp := OpenAIModerationResp{Results: []OpenAIModerationResp_Result{{Flagged: true}}}
	res := resp.Summarize(0.5)
	assert.True(res.Flagged)
	assert.Equal(0.0, res.Score)
	assert.Equal("", res.Reason)
}
