package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/automod/docstore"
	"github.com/contentmod/contentmod/util"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func flagged() *automod.Result {
	return &automod.Result{
		Flagged:        true,
		Score:          0.8,
		Categories:     map[string]bool{"blocklist": true},
		CategoryScores: map[string]float64{"blocklist": 0.8},
		Provider:       "local",
		Reason:         "blocklist",
	}
}

func TestEmitterFlagged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	pub := NewMemPublisher()
	em := NewEmitter(pub, nil)
	em.Now = automod.FixedClock(testTime)

	em.NotifyModerated(ctx, "posts/abc", flagged(), automod.OutcomeHidden)
	evts := pub.Events()
	assert.Equal(2, len(evts))
	assert.Equal(TypeModerated, evts[0].Type)
	assert.Equal(TypeFlagged, evts[1].Type)
	assert.NotEqual(evts[0].ID, evts[1].ID)
	for _, evt := range evts {
		assert.Equal("posts/abc", evt.Subject)
		assert.Equal("posts/abc", evt.Data.DocumentPath)
		assert.Equal("hidden", evt.Data.Action)
		assert.True(evt.Time.Equal(testTime))
	}

	approved := flagged()
	approved.Flagged = false
	em.NotifyModerated(ctx, "posts/def", approved, automod.OutcomeApproved)
	assert.Equal(3, len(pub.Events()))
}

func TestEventJSON(t *testing.T) {
	assert := assert.New(t)

	evt := NewEvent(TypeFlagged, "posts/abc", flagged(), "flagged", testTime)
	b, err := json.Marshal(evt)
	assert.NoError(err)

	var raw map[string]any
	assert.NoError(json.Unmarshal(b, &raw))
	assert.Equal("contentmod.v1.flagged", raw["type"])
	assert.Equal("posts/abc", raw["subject"])
	data := raw["data"].(map[string]any)
	assert.Equal("posts/abc", data["documentPath"])
	assert.Equal(true, data["flagged"])
	assert.Equal("flagged", data["action"])
	assert.Contains(data, "categoryScores")

	msg, err := kafkaMessage(evt)
	assert.NoError(err)
	assert.Equal([]byte("posts/abc"), msg.Key)
	assert.JSONEq(string(b), string(msg.Value))
}

func TestEmitterSwallowsErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	pub := NewMemPublisher()
	pub.Fail = errors.New("broker down")
	em := NewEmitter(pub, nil)
	em.NotifyModerated(ctx, "posts/abc", flagged(), automod.OutcomeFlagged)
	assert.Equal(0, len(pub.Events()))
}

func TestWebhookPublisher(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var got []Event
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("ce-type") != evt.Type {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got = append(got, evt)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	wp := NewWebhookPublisher(srv.URL)
	wp.Client = util.QuickHTTPClient()
	assert.NoError(wp.Publish(ctx, NewEvent(TypeModerated, "posts/abc", flagged(), "flagged", testTime)))
	assert.Equal(1, len(got))
	assert.Equal("posts/abc", got[0].Data.DocumentPath)

	status = http.StatusForbidden
	assert.Error(wp.Publish(ctx, NewEvent(TypeModerated, "posts/abc", flagged(), "flagged", testTime)))
}

func TestMultiPublisher(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	good := NewMemPublisher()
	bad := NewMemPublisher()
	bad.Fail = errors.New("nope")
	mp := MultiPublisher{bad, good}

	err := mp.Publish(ctx, NewEvent(TypeModerated, "posts/abc", flagged(), "flagged", testTime))
	assert.Error(err)
	assert.Equal(1, len(good.Events()))
	assert.NoError(mp.Close())
}

// Publishing failures must not change what gets written to the store.
func TestEventsDoNotAffectRecords(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	run := func(notifier automod.Notifier) map[string]any {
		config := automod.TestConfigFixture()
		config.BlocklistWords = "hate"
		store := docstore.NewMemStore()
		assert.NoError(store.Put(ctx, "posts/abc", map[string]any{"text": "I HATE YOU YOU YOU YOU YOU"}))
		prov := &automod.StaticProvider{Result: flagged()}
		mod := automod.NewModerator(&config, prov, store, notifier, nil)
		mod.Actions.Now = automod.FixedClock(testTime)

		rec, err := store.Get(ctx, "posts/abc")
		assert.NoError(err)
		out, err := mod.HandleCreate(ctx, rec)
		assert.NoError(err)
		assert.Equal(automod.OutcomeFlagged, out.Action)

		after, err := store.Get(ctx, "posts/abc")
		assert.NoError(err)
		b, err := json.Marshal(after.Data)
		assert.NoError(err)
		var generic map[string]any
		assert.NoError(json.Unmarshal(b, &generic))
		return generic
	}

	failing := NewMemPublisher()
	failing.Fail = errors.New("broker down")

	assert.Equal(run(nil), run(NewEmitter(failing, nil)))
	assert.Equal(run(nil), run(NewEmitter(NewMemPublisher(), nil)))
}
