package automod

import (
	"context"
	"fmt"
	"testing"

	"github.com/contentmod/contentmod/automod/docstore"

	"github.com/stretchr/testify/assert"
)

func testModerator(t *testing.T, prov Provider, notifier Notifier) (*Moderator, *docstore.MemStore) {
	config := TestConfigFixture()
	store := docstore.NewMemStore()
	mod := NewModerator(&config, prov, store, notifier, nil)
	mod.Actions.Now = FixedClock(testTime)
	return mod, store
}

func putRecord(t *testing.T, store *docstore.MemStore, path string, data map[string]any) *docstore.Record {
	ctx := context.Background()
	if err := store.Put(ctx, path, data); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestModeratorFlagged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	prov := &StaticProvider{Result: flaggedResult}
	notifier := &MemNotifier{}
	mod, store := testModerator(t, prov, notifier)

	rec := putRecord(t, store, "posts/one", map[string]any{"text": "something hateful"})
	out, err := mod.HandleCreate(ctx, rec)
	assert.NoError(err)
	assert.Equal(OutcomeFlagged, out.Action)
	assert.Equal("static", out.Result.Provider)
	assert.Equal([]string{"something hateful"}, prov.Calls())

	assert.Equal(1, len(notifier.Notifications))
	assert.Equal("posts/one", notifier.Notifications[0].Path)
	assert.Equal(OutcomeFlagged, notifier.Notifications[0].Action)

	// redelivery of the same event is a no-op
	rec, err = store.Get(ctx, "posts/one")
	assert.NoError(err)
	out, err = mod.HandleCreate(ctx, rec)
	assert.NoError(err)
	assert.Equal(OutcomeUnchanged, out.Action)
	assert.Equal(1, len(prov.Calls()))
	assert.Equal(1, len(notifier.Notifications))
}

func TestModeratorNoText(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	prov := &StaticProvider{Result: approvedResult}
	notifier := &MemNotifier{}
	mod, store := testModerator(t, prov, notifier)

	rec := putRecord(t, store, "posts/empty", map[string]any{"text": ""})
	out, err := mod.HandleCreate(ctx, rec)
	assert.NoError(err)
	assert.Equal(OutcomeSkipped, out.Action)
	assert.Equal(0, len(prov.Calls()))
	assert.Equal(0, len(notifier.Notifications))

	rec, err = store.Get(ctx, "posts/empty")
	assert.NoError(err)
	md := MetadataFromValue(rec.Data["moderation"])
	assert.Equal(StatusSkipped, md.Status)
	assert.Equal(ReasonNoText, md.Reason)
}

func TestModeratorProviderError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	prov := &StaticProvider{Err: fmt.Errorf("%w: upstream 503", ErrProvider)}
	notifier := &MemNotifier{}
	mod, store := testModerator(t, prov, notifier)

	rec := putRecord(t, store, "posts/two", map[string]any{"text": "hello"})
	_, err := mod.HandleCreate(ctx, rec)
	assert.ErrorIs(err, ErrProvider)
	assert.Equal(0, len(notifier.Notifications))

	rec, err = store.Get(ctx, "posts/two")
	assert.NoError(err)
	md := MetadataFromValue(rec.Data["moderation"])
	assert.Equal(StatusError, md.Status)
	assert.Contains(md.Error, "upstream 503")

	// errored records are not retried under the same version
	out, err := mod.HandleCreate(ctx, rec)
	assert.NoError(err)
	assert.Equal(OutcomeUnchanged, out.Action)
}

func TestModeratorDeleteAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	prov := &StaticProvider{Result: flaggedResult}
	notifier := &MemNotifier{}
	mod, store := testModerator(t, prov, notifier)
	mod.Config.Action = ActionDelete

	rec := putRecord(t, store, "posts/three", map[string]any{"text": "bad"})
	out, err := mod.HandleCreate(ctx, rec)
	assert.NoError(err)
	assert.Equal(OutcomeDeleted, out.Action)
	_, err = store.Get(ctx, "posts/three")
	assert.ErrorIs(err, docstore.ErrNotFound)
	assert.Equal(OutcomeDeleted, notifier.Notifications[0].Action)
}

// notifier which drops every notification, as if delivery had failed
type droppingNotifier struct {
	calls int
}

func (n *droppingNotifier) NotifyModerated(ctx context.Context, path string, res *Result, action string) {
	n.calls++
}

func TestModeratorNotifierDoesNotChangeRecords(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	prov := &StaticProvider{Result: flaggedResult}
	dropping := &droppingNotifier{}
	withEvents, storeA := testModerator(t, prov, dropping)
	withoutEvents, storeB := testModerator(t, prov, nil)

	recA := putRecord(t, storeA, "posts/x", map[string]any{"text": "same text"})
	recB := putRecord(t, storeB, "posts/x", map[string]any{"text": "same text"})

	outA, err := withEvents.HandleCreate(ctx, recA)
	assert.NoError(err)
	outB, err := withoutEvents.HandleCreate(ctx, recB)
	assert.NoError(err)
	assert.Equal(outA.Action, outB.Action)
	assert.Equal(1, dropping.calls)

	afterA, err := storeA.Get(ctx, "posts/x")
	assert.NoError(err)
	afterB, err := storeB.Get(ctx, "posts/x")
	assert.NoError(err)
	assert.Equal(afterB.Data, afterA.Data)
}
