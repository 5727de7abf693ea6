package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CityOps/model"
	"CityOps/wire"
)

type fakeFeedAPI struct {
	mu    sync.Mutex
	rows  []model.ConversationSummary
	calls int
}

func (f *fakeFeedAPI) Summaries(_ context.Context) ([]model.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]model.ConversationSummary, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeFeedAPI) set(rows []model.ConversationSummary) {
	f.mu.Lock()
	f.rows = rows
	f.mu.Unlock()
}

func (f *fakeFeedAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func startFeed(t *testing.T, api *fakeFeedAPI) (*Feed, *eventBus) {
	t.Helper()
	bus := newEventBus()
	f := newFeed(api, bus, 1, time.Hour)
	f.Start(context.Background())
	t.Cleanup(f.Close)
	return f, bus
}

func TestFeedStartLoadsSummaries(t *testing.T) {
	api := &fakeFeedAPI{rows: []model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", LastBody: "salut", Unread: 3},
		{PeerID: 3, PeerName: "Bruno", LastBody: "ok"},
	}}
	f, _ := startFeed(t, api)

	assert.Equal(t, Ready, f.State())
	assert.Len(t, f.Conversations(), 2)
	assert.Equal(t, 3, f.TotalUnread())
}

func TestFeedIncomingMessageBumpsConversation(t *testing.T) {
	api := &fakeFeedAPI{rows: []model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", LastBody: "old", Unread: 0},
		{PeerID: 3, PeerName: "Bruno", LastBody: "ok"},
	}}
	f, bus := startFeed(t, api)

	bus.emitMessageNew(model.Message{ID: 9, SenderID: 3, RecipientID: 1, Body: "urgent", SentAt: sentAt(5)})

	rows := f.Conversations()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].PeerID, "touched conversation moves to the top")
	assert.Equal(t, "urgent", rows[0].LastBody)
	assert.Equal(t, 1, rows[0].Unread)
}

func TestFeedOwnEchoDoesNotRaiseUnread(t *testing.T) {
	api := &fakeFeedAPI{rows: []model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", LastBody: "old"},
	}}
	f, bus := startFeed(t, api)

	bus.emitMessageNew(model.Message{ID: 9, SenderID: 1, RecipientID: 2, Body: "sent by me", SentAt: sentAt(5)})

	rows := f.Conversations()
	require.Len(t, rows, 1)
	assert.Equal(t, "sent by me", rows[0].LastBody)
	assert.Equal(t, 0, rows[0].Unread)
}

func TestFeedUnknownPeerCreatesRow(t *testing.T) {
	api := &fakeFeedAPI{}
	f, bus := startFeed(t, api)

	bus.emitMessageNew(model.Message{ID: 9, SenderID: 4, RecipientID: 1, Body: "first contact", SentAt: sentAt(5)})

	rows := f.Conversations()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].PeerID)
	assert.Equal(t, 1, rows[0].Unread)
}

func TestFeedInvalidationTriggersSnapshotReplace(t *testing.T) {
	api := &fakeFeedAPI{rows: []model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", LastBody: "stale", Unread: 5},
	}}
	f, bus := startFeed(t, api)
	before := api.callCount()

	api.set([]model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", LastBody: "fresh", Unread: 0},
	})
	bus.emitConvTouched(wire.ConvTouchedPayload{PeerID: 2})

	assert.Greater(t, api.callCount(), before)
	rows := f.Conversations()
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].LastBody)
	assert.Equal(t, 0, f.TotalUnread())
}

func TestFeedClearUnreadIsLocal(t *testing.T) {
	api := &fakeFeedAPI{rows: []model.ConversationSummary{
		{PeerID: 2, PeerName: "Alice", Unread: 4},
		{PeerID: 3, PeerName: "Bruno", Unread: 1},
	}}
	f, _ := startFeed(t, api)
	before := api.callCount()

	f.ClearUnread(2)
	assert.Equal(t, 1, f.TotalUnread())
	assert.Equal(t, before, api.callCount(), "no network call for the local clear")
}

func TestFeedChangeCallback(t *testing.T) {
	api := &fakeFeedAPI{}
	bus := newEventBus()
	f := newFeed(api, bus, 1, time.Hour)
	var changes int
	f.OnChange(func() { changes++ })
	f.Start(context.Background())
	defer f.Close()

	require.Equal(t, 1, changes, "initial snapshot")
	bus.emitMessageNew(model.Message{ID: 9, SenderID: 2, RecipientID: 1, Body: "x", SentAt: sentAt(0)})
	assert.Equal(t, 2, changes)
}
