package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CityOps/model"
	"CityOps/wire"
)

type statusCall struct {
	userID int64
	status model.ActivityStatus
}

type fakeStatusStore struct {
	mu    sync.Mutex
	calls []statusCall
	err   error
}

func (f *fakeStatusStore) SetActivityStatus(_ context.Context, userID int64, status model.ActivityStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{userID: userID, status: status})
	return f.err
}

func (f *fakeStatusStore) recorded() []statusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	online  []int64
	offline []int64
}

func (f *fakeCache) Online(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userID)
	return nil
}

func (f *fakeCache) Offline(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, userID)
	return nil
}

func newTestTracker(store *fakeStatusStore, cache *fakeCache) (*Tracker, *Registry, *Fanout) {
	reg := NewRegistry()
	fan := NewFanout(1, 16)
	var c PresenceCache
	if cache != nil {
		c = cache
	}
	return NewTracker(reg, store, c, fan, time.Minute), reg, fan
}

func decodePresence(t *testing.T, data []byte) wire.PresencePayload {
	t.Helper()
	frame, err := wire.Parse(data)
	require.NoError(t, err)
	require.Equal(t, wire.FramePresence, frame.Type)
	var p wire.PresencePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &p))
	return p
}

func TestJoinAnnouncesOnlineToEveryone(t *testing.T) {
	store := &fakeStatusStore{}
	cache := &fakeCache{}
	tracker, reg, fan := newTestTracker(store, cache)
	defer fan.Close()

	watcher := newConn("c1", nil, 8)
	reg.AddUnauth(watcher, time.Minute)
	tracker.HandleJoin(context.Background(), watcher, 1)
	_ = recvFrame(t, watcher) // own online echo

	joiner := newConn("c2", nil, 8)
	reg.AddUnauth(joiner, time.Minute)
	tracker.HandleJoin(context.Background(), joiner, 2)

	p := decodePresence(t, recvFrame(t, watcher))
	assert.Equal(t, int64(2), p.UserID)
	assert.Equal(t, model.StatusOnline, p.Status)

	calls := store.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, statusCall{userID: 2, status: model.StatusOnline}, calls[1])
	assert.Equal(t, []int64{1, 2}, cache.online)
	assert.ElementsMatch(t, []int64{1, 2}, tracker.Who())
}

func TestJoinEvictsAndClosesPriorSocket(t *testing.T) {
	store := &fakeStatusStore{}
	tracker, reg, fan := newTestTracker(store, nil)
	defer fan.Close()

	old := newConn("c1", nil, 8)
	reg.AddUnauth(old, time.Minute)
	tracker.HandleJoin(context.Background(), old, 7)

	replacement := newConn("c2", nil, 8)
	reg.AddUnauth(replacement, time.Minute)
	tracker.HandleJoin(context.Background(), replacement, 7)

	select {
	case <-old.done:
	case <-time.After(time.Second):
		t.Fatal("evicted socket was not closed")
	}
	got, ok := reg.Get(7)
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestDisconnectOfStaleSocketIsSilent(t *testing.T) {
	store := &fakeStatusStore{}
	tracker, reg, fan := newTestTracker(store, nil)
	defer fan.Close()

	old := newConn("c1", nil, 8)
	reg.AddUnauth(old, time.Minute)
	tracker.HandleJoin(context.Background(), old, 7)

	replacement := newConn("c2", nil, 8)
	reg.AddUnauth(replacement, time.Minute)
	tracker.HandleJoin(context.Background(), replacement, 7)
	_ = recvFrame(t, replacement) // its own online broadcast

	// The evicted socket's teardown arrives late. The user stays online and
	// no offline frame goes out.
	tracker.HandleDisconnect(context.Background(), old)

	assertNoFrame(t, replacement)
	for _, call := range store.recorded() {
		assert.NotEqual(t, model.StatusOffline, call.status)
	}
}

func TestDisconnectOwnerBroadcastsOffline(t *testing.T) {
	store := &fakeStatusStore{}
	cache := &fakeCache{}
	tracker, reg, fan := newTestTracker(store, cache)
	defer fan.Close()

	watcher := newConn("c1", nil, 8)
	reg.AddUnauth(watcher, time.Minute)
	tracker.HandleJoin(context.Background(), watcher, 1)
	_ = recvFrame(t, watcher)

	leaver := newConn("c2", nil, 8)
	reg.AddUnauth(leaver, time.Minute)
	tracker.HandleJoin(context.Background(), leaver, 2)
	_ = recvFrame(t, watcher)

	tracker.HandleDisconnect(context.Background(), leaver)

	p := decodePresence(t, recvFrame(t, watcher))
	assert.Equal(t, int64(2), p.UserID)
	assert.Equal(t, model.StatusOffline, p.Status)
	assert.Equal(t, []int64{2}, cache.offline)
}

func TestStatusWriteFailureDoesNotBlockBroadcast(t *testing.T) {
	store := &fakeStatusStore{err: errors.New("pg down")}
	tracker, reg, fan := newTestTracker(store, nil)
	defer fan.Close()

	c := newConn("c1", nil, 8)
	reg.AddUnauth(c, time.Minute)
	tracker.HandleJoin(context.Background(), c, 7)

	p := decodePresence(t, recvFrame(t, c))
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, model.StatusOnline, p.Status)
}
