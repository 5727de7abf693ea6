package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBindEvictsPrior(t *testing.T) {
	reg := NewRegistry()
	first := newConn("c1", nil, 8)
	second := newConn("c2", nil, 8)

	reg.AddUnauth(first, time.Minute)
	evicted := reg.Bind(first, 7, time.Minute)
	require.Nil(t, evicted)

	reg.AddUnauth(second, time.Minute)
	evicted = reg.Bind(second, 7, time.Minute)
	require.Same(t, first, evicted)

	got, ok := reg.Get(7)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryStaleConnCannotUnbindReplacement(t *testing.T) {
	reg := NewRegistry()
	stale := newConn("c1", nil, 8)
	fresh := newConn("c2", nil, 8)

	reg.AddUnauth(stale, time.Minute)
	reg.Bind(stale, 7, time.Minute)
	reg.AddUnauth(fresh, time.Minute)
	reg.Bind(fresh, 7, time.Minute)

	// The evicted socket's read loop ends later and calls Unbind; it must
	// not take the fresh binding down with it.
	_, owned := reg.Unbind(stale)
	assert.False(t, owned)

	got, ok := reg.Get(7)
	require.True(t, ok)
	assert.Same(t, fresh, got)

	userID, owned := reg.Unbind(fresh)
	assert.True(t, owned)
	assert.Equal(t, int64(7), userID)
	_, ok = reg.Get(7)
	assert.False(t, ok)
}

func TestRegistryUnbindIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newConn("c1", nil, 8)
	reg.AddUnauth(c, time.Minute)
	reg.Bind(c, 7, time.Minute)

	_, owned := reg.Unbind(c)
	assert.True(t, owned)
	_, owned = reg.Unbind(c)
	assert.False(t, owned)
}

func TestRegistryExpired(t *testing.T) {
	reg := NewRegistry()
	joined := newConn("c1", nil, 8)
	idle := newConn("c2", nil, 8)

	reg.AddUnauth(joined, 10*time.Millisecond)
	reg.AddUnauth(idle, 10*time.Millisecond)
	reg.Bind(joined, 7, time.Minute)

	expired := reg.Expired(time.Now().Add(time.Second))
	require.Len(t, expired, 1)
	assert.Same(t, idle, expired[0])
}

func TestRegistryTouchRenews(t *testing.T) {
	reg := NewRegistry()
	c := newConn("c1", nil, 8)
	reg.AddUnauth(c, 10*time.Millisecond)
	reg.Bind(c, 7, 10*time.Millisecond)

	reg.Touch(c, time.Minute)
	assert.Empty(t, reg.Expired(time.Now().Add(time.Second)))
}

func TestRegistryTouchDoesNotRenewUnjoined(t *testing.T) {
	reg := NewRegistry()
	c := newConn("c1", nil, 8)
	reg.AddUnauth(c, 10*time.Millisecond)

	// A socket that answers pings but never joins keeps its grace deadline.
	reg.Touch(c, time.Hour)

	expired := reg.Expired(time.Now().Add(time.Second))
	require.Len(t, expired, 1)
	assert.Same(t, c, expired[0])
}

func TestRegistrySnapshotListsBoundOnly(t *testing.T) {
	reg := NewRegistry()
	bound := newConn("c1", nil, 8)
	pending := newConn("c2", nil, 8)

	reg.AddUnauth(bound, time.Minute)
	reg.AddUnauth(pending, time.Minute)
	reg.Bind(bound, 7, time.Minute)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Same(t, bound, snap[0])
	assert.Equal(t, []int64{7}, reg.Online())
}
