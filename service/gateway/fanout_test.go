package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvFrame(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatalf("conn %s: no frame within 1s", c.ID)
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("conn %s: unexpected frame %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanoutReachesEveryConn(t *testing.T) {
	fan := NewFanout(2, 16)
	defer fan.Close()

	conns := []*Conn{
		newConn("c1", nil, 8),
		newConn("c2", nil, 8),
		newConn("c3", nil, 8),
	}
	fan.Broadcast(conns, []byte(`{"type":"presence-changed"}`))

	for _, c := range conns {
		assert.JSONEq(t, `{"type":"presence-changed"}`, string(recvFrame(t, c)))
	}
}

func TestFanoutSkipsSlowClient(t *testing.T) {
	fan := NewFanout(1, 16)
	defer fan.Close()

	slow := newConn("slow", nil, 1)
	require.True(t, slow.Queue([]byte("x"))) // fill the queue

	open := newConn("open", nil, 8)
	fan.Broadcast([]*Conn{slow, open}, []byte("y"))

	// The open client still gets the frame even though the slow one's
	// queue was full.
	assert.Equal(t, []byte("y"), recvFrame(t, open))
}

func TestFanoutIgnoresEmptyWork(t *testing.T) {
	fan := NewFanout(1, 1)
	defer fan.Close()
	fan.Broadcast(nil, []byte("x"))
	fan.Broadcast([]*Conn{newConn("c1", nil, 1)}, nil)
}
