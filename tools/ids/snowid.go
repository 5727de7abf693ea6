// Package ids hands out snowflake-style int64 ids: 41 bits of milliseconds
// since the project epoch, 10 bits of node, 12 bits of sequence.
package ids

import (
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var projectEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type generator struct {
	mu     sync.Mutex
	nodeID int64
	seq    int64
	lastMS int64
}

var defaultGen = &generator{nodeID: hostNode()}

// hostNode derives a default node id from the hostname so two unconfigured
// instances do not start out colliding.
func hostNode() int64 {
	host, err := os.Hostname()
	if err != nil {
		return 1
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return int64(h.Sum32()) & maxNode
}

// Generate returns a new id. Ids from one process are strictly increasing.
func Generate() int64 { return defaultGen.next() }

func GenerateString() string { return strconv.FormatInt(Generate(), 10) }

// SetNodeID overrides the hostname-derived node id; call once from main().
// Values outside 0..1023 are ignored and the derived default stays.
func SetNodeID(nodeID int64) {
	if nodeID < 0 || nodeID > maxNode {
		return
	}
	defaultGen.mu.Lock()
	defaultGen.nodeID = nodeID
	defaultGen.mu.Unlock()
}

func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastMS {
		// clock went backwards, keep stamping the last tick
		now = g.lastMS
	}
	if now == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.lastMS {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	return (now-projectEpoch)<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
}
