package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentIDsReportsDuplicates(t *testing.T) {
	r := newRecentIDs(4)
	assert.False(t, r.Seen(1))
	assert.True(t, r.Seen(1))
	assert.False(t, r.Seen(2))
	assert.True(t, r.Seen(2))
}

func TestRecentIDsEvictsOldest(t *testing.T) {
	r := newRecentIDs(2)
	r.Seen(1)
	r.Seen(2)
	r.Seen(3) // pushes 1 out

	assert.False(t, r.Seen(1))
	assert.True(t, r.Seen(3))
}

func TestRecentIDsDefaultCapacity(t *testing.T) {
	r := newRecentIDs(0)
	for i := int64(1); i <= 100; i++ {
		assert.False(t, r.Seen(i))
	}
	assert.True(t, r.Seen(100))
}
