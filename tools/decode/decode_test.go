package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinShape struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

func TestMapDecodesJSONNumbers(t *testing.T) {
	// json.Unmarshal into map[string]any yields float64 for numbers.
	got, err := Map[joinShape](map[string]any{"user_id": float64(7), "token": "abc"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "abc", got.Token)
}

func TestMapWeakTyping(t *testing.T) {
	got, err := Map[joinShape](map[string]any{"user_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
}

func TestMapNilInput(t *testing.T) {
	_, err := Map[joinShape](nil)
	assert.Error(t, err)
}

func TestMapIgnoresUnknownKeys(t *testing.T) {
	got, err := Map[joinShape](map[string]any{"token": "abc", "extra": true})
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Token)
	assert.Zero(t, got.UserID)
}
