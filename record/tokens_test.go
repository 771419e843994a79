// ABOUTME: Tests for the character-based token estimation heuristic.
// ABOUTME: Validates determinism, boundary rounding, and serialized estimation.

package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_Empty(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokens_RoundsUp(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}

func TestEstimateTokens_PureFunctionOfLength(t *testing.T) {
	// Same length, different content: same estimate.
	assert.Equal(t, EstimateTokens("hello world"), EstimateTokens("worlds hello"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestEstimateValueTokens_String(t *testing.T) {
	assert.Equal(t, EstimateTokens("abcd"), EstimateValueTokens("abcd"))
}

func TestEstimateValueTokens_Nil(t *testing.T) {
	assert.Equal(t, 0, EstimateValueTokens(nil))
}

func TestEstimateValueTokens_Structured(t *testing.T) {
	// {"query":"go"} serializes to 14 bytes -> 4 tokens.
	got := EstimateValueTokens(map[string]string{"query": "go"})
	assert.Equal(t, 4, got)
}

func TestEstimateValueTokens_Unserializable(t *testing.T) {
	// Channels cannot be marshaled; estimation must still return a value.
	got := EstimateValueTokens(make(chan int))
	assert.Greater(t, got, 0)
}
