// ABOUTME: Character-based token estimation used when exact counts are absent.
// ABOUTME: Deterministic heuristic: one token per four characters, rounded up.

package record

import (
	"encoding/json"
	"fmt"
)

// charsPerToken is the fixed estimation ratio. Good enough for usage
// dashboards, not for billing.
const charsPerToken = 4

// EstimateTokens estimates the token count of text as ceil(len/4).
// It is a pure function of the byte length: EstimateTokens("") == 0,
// EstimateTokens("abcd") == 1, EstimateTokens("abcde") == 2.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateValueTokens estimates the token cost of an arbitrary value by
// serializing it to JSON first. Values that cannot be serialized fall back
// to their fmt representation; estimation never fails.
func EstimateValueTokens(v any) int {
	if v == nil {
		return 0
	}
	if s, ok := v.(string); ok {
		return EstimateTokens(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return EstimateTokens(fmt.Sprint(v))
	}
	return EstimateTokens(string(b))
}
