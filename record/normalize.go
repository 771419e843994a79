// ABOUTME: Normalization of arbitrary tool payloads into plain JSON-safe data.
// ABOUTME: Guarantees later serialization of a buffered record cannot fail.

package record

import (
	"encoding/json"
	"fmt"
)

// Normalize converts v into plain structured data: maps, slices, strings,
// numbers, and booleans. Nested framework objects are flattened through a
// JSON round trip so that a buffered record can always be serialized later.
// Values that cannot be serialized degrade to their string representation;
// Normalize never returns an error.
func Normalize(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return v
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return string(b)
	}
	return out
}
