package logger

import (
	"encoding/json"
	"strings"
)

// RedactBody replaces the value of every field whose name contains
// "password", at any nesting depth, with asterisks: strings keep their
// length, other value types get a fixed mask. A body that is not valid JSON
// is returned unchanged.
func RedactBody(body []byte) []byte {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}

	redacted, err := json.Marshal(redactValue(doc, false))
	if err != nil {
		return body
	}
	return redacted
}

func redactValue(v interface{}, sensitive bool) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for key, inner := range val {
			out[key] = redactValue(inner, sensitive || strings.Contains(strings.ToLower(key), "password"))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = redactValue(inner, sensitive)
		}
		return out
	case string:
		if sensitive {
			return strings.Repeat("*", len(val))
		}
		return val
	default:
		// numbers, booleans, nulls under a password key get a fixed mask
		if sensitive {
			return "********"
		}
		return val
	}
}
