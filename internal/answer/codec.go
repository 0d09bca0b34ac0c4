package answer

import (
	"encoding/json"
)

// Encode serializes v for storage. Null encodes as ok=false so the caller
// can store SQL NULL. Lists are stored as JSON arrays, so elements keep
// embedded commas.
func Encode(v Value) (string, bool, error) {
	if IsNull(v) {
		return "", false, nil
	}
	var payload any
	switch x := v.(type) {
	case Text:
		payload = string(x)
	case Number:
		payload = float64(x)
	case Bool:
		payload = bool(x)
	case List:
		payload = []string(x)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Decode reverses Encode. Text that is not valid JSON (rows written before
// the structured encoding) is returned as Text verbatim.
func Decode(raw string) Value {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Text(raw)
	}
	return FromAny(v)
}
