package repository

import (
	"encoding/json"
	"time"
)

// toJSON marshals a value for a JSONB column; nil and empty collections
// become SQL NULL
func toJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if string(data) == "null" || string(data) == "[]" || string(data) == "{}" {
		return nil
	}
	return data
}

// fromJSON unmarshals a JSONB column into dst, leaving dst untouched on NULL
func fromJSON(data []byte, dst any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, dst)
}

// nullTime maps the zero time to SQL NULL
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
