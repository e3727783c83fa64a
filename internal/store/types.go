package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// StringSlice persists as a comma-joined string column, matching the flat
// text-column style the rest of this model file uses for small lists (eans,
// normalized_tokens) rather than pulling in a JSON array type for them.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return errors.New("store: cannot scan non-string into StringSlice")
	}
	if raw == "" {
		*s = nil
		return nil
	}
	*s = strings.Split(raw, ",")
	return nil
}

// JSON is a generic gorm column wrapper that marshals T to/from a text
// column, used for the nested sub-documents (images, characteristics) on
// Product that don't warrant their own table.
type JSON[T any] struct {
	Val T
}

func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Val)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSON[T]) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("store: cannot scan non-string into JSON")
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &j.Val)
}
