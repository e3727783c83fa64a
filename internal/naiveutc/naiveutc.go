// Package naiveutc enforces the single timezone boundary rule from spec §5
// and §9: aware UTC on the wire, naive UTC at rest. Everything that reaches
// the relational store goes through Now or Strip first.
package naiveutc

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Now returns the current instant with its timezone stripped, the only
// clock read components should use before a store write.
func Now() time.Time {
	return Strip(time.Now())
}

// Strip removes the timezone from t, producing a naive UTC value with the
// same wall-clock reading time.UTC() would give it. Calling Strip twice is
// a no-op.
func Strip(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}

// Time is a gorm/sql column wrapper that refuses to persist a zoned value.
// Scanning always produces a naive-UTC time.Time; Value returns an error
// whose message names the tz mismatch (it never panics) if the wrapped time
// carries a non-UTC location, which would indicate an aware value crossed
// the boundary uninspected.
type Time struct {
	time.Time
}

func Wrap(t time.Time) Time {
	return Time{Strip(t)}
}

func (t Time) Value() (driver.Value, error) {
	if t.Time.IsZero() {
		return nil, nil
	}
	if t.Time.Location() != time.UTC {
		return nil, fmt.Errorf("naiveutc: refusing to persist zoned time %v (tz mismatch)", t.Time)
	}
	return t.Time, nil
}

func (t *Time) Scan(value interface{}) error {
	if value == nil {
		t.Time = time.Time{}
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		t.Time = Strip(v)
		return nil
	default:
		return fmt.Errorf("naiveutc: cannot scan %T into Time", value)
	}
}
