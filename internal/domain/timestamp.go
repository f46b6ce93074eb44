package domain

import (
	"fmt"
	"time"
)

// Timestamp is the structured wire form a document date field may arrive in,
// alongside native time.Time values and ISO-8601 strings. All three shapes
// coerce to the same canonical UTC time.Time.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// Time converts the wire timestamp to its canonical form
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// NewTimestamp converts a time.Time to the wire form
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// isoFormats are tried in order when coercing string date fields.
// Formats without a zone are parsed as UTC.
var isoFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceTime normalizes a document date value to UTC. It accepts the
// structured wire timestamp, a native time.Time, or an ISO-8601 string, by
// value or pointer. Nil and empty values yield (nil, nil): a missing date is
// absent, not an error. Coercion is idempotent.
func CoerceTime(v any) (*time.Time, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if d.IsZero() {
			return nil, nil
		}
		u := d.UTC()
		return &u, nil
	case *time.Time:
		if d == nil {
			return nil, nil
		}
		return CoerceTime(*d)
	case Timestamp:
		t := d.Time()
		return &t, nil
	case *Timestamp:
		if d == nil {
			return nil, nil
		}
		t := d.Time()
		return &t, nil
	case string:
		if d == "" {
			return nil, nil
		}
		for _, layout := range isoFormats {
			if t, err := time.ParseInLocation(layout, d, time.UTC); err == nil {
				u := t.UTC()
				return &u, nil
			}
		}
		return nil, fmt.Errorf("%w: unparseable date %q", ErrBadParamInput, d)
	default:
		return nil, fmt.Errorf("%w: unsupported date type %T", ErrBadParamInput, v)
	}
}
