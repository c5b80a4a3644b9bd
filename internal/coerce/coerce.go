// Package coerce normalises raw repository values into the shapes the
// domain types expect.
package coerce

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Kind is the declared type of an entity field.
type Kind int

const (
	Text Kind = iota
	DateTime
	Date
	Numeric
)

// Fields maps a field name to its kind. Every entity declares one.
type Fields map[string]Kind

// Apply returns a copy of record in which text fields are never nil and
// integer timestamps are decoded. The input is not modified.
func Apply(record map[string]any, fields Fields) map[string]any {
	out := make(map[string]any, len(record)+len(fields))
	for k, v := range record {
		out[k] = v
	}

	for name, kind := range fields {
		value := out[name]
		switch kind {
		case Text:
			if value == nil {
				out[name] = ""
			}
		case DateTime:
			if ts, ok := Timestamp(value); ok {
				out[name] = ts
			}
		case Date:
			if ts, ok := Timestamp(value); ok {
				out[name] = truncateDate(ts)
			}
		}
	}

	return out
}

// Timestamp decodes an epoch-milliseconds integer such as 1467717221000.
// Only the first ten digits are used, as whole seconds. Values that are
// not integers are rejected.
func Timestamp(value any) (time.Time, bool) {
	var digits string
	switch v := value.(type) {
	case int:
		digits = strconv.FormatInt(int64(v), 10)
	case int32:
		digits = strconv.FormatInt(int64(v), 10)
	case int64:
		digits = strconv.FormatInt(v, 10)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		digits = strconv.FormatInt(n, 10)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return time.Time{}, false
		}
		digits = strconv.FormatInt(int64(v), 10)
	default:
		return time.Time{}, false
	}

	if len(digits) > 10 {
		digits = digits[:10]
	}
	seconds, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0).UTC(), true
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
