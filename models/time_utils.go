package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FromEpochMillis converts milliseconds since the Unix epoch to a UTC time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToEpochMillis converts t to milliseconds since the Unix epoch.
func ToEpochMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// epochMillis reads an epoch-ms value as decoded with json.Decoder.UseNumber
// (or plain float64).
func epochMillis(v any) (time.Time, error) {
	switch n := v.(type) {
	case json.Number:
		ms, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("parsing epoch millis %q: %w", n, err)
			}
			ms = int64(f)
		}
		return FromEpochMillis(ms), nil
	case float64:
		return FromEpochMillis(int64(n)), nil
	case int64:
		return FromEpochMillis(n), nil
	case int:
		return FromEpochMillis(int64(n)), nil
	case string:
		ms, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing epoch millis %q: %w", n, err)
		}
		return FromEpochMillis(ms), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected epoch millis type %T", v)
	}
}
