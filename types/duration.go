package types

import (
	"strconv"
	"strings"
	"time"
)

// Duration decodes from "5s"-style strings or integer nanoseconds, so
// loosely typed sub-configs can carry durations through JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		return nil
	}

	if unquoted, err := strconv.Unquote(raw); err == nil {
		parsed, err := time.ParseDuration(unquoted)
		if err != nil {
			return Errorf(ErrConfigParseFailed, "duration %q: %v", unquoted, err)
		}
		*d = Duration(parsed)
		return nil
	}

	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Errorf(ErrConfigParseFailed, "duration %s", raw)
	}
	*d = Duration(ns)
	return nil
}
