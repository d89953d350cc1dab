package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultContestDuration applies when a duration carries an unrecognized unit suffix.
const DefaultContestDuration = time.Hour

// MaxContestDuration is the longest duration ParseDuration accepts.
const MaxContestDuration = 365 * 24 * time.Hour

// ParseDuration parses a contest duration such as "2h", "30m" or "1d".
// The last character is the unit; any unit other than h, m or d yields one hour.
// Durations longer than MaxContestDuration are rejected.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return 0, fmt.Errorf("%w: duration %q must be a number followed by a unit", ErrValidation, raw)
	}

	value, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q has no numeric value", ErrValidation, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: duration %q must be positive", ErrValidation, raw)
	}

	var unit time.Duration
	switch strings.ToLower(raw[len(raw)-1:]) {
	case "h":
		unit = time.Hour
	case "m":
		unit = time.Minute
	case "d":
		unit = 24 * time.Hour
	default:
		return DefaultContestDuration, nil
	}

	if int64(value) > int64(MaxContestDuration/unit) {
		return 0, fmt.Errorf("%w: duration %q exceeds %d days", ErrValidation, raw, int(MaxContestDuration/(24*time.Hour)))
	}
	return time.Duration(value) * unit, nil
}
