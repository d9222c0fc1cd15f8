package timeparser

import (
	"fmt"
	"time"
)

// ParseCapturedAt parses a device capture timestamp. Timestamps without a
// zone are taken as UTC.
func ParseCapturedAt(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999", // ISO without zone
		"2006-01-02 15:04:05",
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.ParseInLocation(format, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// ParseTimeOfDay parses HH:MM:SS or HH:MM and returns the offset from midnight
func ParseTimeOfDay(value string) (time.Duration, error) {
	var lastErr error
	for _, format := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(format, value)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to parse time of day '%s': %w", value, lastErr)
}

// NormalizeTimeOfDay rewrites HH:MM or HH:MM:SS as HH:MM:SS
func NormalizeTimeOfDay(value string) (string, error) {
	d, err := ParseTimeOfDay(value)
	if err != nil {
		return "", err
	}
	return time.Time{}.Add(d).Format("15:04:05"), nil
}

// IsWithin reports whether earlier lies strictly less than window before now
func IsWithin(earlier, now time.Time, window time.Duration) bool {
	return now.Sub(earlier) < window
}
