package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses value as a duration, using defaultValue when
// value is blank. Blank on blank is an error so a misconfigured default
// fails at startup instead of silently becoming zero.
func DurationOrDefault(value, defaultValue string) (time.Duration, error) {
	for _, candidate := range []string{value, defaultValue} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		d, err := time.ParseDuration(candidate)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
		}
		return d, nil
	}
	return 0, fmt.Errorf("duration value is empty")
}

// MustDuration is DurationOrDefault for values already validated at load time.
// It panics on malformed input and belongs in wiring code only.
func MustDuration(value string, defaultValue string) time.Duration {
	d, err := DurationOrDefault(value, defaultValue)
	if err != nil {
		panic(err)
	}
	return d
}
