package config

import (
	"strconv"
	"strings"
	"time"
)

// The helpers below are shared by every Configer. A blank or unparsable value
// always falls back to the default.

func intOrDefault(val string, defaultValue int) int {
	intVal, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func boolOrDefault(val string, defaultValue bool) bool {
	boolVal, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func durationOrDefault(val string, defaultValue time.Duration) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(val)
	if err == nil {
		return d
	}

	// Bare numbers are taken as seconds.
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
