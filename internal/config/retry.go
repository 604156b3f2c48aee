package config

import "strings"

// RetryBackoffMode selects how the delay between publish retries grows:
// fixed keeps the initial delay, linear adds it per attempt, exponential
// doubles it. Every mode is capped by the configured max delay.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var backoffModes = map[string]RetryBackoffMode{
	string(RetryBackoffFixed):       RetryBackoffFixed,
	string(RetryBackoffLinear):      RetryBackoffLinear,
	string(RetryBackoffExponential): RetryBackoffExponential,
}

// Valid reports whether m names a known mode.
func (m RetryBackoffMode) Valid() bool {
	_, ok := backoffModes[string(m)]
	return ok
}

// NormalizeRetryBackoff maps a config value onto a mode ignoring case and
// surrounding space. Unknown values yield "", which validation rejects.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return backoffModes[strings.ToLower(strings.TrimSpace(raw))]
}
