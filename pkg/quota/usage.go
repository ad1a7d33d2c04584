// Package quota tracks the daily external-call budget for the carrier API.
// Every remote call, successful or not, consumes quota. The counter is held
// in memory as the authoritative lower bound and mirrored to Redis so other
// processes sharing the same carrier key are respected.
package quota

import (
	"time"
)

// Redis hash key prefix for daily usage records. One hash per calendar day.
const redisKeyPrefix = "tracker:quota:usage:"

// Hash fields within a daily usage record.
const (
	fieldCalls     = "calls"
	fieldSucceeded = "succeeded"
	fieldFailed    = "failed"
)

// dayKeyFormat is the calendar-day key layout (UTC).
const dayKeyFormat = "2006-01-02"

// Usage is the call counter for a single calendar day.
// Counts are monotonically non-decreasing within a day and never deleted.
type Usage struct {
	// Day is the calendar day key (UTC, YYYY-MM-DD).
	Day string `json:"day"`

	// Calls is the total number of remote calls made, success or failure.
	Calls int `json:"calls"`

	// Succeeded is the number of calls that returned a usable result.
	Succeeded int `json:"succeeded"`

	// Failed is the number of calls that did not.
	Failed int `json:"failed"`
}

// Remaining returns the calls left under the given daily limit, floored at 0.
func (u *Usage) Remaining(limit int) int {
	remaining := limit - u.Calls
	if remaining < 0 {
		return 0
	}
	return remaining
}

// dayKey returns the usage key for the given instant.
func dayKey(t time.Time) string {
	return t.UTC().Format(dayKeyFormat)
}
