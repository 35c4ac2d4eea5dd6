package models

import "time"

// UsageCounter is the per-identity daily request window.
// The zero value is an absent counter.
type UsageCounter struct {
	Identity      string    `json:"identity" db:"identity"`
	RequestCount  int       `json:"request_count" db:"request_count"`
	WindowResetAt time.Time `json:"window_reset_at" db:"window_reset_at"`
}

type UsageDecision struct {
	Admitted bool
	Count    int
	Limit    int
	ResetAt  time.Time
}

// NextMidnight returns 00:00 of the day after now in loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Admit applies one request at now against limit and updates c in place
// when the request is admitted.
func (c *UsageCounter) Admit(limit int, now time.Time, loc *time.Location) UsageDecision {
	if c.WindowResetAt.IsZero() || !now.Before(c.WindowResetAt) {
		c.RequestCount = 1
		c.WindowResetAt = NextMidnight(now, loc)
		return UsageDecision{Admitted: true, Count: 1, Limit: limit, ResetAt: c.WindowResetAt}
	}

	if c.RequestCount >= limit {
		return UsageDecision{Admitted: false, Count: c.RequestCount, Limit: limit, ResetAt: c.WindowResetAt}
	}

	c.RequestCount++
	return UsageDecision{Admitted: true, Count: c.RequestCount, Limit: limit, ResetAt: c.WindowResetAt}
}
