package core

import "time"

// WindowResult is the outcome of a sliding-window rate limit check.
type WindowResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// EvalWindow turns a recorded sliding-window count into a limit decision.
// count includes the request being checked; oldest is the earliest event
// still inside the window (zero when the window is empty). ResetAt is the
// time the oldest counted event exits the window.
func EvalWindow(count int64, oldest, now time.Time, limit int64, window time.Duration) WindowResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(window)
	}

	return WindowResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// RetryAfter is how long a blocked caller should wait before the window
// admits another request. Zero when the result is allowed.
func (r WindowResult) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
