package models

import "time"

// PostHandoffWindow is how long after a handoff a completed run still counts
// as a post-handoff iteration. Shared with any dashboard that recomputes the
// flag.
const PostHandoffWindow = 4 * time.Hour

// DayUTC truncates a timestamp to its UTC calendar day. All daily attribution
// uses UTC day boundaries; local time is never consulted.
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// InPostHandoffWindow reports whether completedAt falls inside the half-open
// window (handoffAt, handoffAt + PostHandoffWindow].
func InPostHandoffWindow(handoffAt, completedAt time.Time) bool {
	return completedAt.After(handoffAt) && !completedAt.After(handoffAt.Add(PostHandoffWindow))
}
