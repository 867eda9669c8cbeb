package domain

import "time"

// WindowStatus is the outcome of checking an instant against a TimeWindow.
type WindowStatus int

const (
	WindowOpen WindowStatus = iota
	WindowTooEarly
	WindowTooLate
)

// TimeWindow is a half-open interval [Start, End) during which a route accepts requests.
type TimeWindow struct {
	Start           time.Time
	End             time.Time
	TooEarlyMessage string
	TooLateMessage  string
}

// Check classifies now against the window. Start is inclusive, End is exclusive.
func (w TimeWindow) Check(now time.Time) WindowStatus {
	switch {
	case now.Before(w.Start):
		return WindowTooEarly
	case !now.Before(w.End):
		return WindowTooLate
	default:
		return WindowOpen
	}
}

// Evaluate returns nil inside the window and a Forbidden error carrying the
// route-specific message otherwise.
func (w TimeWindow) Evaluate(now time.Time) error {
	switch w.Check(now) {
	case WindowTooEarly:
		return NewForbidden(w.TooEarlyMessage, nil)
	case WindowTooLate:
		return NewForbidden(w.TooLateMessage, nil)
	default:
		return nil
	}
}
