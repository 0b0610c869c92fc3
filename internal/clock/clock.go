// Package clock provides the time source and UTC calendar-day helpers used by
// limit, trial and streak accounting.
package clock

import "time"

// Day is the length of one UTC calendar day.
const Day = 24 * time.Hour

// Clock is a source of the current instant.
type Clock interface {
	Now() time.Time
}

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a Clock that always returns the same instant. It is safe to move
// with Set/Advance between calls but not concurrently with them.
type Fixed struct {
	now time.Time
}

// NewFixed creates a fixed clock at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the fixed instant.
func (f *Fixed) Now() time.Time {
	return f.now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.now = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// StartOfUTCDay returns 00:00:00.000Z of the UTC day containing t.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfUTCDay returns 23:59:59.999Z of the UTC day containing t.
func EndOfUTCDay(t time.Time) time.Time {
	return StartOfUTCDay(t).Add(Day - time.Millisecond)
}

// Window is a half-open interval [From, To) covering one UTC calendar day.
// Windows of consecutive days share a boundary but never an instant.
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns the window of the UTC day containing t.
func DayWindow(t time.Time) Window {
	start := StartOfUTCDay(t)
	return Window{From: start, To: start.Add(Day)}
}

// PreviousDayWindow returns the window of the UTC day before the one containing t.
func PreviousDayWindow(t time.Time) Window {
	start := StartOfUTCDay(t).Add(-Day)
	return Window{From: start, To: start.Add(Day)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Last returns the final millisecond of the window (23:59:59.999Z).
func (w Window) Last() time.Time {
	return w.To.Add(-time.Millisecond)
}

// Date returns the calendar date of the window, truncated to midnight UTC.
func (w Window) Date() time.Time {
	return w.From
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	return StartOfUTCDay(a).Equal(StartOfUTCDay(b))
}

// AddDays returns t moved forward by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * Day)
}
