package domain

import "time"

// Travel/setup margin applied to both sides of every service window when
// checking provider availability.
const (
	BufferBefore = 60 * time.Minute
	BufferAfter  = 60 * time.Minute
)

// Window is a concrete service slot plus its padding buffers. Availability
// reasoning always happens on the padded bounds; the service bounds are what
// the client and provider actually see.
type Window struct {
	ServiceStart time.Time
	ServiceEnd   time.Time
	PaddedStart  time.Time
	PaddedEnd    time.Time
}

// NewWindow builds the padded window for a service starting at start and
// running for duration.
func NewWindow(start time.Time, duration time.Duration) Window {
	end := start.Add(duration)
	return Window{
		ServiceStart: start,
		ServiceEnd:   end,
		PaddedStart:  start.Add(-BufferBefore),
		PaddedEnd:    end.Add(BufferAfter),
	}
}

// Overlaps reports whether two padded windows conflict. Intervals are
// half-open: touching endpoints do not conflict.
func Overlaps(a, b Window) bool {
	return a.PaddedStart.Before(b.PaddedEnd) && a.PaddedEnd.After(b.PaddedStart)
}
