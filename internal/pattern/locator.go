package pattern

import "time"

// Position marks where the vehicle is within a pattern. Indices are -1 when
// absent.
type Position struct {
	Next      int
	Previous  int
	Following int
}

// NoPosition is the position of a completed run.
var NoPosition = Position{Next: -1, Previous: -1, Following: -1}

// HasNext reports whether the run still has a stop ahead.
func (p Position) HasNext() bool {
	return p.Next >= 0
}

// Locate finds the next stop: the first entry departing strictly after now.
// Previous is the nearest First or Stop before it, Following the nearest
// Stop or Last after it.
func Locate(entries []Entry, now time.Time) Position {
	pos := NoPosition

	for i := range entries {
		if entries[i].Time().Sub(now) > 0 {
			pos.Next = i
			break
		}
	}
	if pos.Next < 0 {
		return pos
	}

	for i := pos.Next - 1; i >= 0; i-- {
		if entries[i].Kind.callsBefore() {
			pos.Previous = i
			break
		}
	}

	for i := pos.Next + 1; i < len(entries); i++ {
		if entries[i].Kind.callsAfter() {
			pos.Following = i
			break
		}
	}

	return pos
}
