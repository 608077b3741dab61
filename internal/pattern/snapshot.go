package pattern

import (
	"time"

	"github.com/nextstop/nextstop/internal/transit"
)

// Snapshot is a pattern built at one instant. It is replaced, never mutated.
type Snapshot struct {
	RunRef   string
	Run      *transit.Run
	Entries  []Entry
	Position Position
	BuiltAt  time.Time
}

// NewSnapshot builds and locates the pattern of runRef at now.
func NewSnapshot(resp *transit.Departures, runRef string, now time.Time) *Snapshot {
	entries := BuildFrom(resp, runRef)

	var run *transit.Run
	if r, ok := resp.Run(runRef); ok {
		run = r
	} else if len(entries) > 0 {
		run = entries[0].Run
	}

	return &Snapshot{
		RunRef:   runRef,
		Run:      run,
		Entries:  entries,
		Position: Locate(entries, now),
		BuiltAt:  now,
	}
}

// Rows lays the snapshot out.
func (s *Snapshot) Rows(opts LayoutOptions) []Row {
	return Layout(s.Entries, s.Position, opts)
}

// Completed reports whether every stop is in the past.
func (s *Snapshot) Completed() bool {
	return !s.Position.HasNext()
}

// NextEntry returns the next stop, if any.
func (s *Snapshot) NextEntry() (*Entry, bool) {
	if !s.Position.HasNext() {
		return nil, false
	}
	return &s.Entries[s.Position.Next], true
}
