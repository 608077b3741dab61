package pattern

import (
	"sort"
	"time"

	"github.com/nextstop/nextstop/internal/transit"
)

// InterchangeStopID is Flinders Street. Upstream attaches unreliable skipped
// stops to departures from it, so they are never shown.
const InterchangeStopID = 1071

// Entry is one row of a stopping pattern.
type Entry struct {
	// Departure is the stop visit. Skipped entries carry their parent's.
	Departure transit.Departure
	Run       *transit.Run
	Stop      transit.Stop
	Kind      StopKind
}

// Time returns the estimated departure time if known, else the scheduled one.
func (e *Entry) Time() time.Time {
	return e.Departure.EstimatedOrScheduled()
}

// StopLookup resolves a stop id.
type StopLookup func(id int) (transit.Stop, bool)

// RunLookup resolves a run ref.
type RunLookup func(ref string) (*transit.Run, bool)

// Build turns the departures of one run into pattern entries. Departures are
// ordered by sequence and de-duplicated by it (first wins), classified by
// position, and followed by their skipped stops. A departure whose stop
// cannot be resolved is dropped on its own.
func Build(departures []transit.Departure, stops StopLookup, runs RunLookup) []Entry {
	ordered := orderBySequence(departures)
	n := len(ordered)
	entries := make([]Entry, 0, n)

	for i := range ordered {
		dep := ordered[i]

		stop, ok := stops(dep.StopID)
		if !ok {
			continue
		}

		var run *transit.Run
		if runs != nil {
			run, _ = runs(dep.RunRef)
		}

		entries = append(entries, Entry{
			Departure: dep,
			Run:       run,
			Stop:      stop,
			Kind:      positionKind(i, n),
		})

		if dep.StopID == InterchangeStopID {
			continue
		}
		entries = appendSkipped(entries, dep, run, stops)
	}

	return entries
}

// BuildFrom builds the pattern of runRef from an upstream response. An empty
// runRef uses every departure.
func BuildFrom(resp *transit.Departures, runRef string) []Entry {
	departures := resp.Departures
	if runRef != "" {
		departures = make([]transit.Departure, 0, len(resp.Departures))
		for i := range resp.Departures {
			if resp.Departures[i].RunRef == runRef {
				departures = append(departures, resp.Departures[i])
			}
		}
	}

	return Build(departures,
		func(id int) (transit.Stop, bool) {
			s, ok := resp.Stops[id]
			return s, ok
		},
		resp.Run,
	)
}

func positionKind(i, n int) StopKind {
	switch i {
	case 0:
		return KindFirst
	case n - 1:
		return KindLast
	default:
		return KindStop
	}
}

func orderBySequence(departures []transit.Departure) []transit.Departure {
	ordered := make([]transit.Departure, len(departures))
	copy(ordered, departures)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	out := ordered[:0]
	for i := range ordered {
		if i > 0 && ordered[i].Sequence == ordered[i-1].Sequence {
			continue
		}
		out = append(out, ordered[i])
	}
	return out
}

// appendSkipped emits the resolvable skipped stops of dep. The middle one of
// a run of more than one carries the express arrow.
func appendSkipped(entries []Entry, dep transit.Departure, run *transit.Run, stops StopLookup) []Entry {
	resolved := make([]transit.Stop, 0, len(dep.SkippedStops))
	for _, s := range dep.SkippedStops {
		if stop, ok := resolveSkipped(s, stops); ok {
			resolved = append(resolved, stop)
		}
	}

	k := len(resolved)
	arrow := -1
	if k > 1 {
		arrow = (k - 1) / 2
	}

	for i, stop := range resolved {
		kind := KindSkipped
		if i == arrow {
			kind = KindSkippedWithArrow
		}
		entries = append(entries, Entry{
			Departure: dep,
			Run:       run,
			Stop:      stop,
			Kind:      kind,
		})
	}
	return entries
}

func resolveSkipped(s transit.SkippedStop, stops StopLookup) (transit.Stop, bool) {
	if stop, ok := stops(s.StopID); ok {
		return stop, true
	}
	if s.StopID == 0 || s.Name == "" {
		return transit.Stop{}, false
	}
	return transit.Stop{
		ID:     s.StopID,
		Name:   s.Name,
		Suburb: s.Suburb,
		Lat:    s.Lat,
		Lon:    s.Lon,
	}, true
}
