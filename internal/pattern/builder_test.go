package pattern_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

var t0 = time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)

// network returns a response with stops 1..20 and run "R1".
func network() *transit.Departures {
	resp := &transit.Departures{
		Stops: make(map[int]transit.Stop),
		Runs:  map[string]transit.Run{"R1": {Ref: "R1", RouteID: 6, RouteType: transit.RouteTypeTrain, DestinationName: "Frankston"}},
	}
	for id := 1; id <= 20; id++ {
		resp.Stops[id] = transit.Stop{ID: id, Name: stopName(id)}
	}
	resp.Stops[pattern.InterchangeStopID] = transit.Stop{ID: pattern.InterchangeStopID, Name: "Flinders Street"}
	return resp
}

func stopName(id int) string {
	return "Stop " + string(rune('A'+id-1))
}

func dep(seq, stopID int, offset time.Duration, skipped ...int) transit.Departure {
	d := transit.Departure{
		StopID:    stopID,
		RunRef:    "R1",
		Sequence:  seq,
		Scheduled: t0.Add(offset),
	}
	for _, id := range skipped {
		d.SkippedStops = append(d.SkippedStops, transit.SkippedStop{StopID: id})
	}
	return d
}

func kinds(entries []pattern.Entry) []pattern.StopKind {
	out := make([]pattern.StopKind, len(entries))
	for i := range entries {
		out[i] = entries[i].Kind
	}
	return out
}

func stopIDs(entries []pattern.Entry) []int {
	out := make([]int, len(entries))
	for i := range entries {
		out[i] = entries[i].Stop.ID
	}
	return out
}

func TestBuild_PositionKinds(t *testing.T) {
	for n := 1; n <= 6; n++ {
		resp := network()
		for i := 0; i < n; i++ {
			resp.Departures = append(resp.Departures, dep(i+1, i+1, time.Duration(i)*time.Minute))
		}

		entries := pattern.BuildFrom(resp, "R1")
		require.Len(t, entries, n)

		assert.Equal(t, pattern.KindFirst, entries[0].Kind, "n=%d", n)
		if n > 1 {
			assert.Equal(t, pattern.KindLast, entries[n-1].Kind, "n=%d", n)
		}
		for i := 1; i < n-1; i++ {
			assert.Equal(t, pattern.KindStop, entries[i].Kind, "n=%d i=%d", n, i)
		}
		require.NotNil(t, entries[0].Run)
		assert.Equal(t, "Frankston", entries[0].Run.DestinationName)
	}
}

func TestBuild_OrdersAndDeduplicatesBySequence(t *testing.T) {
	resp := network()
	resp.Departures = []transit.Departure{
		dep(3, 3, 2*time.Minute),
		dep(1, 1, 0),
		dep(2, 2, time.Minute),
		dep(2, 9, time.Minute),
	}

	entries := pattern.BuildFrom(resp, "R1")
	assert.Equal(t, []int{1, 2, 3}, stopIDs(entries))
	assert.Equal(t, []pattern.StopKind{pattern.KindFirst, pattern.KindStop, pattern.KindLast}, kinds(entries))
}

func TestBuild_SkippedStopArrow(t *testing.T) {
	tests := []struct {
		name    string
		skipped []int
		want    []pattern.StopKind
	}{
		{"single", []int{10}, []pattern.StopKind{pattern.KindSkipped}},
		{"pair", []int{10, 11}, []pattern.StopKind{pattern.KindSkippedWithArrow, pattern.KindSkipped}},
		{"three", []int{10, 11, 12}, []pattern.StopKind{pattern.KindSkipped, pattern.KindSkippedWithArrow, pattern.KindSkipped}},
		{"four", []int{10, 11, 12, 13}, []pattern.StopKind{pattern.KindSkipped, pattern.KindSkippedWithArrow, pattern.KindSkipped, pattern.KindSkipped}},
		{"five", []int{10, 11, 12, 13, 14}, []pattern.StopKind{pattern.KindSkipped, pattern.KindSkipped, pattern.KindSkippedWithArrow, pattern.KindSkipped, pattern.KindSkipped}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := network()
			resp.Departures = []transit.Departure{
				dep(1, 1, 0, tt.skipped...),
				dep(2, 2, 5*time.Minute),
			}

			entries := pattern.BuildFrom(resp, "R1")
			require.Len(t, entries, 2+len(tt.skipped))

			assert.Equal(t, pattern.KindFirst, entries[0].Kind)
			assert.Equal(t, tt.want, kinds(entries[1:len(entries)-1]))
			assert.Equal(t, tt.skipped, stopIDs(entries[1:len(entries)-1]))
			assert.Equal(t, pattern.KindLast, entries[len(entries)-1].Kind)

			arrows := 0
			for _, e := range entries {
				if e.Kind == pattern.KindSkippedWithArrow {
					arrows++
				}
				// Skipped entries share their parent's time.
				if e.Kind.IsSkipped() {
					assert.Equal(t, t0, e.Time())
				}
			}
			if len(tt.skipped) > 1 {
				assert.Equal(t, 1, arrows)
			} else {
				assert.Zero(t, arrows)
			}
		})
	}
}

func TestBuild_SuppressesInterchangeSkips(t *testing.T) {
	resp := network()
	resp.Departures = []transit.Departure{
		dep(1, pattern.InterchangeStopID, 0, 10, 11, 12),
		dep(2, 2, 5*time.Minute, 13),
		dep(3, 3, 8*time.Minute),
	}

	entries := pattern.BuildFrom(resp, "R1")
	assert.Equal(t, []int{pattern.InterchangeStopID, 2, 13, 3}, stopIDs(entries))
	assert.Equal(t, []pattern.StopKind{
		pattern.KindFirst, pattern.KindStop, pattern.KindSkipped, pattern.KindLast,
	}, kinds(entries))
}

func TestBuild_DropsUnknownStops(t *testing.T) {
	resp := network()
	resp.Departures = []transit.Departure{
		dep(1, 1, 0),
		dep(2, 999, time.Minute, 10),
		dep(3, 3, 2*time.Minute),
	}

	entries := pattern.BuildFrom(resp, "R1")
	assert.Equal(t, []int{1, 3}, stopIDs(entries))
	assert.Equal(t, []pattern.StopKind{pattern.KindFirst, pattern.KindLast}, kinds(entries))
}

func TestBuild_DroppedFirstKeepsPositionKinds(t *testing.T) {
	resp := network()
	resp.Departures = []transit.Departure{
		dep(1, 999, 0),
		dep(2, 2, time.Minute),
		dep(3, 3, 2*time.Minute),
	}

	entries := pattern.BuildFrom(resp, "R1")
	assert.Equal(t, []pattern.StopKind{pattern.KindStop, pattern.KindLast}, kinds(entries))
}

func TestBuild_SkippedStopFallbacks(t *testing.T) {
	resp := network()
	first := dep(1, 1, 0)
	first.SkippedStops = []transit.SkippedStop{
		{StopID: 500, Name: "Embedded Only", Suburb: "Richmond"},
		{StopID: 501},
		{StopID: 10},
	}
	resp.Departures = []transit.Departure{first, dep(2, 2, time.Minute)}

	entries := pattern.BuildFrom(resp, "R1")
	require.Len(t, entries, 4)
	assert.Equal(t, []int{1, 500, 10, 2}, stopIDs(entries))
	assert.Equal(t, "Embedded Only", entries[1].Stop.Name)
	assert.Equal(t, pattern.KindSkippedWithArrow, entries[1].Kind)
	assert.Equal(t, pattern.KindSkipped, entries[2].Kind)
}

func TestBuildFrom_FiltersRun(t *testing.T) {
	resp := network()
	other := dep(1, 5, 0)
	other.RunRef = "R2"
	resp.Departures = []transit.Departure{dep(1, 1, 0), other, dep(2, 2, time.Minute)}

	assert.Equal(t, []int{1, 2}, stopIDs(pattern.BuildFrom(resp, "R1")))
	assert.Len(t, pattern.BuildFrom(resp, ""), 2, "unfiltered input still de-duplicates by sequence")
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, pattern.BuildFrom(network(), "R1"))
}

func TestStopKind_Text(t *testing.T) {
	b, err := json.Marshal(map[string]pattern.StopKind{"kind": pattern.KindSkippedWithArrow})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"skipped_with_arrow"}`, string(b))

	var k pattern.StopKind
	require.NoError(t, k.UnmarshalText([]byte("continues_after")))
	assert.Equal(t, pattern.KindContinuesAfter, k)
	assert.Error(t, k.UnmarshalText([]byte("bogus")))

	_, err = pattern.StopKind(0).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "StopKind(42)", pattern.StopKind(42).String())
}
