package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

func testRun(now time.Time) *transit.Departures {
	return &transit.Departures{
		Departures: []transit.Departure{
			{StopID: 1162, RouteID: 6, RunRef: "948012", Scheduled: now.Add(9 * time.Minute), Platform: "1", Sequence: 2},
			{StopID: 1071, RouteID: 6, RunRef: "948012", Scheduled: now.Add(5 * time.Minute), Platform: "6", Sequence: 1},
			{StopID: 1073, RouteID: 6, RunRef: "948012", Scheduled: now.Add(45 * time.Minute), Platform: "1", Sequence: 3},
		},
		Stops: map[int]transit.Stop{
			1071: {ID: 1071, Name: "Flinders Street Station"},
			1162: {ID: 1162, Name: "Richmond Station"},
			1073: {ID: 1073, Name: "Frankston Station"},
		},
		Routes: map[int]transit.Route{6: {ID: 6, Name: "Frankston", Type: transit.RouteTypeTrain}},
		Runs: map[string]transit.Run{
			"948012": {Ref: "948012", RouteID: 6, DestinationName: "Frankston", Status: transit.RunStatusCancelled},
		},
	}
}

func TestRenderDepartures(t *testing.T) {
	now := time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)
	var buf bytes.Buffer

	renderDepartures(&buf, testRun(now), 1071, transit.RouteTypeTrain, now)

	out := buf.String()
	assert.Contains(t, out, "Flinders Street Station (train)")
	assert.Contains(t, out, "Destination")
	assert.Contains(t, out, "cancelled")

	// Soonest first regardless of upstream order.
	first := now.Add(5 * time.Minute).Local().Format(clockFormat)
	second := now.Add(9 * time.Minute).Local().Format(clockFormat)
	assert.Less(t, strings.Index(out, first), strings.Index(out, second))
}

func TestRenderDepartures_Empty(t *testing.T) {
	var buf bytes.Buffer

	renderDepartures(&buf, &transit.Departures{}, 1071, transit.RouteTypeTrain, time.Now())

	assert.Contains(t, buf.String(), "No departures.")
}

func TestRenderPattern(t *testing.T) {
	now := time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)
	snap := pattern.NewSnapshot(testRun(now), "948012", now)

	var buf bytes.Buffer
	renderPattern(&buf, snap, transit.RouteTypeTrain, pattern.LayoutOptions{Expanded: true}, now)

	out := buf.String()
	assert.Contains(t, out, "Run 948012 to Frankston")
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "▶ ┬")
	assert.Contains(t, out, "Richmond Station")
	assert.Less(t, strings.Index(out, "Flinders Street Station"), strings.Index(out, "Richmond Station"))
	assert.NotContains(t, out, "completed its run")
}

func TestRenderPattern_Completed(t *testing.T) {
	now := time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)
	snap := pattern.NewSnapshot(testRun(now), "948012", now.Add(2*time.Hour))

	var buf bytes.Buffer
	renderPattern(&buf, snap, transit.RouteTypeTrain, pattern.LayoutOptions{}, now.Add(2*time.Hour))

	out := buf.String()
	assert.Contains(t, out, "completed its run")
	assert.NotContains(t, out, "Richmond Station")
}

func TestKindGlyph(t *testing.T) {
	tests := []struct {
		kind pattern.StopKind
		next bool
		want string
	}{
		{pattern.KindFirst, false, "  ┬"},
		{pattern.KindStop, true, "▶ ●"},
		{pattern.KindLast, false, "  ┴"},
		{pattern.KindSkippedWithArrow, false, "  ↓"},
		{pattern.KindContinuesAfter, false, "  ╎"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, kindGlyph(tt.kind, tt.next))
		})
	}
}

func TestRenderSearch(t *testing.T) {
	var buf bytes.Buffer
	renderSearch(&buf, &transit.SearchResult{
		Stops:  []transit.Stop{{ID: 1071, Name: "Flinders Street Station", Suburb: "Melbourne City", RouteType: transit.RouteTypeTrain}},
		Routes: []transit.Route{{ID: 6, Name: "Frankston", Type: transit.RouteTypeTrain}},
	})

	out := buf.String()
	assert.Contains(t, out, "Melbourne City")
	assert.Contains(t, out, "Frankston")
	assert.Contains(t, out, "train")

	buf.Reset()
	renderSearch(&buf, &transit.SearchResult{})
	assert.Contains(t, buf.String(), "No matches.")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, float64(5), parseValue("5"))
	assert.Equal(t, "tram", parseValue("tram"))
	assert.Equal(t, "tram", parseValue(`"tram"`))
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type staticSource struct {
	resp *transit.Departures
}

func (s staticSource) FreshPattern(context.Context, string, transit.RouteType) (*transit.Departures, error) {
	return s.resp, nil
}

func TestLiveScreen_KeysAndQuit(t *testing.T) {
	out := &syncBuffer{}
	s := &liveScreen{out: out, mode: transit.RouteTypeTrain}

	in, keys := io.Pipe()
	t.Cleanup(func() { keys.Close() })
	done := make(chan error, 1)
	go func() {
		done <- s.run(context.Background(), staticSource{resp: testRun(time.Now())}, "948012", time.Hour, in, zerolog.Nop())
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Flinders Street Station")
	}, 2*time.Second, 10*time.Millisecond)

	_, err := io.WriteString(keys, "p\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[paused]")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(keys, "E\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.layout.Expanded
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(keys, "q\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not quit")
	}
}

func TestLiveScreen_KeepsRunningAfterInputEnds(t *testing.T) {
	out := &syncBuffer{}
	s := &liveScreen{out: out, mode: transit.RouteTypeTrain}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.run(ctx, staticSource{resp: testRun(time.Now())}, "948012", time.Hour, strings.NewReader(""), zerolog.Nop())
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Flinders Street Station")
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-done:
		t.Fatal("watch returned when stdin closed")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
