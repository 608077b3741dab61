package transit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop/nextstop/internal/transit"
)

var timingNow = time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC)

func departureAt(scheduled time.Duration, estimated *time.Duration) transit.Departure {
	d := transit.Departure{Scheduled: timingNow.Add(scheduled)}
	if estimated != nil {
		est := timingNow.Add(*estimated)
		d.Estimated = &est
	}
	return d
}

func dur(d time.Duration) *time.Duration {
	return &d
}

func TestDeparture_Delay(t *testing.T) {
	t.Run("no estimate is distinct from zero delay", func(t *testing.T) {
		d := departureAt(5*time.Minute, nil)
		_, ok := d.Delay()
		assert.False(t, ok)

		onTime := departureAt(5*time.Minute, dur(5*time.Minute))
		delay, ok := onTime.Delay()
		require.True(t, ok)
		assert.Equal(t, time.Duration(0), delay)
	})

	t.Run("late departure", func(t *testing.T) {
		d := departureAt(5*time.Minute, dur(7*time.Minute))
		delay, ok := d.Delay()
		require.True(t, ok)
		assert.Equal(t, 2*time.Minute, delay)
	})
}

func TestDeparture_TimeTo(t *testing.T) {
	d := departureAt(4*time.Minute, dur(6*time.Minute))

	assert.Equal(t, 4*time.Minute, d.TimeToScheduled(timingNow))
	until, ok := d.TimeToEstimated(timingNow)
	require.True(t, ok)
	assert.Equal(t, 6*time.Minute, until)

	noEstimate := departureAt(4*time.Minute, nil)
	_, ok = noEstimate.TimeToEstimated(timingNow)
	assert.False(t, ok)
}

func TestDeparture_IsArriving(t *testing.T) {
	tests := []struct {
		name      string
		mode      transit.RouteType
		estimated *time.Duration
		want      bool
	}{
		{"train delay 125s", transit.RouteTypeTrain, dur(125 * time.Second), true},
		{"train delay 120s", transit.RouteTypeTrain, dur(120 * time.Second), false},
		{"train early by 30s", transit.RouteTypeTrain, dur(-30 * time.Second), true},
		{"train no estimate", transit.RouteTypeTrain, nil, false},
		{"tram delay 125s", transit.RouteTypeTram, dur(125 * time.Second), false},
		{"bus delay 5s", transit.RouteTypeBus, dur(5 * time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := departureAt(0, tt.estimated)
			assert.Equal(t, tt.want, d.IsArriving(tt.mode))
		})
	}
}

func TestDeparture_DisplayTime(t *testing.T) {
	tests := []struct {
		name       string
		mode       transit.RouteType
		scheduled  time.Duration
		estimated  *time.Duration
		atPlatform bool
		want       string
	}{
		{"at platform", transit.RouteTypeTrain, 2 * time.Minute, dur(2 * time.Minute), true, "Now"},
		{"at platform and arriving", transit.RouteTypeTrain, 0, dur(5 * time.Second), true, "Now"},
		{"arriving not at platform", transit.RouteTypeTrain, 0, dur(65 * time.Second), false, "Now*"},
		{"live estimate", transit.RouteTypeTram, 3 * time.Minute, dur(5*time.Minute + 40*time.Second), false, "5 min"},
		{"scheduled only", transit.RouteTypeBus, 5*time.Minute + 59*time.Second, nil, false, "5 min*"},
		{"past estimate clamps", transit.RouteTypeTram, -3 * time.Minute, dur(-2 * time.Minute), false, "0 min"},
		{"past schedule clamps", transit.RouteTypeBus, -90 * time.Second, nil, false, "0 min*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := departureAt(tt.scheduled, tt.estimated)
			d.AtPlatform = tt.atPlatform
			assert.Equal(t, tt.want, d.DisplayTime(tt.mode, timingNow))
		})
	}
}

func TestDeparture_TimingAt(t *testing.T) {
	d := departureAt(3*time.Minute, dur(3*time.Minute+5*time.Second))

	timing := d.TimingAt(transit.RouteTypeTrain, timingNow)
	assert.True(t, timing.Arriving)
	assert.False(t, timing.AtPlatform)
	assert.Equal(t, "Now*", timing.Display)
	require.NotNil(t, timing.Delay)
	assert.Equal(t, 5*time.Second, *timing.Delay)
	require.NotNil(t, timing.TimeToEstimated)

	noEstimate := departureAt(3*time.Minute, nil)
	timing = noEstimate.TimingAt(transit.RouteTypeTrain, timingNow)
	assert.Nil(t, timing.Delay)
	assert.Nil(t, timing.TimeToEstimated)
	assert.Equal(t, "3 min*", timing.Display)
}

func TestParseRouteType(t *testing.T) {
	rt, err := transit.ParseRouteType("Tram")
	require.NoError(t, err)
	assert.Equal(t, transit.RouteTypeTram, rt)

	rt, err = transit.ParseRouteType("3")
	require.NoError(t, err)
	assert.Equal(t, transit.RouteTypeVLine, rt)

	_, err = transit.ParseRouteType("ferry")
	assert.ErrorIs(t, err, transit.ErrUnknownRouteType)
}
