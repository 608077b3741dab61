package transit

import (
	"fmt"
	"time"
)

// Display strings for departure times.
const (
	DisplayNow         = "Now"
	DisplayArriving    = "Now*"
	ScheduledSuffix    = "*"
	minutesDisplayUnit = "min"
)

// Timing is the arrival state of one departure at a given instant.
type Timing struct {
	TimeToScheduled time.Duration
	TimeToEstimated *time.Duration
	Delay           *time.Duration
	Arriving        bool
	AtPlatform      bool
	Display         string
}

// HasEstimate reports whether a live estimate is available.
func (d *Departure) HasEstimate() bool {
	return d.Estimated != nil
}

// EstimatedOrScheduled returns the estimated departure time if present,
// otherwise the scheduled one.
func (d *Departure) EstimatedOrScheduled() time.Time {
	if d.Estimated != nil {
		return *d.Estimated
	}
	return d.Scheduled
}

// TimeToScheduled returns scheduled - now.
func (d *Departure) TimeToScheduled(now time.Time) time.Duration {
	return d.Scheduled.Sub(now)
}

// TimeToEstimated returns estimated - now. ok is false without an estimate.
func (d *Departure) TimeToEstimated(now time.Time) (time.Duration, bool) {
	if d.Estimated == nil {
		return 0, false
	}
	return d.Estimated.Sub(now), true
}

// Delay returns estimated - scheduled. ok is false without an estimate,
// which is distinct from a zero delay.
func (d *Departure) Delay() (time.Duration, bool) {
	if d.Estimated == nil {
		return 0, false
	}
	return d.Estimated.Sub(d.Scheduled), true
}

// IsArriving reports whether a train is present but not yet recorded at the
// platform. Upstream marks this with a delay that is not a whole minute.
// Always false for modes other than train.
func (d *Departure) IsArriving(mode RouteType) bool {
	if mode != RouteTypeTrain {
		return false
	}
	delay, ok := d.Delay()
	if !ok {
		return false
	}
	return delay%time.Minute != 0
}

// DisplayTime returns the short label shown next to a departure.
func (d *Departure) DisplayTime(mode RouteType, now time.Time) string {
	if d.AtPlatform {
		return DisplayNow
	}
	if d.IsArriving(mode) {
		return DisplayArriving
	}
	if until, ok := d.TimeToEstimated(now); ok {
		return formatMinutes(until)
	}
	return formatMinutes(d.TimeToScheduled(now)) + ScheduledSuffix
}

// TimingAt computes the full arrival state of d at now.
func (d *Departure) TimingAt(mode RouteType, now time.Time) Timing {
	t := Timing{
		TimeToScheduled: d.TimeToScheduled(now),
		Arriving:        d.IsArriving(mode),
		AtPlatform:      d.AtPlatform,
		Display:         d.DisplayTime(mode, now),
	}
	if until, ok := d.TimeToEstimated(now); ok {
		t.TimeToEstimated = &until
	}
	if delay, ok := d.Delay(); ok {
		t.Delay = &delay
	}
	return t
}

// formatMinutes truncates to whole minutes and clamps at zero.
func formatMinutes(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d %s", minutes, minutesDisplayUnit)
}
