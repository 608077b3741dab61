package handler

import (
	"time"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/fleet"
	"github.com/nextstop/nextstop/internal/livery"
	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

func toStop(s transit.Stop) models.Stop {
	out := models.Stop{
		ID:     s.ID,
		Name:   s.Name,
		Suburb: s.Suburb,
		Lat:    s.Lat,
		Lon:    s.Lon,
	}
	if s.RouteType.Valid() {
		out.Mode = s.RouteType.String()
	}
	return out
}

func toTiming(d *transit.Departure, mode transit.RouteType, now time.Time) models.Timing {
	t := d.TimingAt(mode, now)
	out := models.Timing{
		Display:            t.Display,
		SecondsToScheduled: int64(t.TimeToScheduled / time.Second),
		Arriving:           t.Arriving,
		AtPlatform:         t.AtPlatform,
	}
	if t.TimeToEstimated != nil {
		secs := int64(*t.TimeToEstimated / time.Second)
		out.SecondsToEstimated = &secs
	}
	if t.Delay != nil {
		secs := int64(*t.Delay / time.Second)
		out.DelaySeconds = &secs
	}
	return out
}

// toVehicle classifies the run's vehicle. The run is classified as mode
// since upstream omits the route type on some responses.
func toVehicle(run *transit.Run, mode transit.RouteType) *models.Vehicle {
	if run == nil || run.Vehicle == nil {
		return nil
	}
	r := *run
	r.RouteType = mode

	class, _ := fleet.ClassifyRun(&r)
	return &models.Vehicle{
		ID:          run.Vehicle.ID,
		Class:       class.Name,
		LowFloor:    class.LowFloor,
		Description: run.Vehicle.Description,
		Operator:    run.Vehicle.Operator,
	}
}

func toDisruption(d transit.Disruption) models.Disruption {
	return models.Disruption{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		URL:         d.URL,
		Type:        d.Type,
		Status:      d.Status,
		Colour:      d.Colour,
		From:        models.NewTimestamp(d.From),
		To:          models.NewTimestamp(d.To),
		RouteIDs:    d.RouteIDs,
		StopIDs:     d.StopIDs,
	}
}

// toPattern renders a snapshot. Timing is computed at now, which may be
// later than the instant the snapshot was located at.
func toPattern(snap *pattern.Snapshot, mode transit.RouteType, opts pattern.LayoutOptions, now time.Time) *models.PatternResponse {
	out := &models.PatternResponse{
		RunRef:    snap.RunRef,
		Mode:      mode.String(),
		Colour:    livery.ModeColour(mode),
		Completed: snap.Completed(),
		Expanded:  opts.Expanded,
		Rows:      []models.PatternRow{},
		BuiltAt:   models.Timestamp(snap.BuiltAt),
	}

	if run := snap.Run; run != nil {
		out.RouteID = run.RouteID
		out.Destination = run.DestinationName
		out.Colour = livery.For(mode, run.RouteID).Colour
		out.Express = run.IsExpress()
		out.Cancelled = run.IsCancelled()
		out.Vehicle = toVehicle(run, mode)
	}

	for _, row := range snap.Rows(opts) {
		pr := models.PatternRow{
			Kind: row.Kind.String(),
			Next: row.Next,
		}
		if row.Entry != nil {
			stop := toStop(row.Entry.Stop)
			pr.Stop = &stop
			if !row.Entry.Kind.IsSkipped() {
				at := models.Timestamp(row.Entry.Time())
				timing := toTiming(&row.Entry.Departure, mode, now)
				pr.Time = &at
				pr.Timing = &timing
				pr.Platform = row.Entry.Departure.Platform
			}
		}
		if row.Skipped != nil {
			pr.SkippedCount = row.Skipped.Count
			pr.SkippedStops = row.Skipped.Stops
		}
		out.Rows = append(out.Rows, pr)
	}
	return out
}
