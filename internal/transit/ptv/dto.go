package ptv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nextstop/nextstop/internal/transit"
)

// PTV API response structures.

type errorResponse struct {
	Message string `json:"message"`
}

type departuresResponse struct {
	Departures  []ptvDeparture           `json:"departures"`
	Stops       map[string]ptvStop       `json:"stops"`
	Routes      map[string]ptvRoute      `json:"routes"`
	Runs        map[string]ptvRun        `json:"runs"`
	Directions  map[string]ptvDirection  `json:"directions"`
	Disruptions map[string]ptvDisruption `json:"disruptions"`
}

type ptvDeparture struct {
	StopID                int              `json:"stop_id"`
	RouteID               int              `json:"route_id"`
	RunID                 int              `json:"run_id"`
	RunRef                string           `json:"run_ref"`
	DirectionID           int              `json:"direction_id"`
	DisruptionIDs         []int64          `json:"disruption_ids"`
	ScheduledDepartureUTC string           `json:"scheduled_departure_utc"`
	EstimatedDepartureUTC *string          `json:"estimated_departure_utc"`
	AtPlatform            bool             `json:"at_platform"`
	PlatformNumber        *string          `json:"platform_number"`
	Flags                 string           `json:"flags"`
	DepartureSequence     int              `json:"departure_sequence"`
	SkippedStops          []ptvSkippedStop `json:"skipped_stops"`
}

type ptvSkippedStop struct {
	StopID        int     `json:"stop_id"`
	StopName      string  `json:"stop_name"`
	StopSuburb    string  `json:"stop_suburb"`
	StopLatitude  float64 `json:"stop_latitude"`
	StopLongitude float64 `json:"stop_longitude"`
}

type ptvStop struct {
	StopID        int        `json:"stop_id"`
	StopName      string     `json:"stop_name"`
	StopSuburb    string     `json:"stop_suburb"`
	RouteType     int        `json:"route_type"`
	StopLatitude  float64    `json:"stop_latitude"`
	StopLongitude float64    `json:"stop_longitude"`
	Routes        []ptvRoute `json:"routes"`
}

type ptvRoute struct {
	RouteID     int    `json:"route_id"`
	RouteName   string `json:"route_name"`
	RouteNumber string `json:"route_number"`
	RouteType   int    `json:"route_type"`
	RouteGTFSID string `json:"route_gtfs_id"`
}

type ptvRun struct {
	RunID             int                   `json:"run_id"`
	RunRef            string                `json:"run_ref"`
	RouteID           int                   `json:"route_id"`
	RouteType         int                   `json:"route_type"`
	FinalStopID       int                   `json:"final_stop_id"`
	DestinationName   string                `json:"destination_name"`
	Status            string                `json:"status"`
	DirectionID       int                   `json:"direction_id"`
	ExpressStopCount  int                   `json:"express_stop_count"`
	VehiclePosition   *ptvVehiclePosition   `json:"vehicle_position"`
	VehicleDescriptor *ptvVehicleDescriptor `json:"vehicle_descriptor"`
}

type ptvVehiclePosition struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Bearing     *float64 `json:"bearing"`
	DatetimeUTC string   `json:"datetime_utc"`
}

type ptvVehicleDescriptor struct {
	Operator       string `json:"operator"`
	ID             string `json:"id"`
	LowFloor       *bool  `json:"low_floor"`
	AirConditioned *bool  `json:"air_conditioned"`
	Description    string `json:"description"`
	Supplier       string `json:"supplier"`
	Length         string `json:"length"`
}

type ptvDirection struct {
	DirectionID   int    `json:"direction_id"`
	DirectionName string `json:"direction_name"`
	RouteID       int    `json:"route_id"`
}

type ptvDisruption struct {
	ID               int64           `json:"disruption_id"`
	Title            string          `json:"title"`
	URL              string          `json:"url"`
	Description      string          `json:"description"`
	DisruptionStatus string          `json:"disruption_status"`
	DisruptionType   string          `json:"disruption_type"`
	PublishedOn      string          `json:"published_on"`
	FromDate         string          `json:"from_date"`
	ToDate           *string         `json:"to_date"`
	Colour           string          `json:"colour"`
	Routes           []ptvRoute      `json:"routes"`
	Stops            []ptvStopRecord `json:"stops"`
}

type ptvStopRecord struct {
	StopID   int    `json:"stop_id"`
	StopName string `json:"stop_name"`
}

type searchResponse struct {
	Stops  []ptvStop  `json:"stops"`
	Routes []ptvRoute `json:"routes"`
}

// disruptionsResponse groups disruptions by mode ("metro_train", "general", ...).
type disruptionsResponse struct {
	Disruptions map[string][]ptvDisruption `json:"disruptions"`
}

// toDomain converts a departures or pattern response.
func (r *departuresResponse) toDomain() (*transit.Departures, error) {
	out := &transit.Departures{
		Departures:  make([]transit.Departure, 0, len(r.Departures)),
		Stops:       make(map[int]transit.Stop, len(r.Stops)),
		Routes:      make(map[int]transit.Route, len(r.Routes)),
		Runs:        make(map[string]transit.Run, len(r.Runs)),
		Directions:  make(map[int]transit.Direction, len(r.Directions)),
		Disruptions: make(map[int64]transit.Disruption, len(r.Disruptions)),
		FetchedAt:   time.Now().UTC(),
	}

	for i := range r.Departures {
		d, err := r.Departures[i].toDomain()
		if err != nil {
			return nil, err
		}
		out.Departures = append(out.Departures, d)
	}

	for _, s := range r.Stops {
		out.Stops[s.StopID] = s.toDomain()
	}
	for _, rt := range r.Routes {
		out.Routes[rt.RouteID] = rt.toDomain()
	}
	for key, run := range r.Runs {
		ref := run.RunRef
		if ref == "" {
			ref = key
		}
		out.Runs[ref] = run.toDomain(ref)
	}
	for _, d := range r.Directions {
		out.Directions[d.DirectionID] = transit.Direction{
			ID:      d.DirectionID,
			Name:    d.DirectionName,
			RouteID: d.RouteID,
		}
	}
	for key, d := range r.Disruptions {
		if d.ID == 0 {
			if id, err := strconv.ParseInt(key, 10, 64); err == nil {
				d.ID = id
			}
		}
		out.Disruptions[d.ID] = d.toDomain()
	}

	return out, nil
}

func (d *ptvDeparture) toDomain() (transit.Departure, error) {
	scheduled, err := parseTime(d.ScheduledDepartureUTC)
	if err != nil || scheduled.IsZero() {
		return transit.Departure{}, fmt.Errorf("%w: departure for run %s has invalid scheduled time %q",
			transit.ErrMalformedResponse, d.RunRef, d.ScheduledDepartureUTC)
	}

	dep := transit.Departure{
		StopID:        d.StopID,
		RouteID:       d.RouteID,
		RunRef:        d.RunRef,
		DirectionID:   d.DirectionID,
		Scheduled:     scheduled,
		AtPlatform:    d.AtPlatform,
		Sequence:      d.DepartureSequence,
		DisruptionIDs: d.DisruptionIDs,
		Flags:         d.Flags,
	}
	if dep.RunRef == "" && d.RunID != 0 {
		dep.RunRef = strconv.Itoa(d.RunID)
	}

	if d.EstimatedDepartureUTC != nil && *d.EstimatedDepartureUTC != "" {
		est, err := parseTime(*d.EstimatedDepartureUTC)
		if err != nil {
			return transit.Departure{}, fmt.Errorf("%w: departure for run %s has invalid estimated time: %w",
				transit.ErrMalformedResponse, d.RunRef, err)
		}
		dep.Estimated = &est
	}

	if d.PlatformNumber != nil {
		dep.Platform = *d.PlatformNumber
	}

	if len(d.SkippedStops) > 0 {
		dep.SkippedStops = make([]transit.SkippedStop, 0, len(d.SkippedStops))
		for _, s := range d.SkippedStops {
			dep.SkippedStops = append(dep.SkippedStops, transit.SkippedStop{
				StopID: s.StopID,
				Name:   s.StopName,
				Suburb: s.StopSuburb,
				Lat:    s.StopLatitude,
				Lon:    s.StopLongitude,
			})
		}
	}

	return dep, nil
}

func (s *ptvStop) toDomain() transit.Stop {
	stop := transit.Stop{
		ID:        s.StopID,
		Name:      s.StopName,
		Suburb:    s.StopSuburb,
		Lat:       s.StopLatitude,
		Lon:       s.StopLongitude,
		RouteType: transit.RouteType(s.RouteType),
	}
	for _, r := range s.Routes {
		stop.RouteIDs = append(stop.RouteIDs, r.RouteID)
	}
	return stop
}

func (r *ptvRoute) toDomain() transit.Route {
	return transit.Route{
		ID:     r.RouteID,
		Name:   r.RouteName,
		Number: r.RouteNumber,
		Type:   transit.RouteType(r.RouteType),
		GTFSID: r.RouteGTFSID,
	}
}

func (r *ptvRun) toDomain(ref string) transit.Run {
	run := transit.Run{
		Ref:              ref,
		ID:               r.RunID,
		RouteID:          r.RouteID,
		RouteType:        transit.RouteType(r.RouteType),
		FinalStopID:      r.FinalStopID,
		DestinationName:  r.DestinationName,
		Status:           r.Status,
		DirectionID:      r.DirectionID,
		ExpressStopCount: r.ExpressStopCount,
	}

	if v := r.VehicleDescriptor; v != nil && v.ID != "" {
		run.Vehicle = &transit.VehicleDescriptor{
			Operator:       v.Operator,
			ID:             v.ID,
			Description:    v.Description,
			Supplier:       v.Supplier,
			Length:         v.Length,
			LowFloor:       v.LowFloor,
			AirConditioned: v.AirConditioned,
		}
	}

	if p := r.VehiclePosition; p != nil && p.Latitude != nil && p.Longitude != nil {
		pos := &transit.VehiclePosition{Lat: *p.Latitude, Lon: *p.Longitude}
		if p.Bearing != nil {
			pos.Bearing = *p.Bearing
		}
		if t, err := parseTime(p.DatetimeUTC); err == nil {
			pos.ReportedAt = t
		}
		run.Position = pos
	}

	return run
}

func (d *ptvDisruption) toDomain() transit.Disruption {
	out := transit.Disruption{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		URL:         d.URL,
		Status:      d.DisruptionStatus,
		Type:        d.DisruptionType,
		Colour:      d.Colour,
	}

	// Unparseable optional dates are left zero.
	out.PublishedAt, _ = parseTime(d.PublishedOn)
	out.From, _ = parseTime(d.FromDate)
	if d.ToDate != nil {
		out.To, _ = parseTime(*d.ToDate)
	}

	for _, r := range d.Routes {
		out.RouteIDs = append(out.RouteIDs, r.RouteID)
	}
	for _, s := range d.Stops {
		out.StopIDs = append(out.StopIDs, s.StopID)
	}

	return out
}
