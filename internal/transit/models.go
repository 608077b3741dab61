// Package transit provides the network domain model (stops, runs, departures,
// disruptions) and a caching service over an upstream timetable provider.
package transit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transit errors.
var (
	ErrProviderUnavailable = errors.New("transit provider unavailable")
	ErrMalformedResponse   = errors.New("malformed provider response")
	ErrUnknownRouteType    = errors.New("unknown route type")
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
)

// RouteType is the upstream mode of transport.
type RouteType int

const (
	RouteTypeTrain    RouteType = 0
	RouteTypeTram     RouteType = 1
	RouteTypeBus      RouteType = 2
	RouteTypeVLine    RouteType = 3
	RouteTypeNightBus RouteType = 4
)

var routeTypeNames = map[RouteType]string{
	RouteTypeTrain:    "train",
	RouteTypeTram:     "tram",
	RouteTypeBus:      "bus",
	RouteTypeVLine:    "vline",
	RouteTypeNightBus: "nightbus",
}

// String returns the lower-case mode name.
func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("route_type(%d)", int(t))
}

// Valid reports whether t is a known mode.
func (t RouteType) Valid() bool {
	_, ok := routeTypeNames[t]
	return ok
}

// ParseRouteType parses a mode name ("train", "tram", ...) or its numeric form.
func ParseRouteType(s string) (RouteType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range routeTypeNames {
		if s == name || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRouteType, s)
}

// Stop is a place served by one or more routes.
type Stop struct {
	ID        int
	Name      string
	Suburb    string
	Lat       float64
	Lon       float64
	RouteType RouteType
	RouteIDs  []int
}

// Route is a line of the network.
type Route struct {
	ID     int
	Name   string
	Number string
	Type   RouteType
	GTFSID string
}

// Direction is a travel direction of a route.
type Direction struct {
	ID      int
	Name    string
	RouteID int
}

// VehicleDescriptor describes the physical vehicle operating a run.
type VehicleDescriptor struct {
	Operator       string
	ID             string
	Description    string
	Supplier       string
	Length         string
	LowFloor       *bool
	AirConditioned *bool
}

// VehiclePosition is the last reported location of a vehicle.
type VehiclePosition struct {
	Lat        float64
	Lon        float64
	Bearing    float64
	ReportedAt time.Time
}

// Run status values reported upstream.
const (
	RunStatusScheduled = "scheduled"
	RunStatusUpdated   = "updated"
	RunStatusCancelled = "cancelled"
	RunStatusAdded     = "added"
)

// Run is one vehicle trip.
type Run struct {
	Ref              string
	ID               int
	RouteID          int
	RouteType        RouteType
	FinalStopID      int
	DestinationName  string
	Status           string
	DirectionID      int
	ExpressStopCount int
	Vehicle          *VehicleDescriptor
	Position         *VehiclePosition
}

// IsCancelled reports whether the run will not operate.
func (r *Run) IsCancelled() bool {
	return strings.EqualFold(r.Status, RunStatusCancelled)
}

// IsExpress reports whether the run skips at least one stop.
func (r *Run) IsExpress() bool {
	return r.ExpressStopCount > 0
}

// SkippedStop is a stop a run passes without calling.
type SkippedStop struct {
	StopID int
	Name   string
	Suburb string
	Lat    float64
	Lon    float64
}

// Departure is a single stop visit of a run.
type Departure struct {
	StopID        int
	RouteID       int
	RunRef        string
	DirectionID   int
	Scheduled     time.Time
	Estimated     *time.Time
	AtPlatform    bool
	Platform      string
	Sequence      int
	SkippedStops  []SkippedStop
	DisruptionIDs []int64
	Flags         string
}

// Disruption is a published service disruption.
type Disruption struct {
	ID          int64
	Title       string
	Description string
	URL         string
	Status      string
	Type        string
	Colour      string
	PublishedAt time.Time
	From        time.Time
	To          time.Time // zero if open-ended
	RouteIDs    []int
	StopIDs     []int
}

// IsActive reports whether the disruption applies at t.
func (d *Disruption) IsActive(t time.Time) bool {
	if !d.From.IsZero() && t.Before(d.From) {
		return false
	}
	if !d.To.IsZero() && t.After(d.To) {
		return false
	}
	return true
}

// AffectsRoute returns true if the disruption affects the given route.
func (d *Disruption) AffectsRoute(routeID int) bool {
	for _, r := range d.RouteIDs {
		if r == routeID {
			return true
		}
	}
	return false
}

// Departures is one upstream departures or pattern response with its
// per-request lookup maps.
type Departures struct {
	Departures  []Departure
	Stops       map[int]Stop
	Routes      map[int]Route
	Runs        map[string]Run
	Directions  map[int]Direction
	Disruptions map[int64]Disruption
	FetchedAt   time.Time
}

// Run returns the run referenced by ref, if present.
func (d *Departures) Run(ref string) (*Run, bool) {
	r, ok := d.Runs[ref]
	if !ok {
		return nil, false
	}
	return &r, true
}

// SearchResult holds stops and routes matching a search term.
type SearchResult struct {
	Stops  []Stop
	Routes []Route
}

// DeparturesOptions narrows a departures request.
type DeparturesOptions struct {
	// MaxResults limits departures per route/direction (0 = upstream default).
	MaxResults int

	// Platforms restricts departures to the given platform labels.
	Platforms []string
}
