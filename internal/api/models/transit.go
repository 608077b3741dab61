package models

// Stop is a stop as returned by the API.
type Stop struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Suburb string  `json:"suburb,omitempty"`
	Mode   string  `json:"mode,omitempty"`
	Lat    float64 `json:"lat,omitempty"`
	Lon    float64 `json:"lon,omitempty"`
}

// Route is a line as returned by search.
type Route struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number,omitempty"`
	Mode   string `json:"mode"`
	Colour string `json:"colour"`
}

// Timing is the arrival state of a departure when the response was built.
// Durations are whole seconds; estimate and delay are absent without a live
// estimate.
type Timing struct {
	Display            string `json:"display"`
	SecondsToScheduled int64  `json:"secondsToScheduled"`
	SecondsToEstimated *int64 `json:"secondsToEstimated,omitempty"`
	DelaySeconds       *int64 `json:"delaySeconds,omitempty"`
	Arriving           bool   `json:"arriving"`
	AtPlatform         bool   `json:"atPlatform"`
}

// Vehicle describes the vehicle operating a run.
type Vehicle struct {
	ID          string `json:"id,omitempty"`
	Class       string `json:"class"`
	LowFloor    bool   `json:"lowFloor"`
	Description string `json:"description,omitempty"`
	Operator    string `json:"operator,omitempty"`
}

// Departure is one row of a departure board.
type Departure struct {
	RunRef        string     `json:"runRef"`
	RouteID       int        `json:"routeId"`
	RouteName     string     `json:"routeName,omitempty"`
	RouteNumber   string     `json:"routeNumber,omitempty"`
	Destination   string     `json:"destination"`
	Direction     string     `json:"direction,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	ScheduledAt   Timestamp  `json:"scheduledAt"`
	EstimatedAt   *Timestamp `json:"estimatedAt,omitempty"`
	Timing        Timing     `json:"timing"`
	Express       bool       `json:"express"`
	Cancelled     bool       `json:"cancelled"`
	Colour        string     `json:"colour"`
	LineGroup     string     `json:"lineGroup,omitempty"`
	Vehicle       *Vehicle   `json:"vehicle,omitempty"`
	DisruptionIDs []int64    `json:"disruptionIds,omitempty"`
}

// DeparturesResponse is the departure board of one stop.
type DeparturesResponse struct {
	Stop        Stop         `json:"stop"`
	Mode        string       `json:"mode"`
	Departures  []Departure  `json:"departures"`
	Disruptions []Disruption `json:"disruptions,omitempty"`
	FetchedAt   *Timestamp   `json:"fetchedAt,omitempty"`
}

// PatternRow is one rendered line of a stopping pattern. Summary rows carry
// SkippedCount and SkippedStops instead of a stop.
type PatternRow struct {
	Kind         string     `json:"kind"`
	Next         bool       `json:"next,omitempty"`
	Stop         *Stop      `json:"stop,omitempty"`
	Time         *Timestamp `json:"time,omitempty"`
	Timing       *Timing    `json:"timing,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	SkippedCount int        `json:"skippedCount,omitempty"`
	SkippedStops []string   `json:"skippedStops,omitempty"`
}

// PatternResponse is the stopping pattern of one run.
type PatternResponse struct {
	RunRef      string       `json:"runRef"`
	Mode        string       `json:"mode"`
	RouteID     int          `json:"routeId,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Colour      string       `json:"colour"`
	Express     bool         `json:"express"`
	Cancelled   bool         `json:"cancelled"`
	Completed   bool         `json:"completed"`
	Expanded    bool         `json:"expanded"`
	Vehicle     *Vehicle     `json:"vehicle,omitempty"`
	Rows        []PatternRow `json:"rows"`
	BuiltAt     Timestamp    `json:"builtAt"`
}

// SearchResponse holds stops and routes matching a term.
type SearchResponse struct {
	Term   string  `json:"term"`
	Stops  []Stop  `json:"stops"`
	Routes []Route `json:"routes"`
}

// Disruption is a published service disruption.
type Disruption struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	Type        string     `json:"type,omitempty"`
	Status      string     `json:"status,omitempty"`
	Colour      string     `json:"colour,omitempty"`
	From        *Timestamp `json:"from,omitempty"`
	To          *Timestamp `json:"to,omitempty"`
	RouteIDs    []int      `json:"routeIds,omitempty"`
	StopIDs     []int      `json:"stopIds,omitempty"`
}

// DisruptionsResponse lists active disruptions.
type DisruptionsResponse struct {
	Disruptions []Disruption `json:"disruptions"`
}
