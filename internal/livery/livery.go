// Package livery maps routes to their display colours.
package livery

import "github.com/nextstop/nextstop/internal/transit"

// Livery is a route's display colour and line group.
type Livery struct {
	Colour string `json:"colour"`
	Group  string `json:"group,omitempty"`
}

type group struct {
	name   string
	colour string
	routes []int
}

// Metropolitan train line groups by route id.
var trainGroups = []group{
	{"Burnley", "#152C6B", []int{1, 2, 7, 9}},
	{"Caulfield", "#279FD5", []int{4, 11}},
	{"Clifton Hill", "#BE1014", []int{5, 8}},
	{"Northern", "#FFBE00", []int{3, 14, 15}},
	{"Cross-city", "#028430", []int{6, 13, 16, 17}},
	{"Sandringham", "#F178AF", []int{12}},
}

var modeColours = map[transit.RouteType]string{
	transit.RouteTypeTrain:    "#0072CE",
	transit.RouteTypeTram:     "#78BE20",
	transit.RouteTypeBus:      "#FF8200",
	transit.RouteTypeVLine:    "#8F1A95",
	transit.RouteTypeNightBus: "#FF8200",
}

// Default is used for unknown modes.
const Default = "#333333"

var trainByRoute = func() map[int]Livery {
	m := make(map[int]Livery)
	for _, g := range trainGroups {
		for _, id := range g.routes {
			m[id] = Livery{Colour: g.colour, Group: g.name}
		}
	}
	return m
}()

// For returns the livery of a route.
func For(rt transit.RouteType, routeID int) Livery {
	if rt == transit.RouteTypeTrain {
		if l, ok := trainByRoute[routeID]; ok {
			return l
		}
	}
	return Livery{Colour: ModeColour(rt)}
}

// ModeColour returns the fallback colour of a mode.
func ModeColour(rt transit.RouteType) string {
	if c, ok := modeColours[rt]; ok {
		return c
	}
	return Default
}
