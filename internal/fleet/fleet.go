// Package fleet classifies vehicles by their fleet number.
package fleet

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nextstop/nextstop/internal/transit"
)

// Class is a vehicle class.
type Class struct {
	Name     string `json:"name"`
	LowFloor bool   `json:"lowFloor"`
}

// Unknown is returned when no class matches.
var Unknown = Class{Name: "Unknown"}

type trainPattern struct {
	re    *regexp.Regexp
	class Class
}

// Train sets are matched by the leading car's fleet number.
var trainPatterns = []trainPattern{
	{regexp.MustCompile(`^9\d{3}`), Class{Name: "HCMT", LowFloor: true}},
	{regexp.MustCompile(`^7\d\dM`), Class{Name: "Siemens"}},
	{regexp.MustCompile(`^[3-6]\d\dM`), Class{Name: "Comeng"}},
	{regexp.MustCompile(`^(\d{1,3}|8\d\d)M`), Class{Name: "X'Trapolis"}},
}

type tramRange struct {
	from, to int
	class    Class
}

var tramRanges = []tramRange{
	{231, 300, Class{Name: "A"}},
	{2001, 2132, Class{Name: "B"}},
	{3001, 3036, Class{Name: "C", LowFloor: true}},
	{3501, 3538, Class{Name: "D1", LowFloor: true}},
	{5001, 5021, Class{Name: "D2", LowFloor: true}},
	{6001, 6100, Class{Name: "E", LowFloor: true}},
}

var leadingDigits = regexp.MustCompile(`^\d+`)

// Classify returns the class of the vehicle with the given fleet id.
func Classify(rt transit.RouteType, fleetID string) (Class, bool) {
	id := strings.ToUpper(strings.TrimSpace(fleetID))
	if id == "" {
		return Unknown, false
	}

	switch rt {
	case transit.RouteTypeTrain:
		for _, p := range trainPatterns {
			if p.re.MatchString(id) {
				return p.class, true
			}
		}
	case transit.RouteTypeTram:
		n, err := strconv.Atoi(leadingDigits.FindString(id))
		if err != nil {
			return Unknown, false
		}
		for _, r := range tramRanges {
			if n >= r.from && n <= r.to {
				return r.class, true
			}
		}
	}
	return Unknown, false
}

// ClassifyRun classifies a run's vehicle, falling back to the upstream
// description.
func ClassifyRun(run *transit.Run) (Class, bool) {
	if run == nil || run.Vehicle == nil {
		return Unknown, false
	}
	if c, ok := Classify(run.RouteType, run.Vehicle.ID); ok {
		if run.Vehicle.LowFloor != nil {
			c.LowFloor = *run.Vehicle.LowFloor
		}
		return c, true
	}
	if d := strings.TrimSpace(run.Vehicle.Description); d != "" {
		c := Class{Name: d}
		if run.Vehicle.LowFloor != nil {
			c.LowFloor = *run.Vehicle.LowFloor
		}
		return c, true
	}
	return Unknown, false
}
