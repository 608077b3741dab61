package livery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextstop/nextstop/internal/livery"
	"github.com/nextstop/nextstop/internal/transit"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name  string
		rt    transit.RouteType
		route int
		want  livery.Livery
	}{
		{"frankston", transit.RouteTypeTrain, 6, livery.Livery{Colour: "#028430", Group: "Cross-city"}},
		{"belgrave", transit.RouteTypeTrain, 2, livery.Livery{Colour: "#152C6B", Group: "Burnley"}},
		{"sandringham", transit.RouteTypeTrain, 12, livery.Livery{Colour: "#F178AF", Group: "Sandringham"}},
		{"unknown train line", transit.RouteTypeTrain, 99, livery.Livery{Colour: "#0072CE"}},
		{"tram", transit.RouteTypeTram, 6, livery.Livery{Colour: "#78BE20"}},
		{"night bus", transit.RouteTypeNightBus, 1, livery.Livery{Colour: "#FF8200"}},
		{"vline", transit.RouteTypeVLine, 1, livery.Livery{Colour: "#8F1A95"}},
		{"unknown mode", transit.RouteType(9), 1, livery.Livery{Colour: livery.Default}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, livery.For(tt.rt, tt.route))
		})
	}
}
