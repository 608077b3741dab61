// Package worker keeps the departures cache warm for busy stops.
package worker

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextstop/nextstop/internal/transit"
)

// HotStop is a stop whose departures are kept warm.
type HotStop struct {
	// Name is the human-readable name of the stop.
	Name string `yaml:"name"`

	// StopID is the upstream stop id.
	StopID int `yaml:"stop_id"`

	// Mode is the route type name ("train", "tram", ...) or number.
	Mode string `yaml:"mode"`

	// MaxResults limits departures per route (0 uses the upstream default).
	MaxResults int `yaml:"max_results,omitempty"`

	// Priority determines warm order (lower = higher priority).
	Priority int `yaml:"priority,omitempty"`
}

// RouteType parses the stop's mode.
func (s HotStop) RouteType() (transit.RouteType, error) {
	return transit.ParseRouteType(s.Mode)
}

// WarmConfig holds configuration for the warm job.
type WarmConfig struct {
	// Stops are the stops to warm. If empty, DefaultHotStops is used.
	Stops []HotStop `yaml:"stops"`

	// Concurrency is the number of concurrent warm requests.
	// Default: 3
	Concurrency int `yaml:"concurrency,omitempty"`

	// Timeout is the timeout for each stop.
	// Default: 15 seconds
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Interval is the delay between warm runs when running on a schedule.
	// Default: 30 seconds
	Interval time.Duration `yaml:"interval,omitempty"`

	// WarmDisruptions also refreshes the network disruptions list.
	// Default: true
	WarmDisruptions *bool `yaml:"warm_disruptions,omitempty"`
}

// DefaultWarmConfig returns the default warm configuration.
func DefaultWarmConfig() WarmConfig {
	cfg := WarmConfig{Stops: DefaultHotStops()}
	cfg.applyDefaults()
	return cfg
}

// DefaultHotStops returns the central Melbourne stations and the busiest
// tram interchange.
func DefaultHotStops() []HotStop {
	return []HotStop{
		{Name: "Flinders Street", StopID: 1071, Mode: "train", Priority: 1},
		{Name: "Southern Cross", StopID: 1181, Mode: "train", Priority: 1},
		{Name: "Melbourne Central", StopID: 1120, Mode: "train", Priority: 1},
		{Name: "Parliament", StopID: 1155, Mode: "train", Priority: 2},
		{Name: "Flagstaff", StopID: 1068, Mode: "train", Priority: 2},
		{Name: "Richmond", StopID: 1162, Mode: "train", Priority: 2},
		{Name: "Swanston St/Flinders St", StopID: 2174, Mode: "tram", Priority: 3},
	}
}

// LoadWarmConfig reads a YAML warm configuration file.
func LoadWarmConfig(path string) (WarmConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WarmConfig{}, fmt.Errorf("reading warm config: %w", err)
	}
	return ParseWarmConfig(data)
}

// ParseWarmConfig parses and validates a YAML warm configuration.
func ParseWarmConfig(data []byte) (WarmConfig, error) {
	var cfg WarmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WarmConfig{}, fmt.Errorf("parsing warm config: %w", err)
	}
	if len(cfg.Stops) == 0 {
		cfg.Stops = DefaultHotStops()
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return WarmConfig{}, err
	}
	return cfg, nil
}

func (c *WarmConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.WarmDisruptions == nil {
		enabled := true
		c.WarmDisruptions = &enabled
	}
}

// Validate checks every stop has an id and a known mode.
func (c WarmConfig) Validate() error {
	var errs []error
	for i, s := range c.Stops {
		if s.StopID <= 0 {
			errs = append(errs, fmt.Errorf("stops[%d] %q: stop_id must be positive", i, s.Name))
		}
		if _, err := s.RouteType(); err != nil {
			errs = append(errs, fmt.Errorf("stops[%d] %q: %w", i, s.Name, err))
		}
		if s.MaxResults < 0 {
			errs = append(errs, fmt.Errorf("stops[%d] %q: max_results must not be negative", i, s.Name))
		}
	}
	return errors.Join(errs...)
}

// SortedStops returns the stops ordered by priority.
func (c WarmConfig) SortedStops() []HotStop {
	stops := make([]HotStop, len(c.Stops))
	copy(stops, c.Stops)
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Priority < stops[j].Priority
	})
	return stops
}

// DisruptionsEnabled reports whether disruptions are warmed.
func (c WarmConfig) DisruptionsEnabled() bool {
	return c.WarmDisruptions == nil || *c.WarmDisruptions
}
