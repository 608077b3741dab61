// Package settings stores per-device preferences and recent-item lists.
package settings

import (
	"encoding/json"
	"time"
)

// Well-known preference keys.
const (
	// KeyDefaultMode is the mode searches and departures default to.
	KeyDefaultMode = "default_mode"

	// KeyExpandedPattern opens pattern screens in the expanded view.
	KeyExpandedPattern = "expanded_pattern"

	// KeyMaxResults limits departures per stop.
	KeyMaxResults = "max_results"

	// KeyHomeStop is the stop shown on launch.
	KeyHomeStop = "home_stop"

	// KeyShowDisruptions shows disruption banners on departure boards.
	KeyShowDisruptions = "show_disruptions"
)

// Well-known recents lists.
const (
	ListStops    = "stops"
	ListSearches = "searches"
	ListRuns     = "runs"
)

// Recents capacity bounds.
const (
	DefaultRecentsCapacity = 10
	MaxRecentsCapacity     = 50
)

// Preference is a single stored preference value.
type Preference struct {
	Owner     string    `json:"-"`
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoolValue returns the value as a boolean, or def if unset or not a boolean.
func (p *Preference) BoolValue(def bool) bool {
	if p == nil {
		return def
	}
	switch v := p.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return def
	}
}

// StringValue returns the value as a string, or def.
func (p *Preference) StringValue(def string) string {
	if p == nil {
		return def
	}
	if v, ok := p.Value.(string); ok {
		return v
	}
	return def
}

// IntValue returns the value as an integer, or def.
func (p *Preference) IntValue(def int) int {
	if p == nil {
		return def
	}
	switch v := p.Value.(type) {
	case float64:
		// JSON numbers decode as float64
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// JSONValue decodes the value into target.
func (p *Preference) JSONValue(target any) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// DefaultPreferences returns the values used when an owner has not set a key.
func DefaultPreferences() map[string]any {
	return map[string]any{
		KeyDefaultMode:     "train",
		KeyExpandedPattern: false,
		KeyMaxResults:      float64(5),
		KeyShowDisruptions: true,
	}
}

// ChangeKind is the kind of preference change.
type ChangeKind string

// Change kinds.
const (
	ChangePut    ChangeKind = "put"
	ChangeDelete ChangeKind = "delete"
)

// Change is broadcast to an owner's subscribers after a write.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Key   string     `json:"key"`
	Value any        `json:"value,omitempty"`
	At    time.Time  `json:"at"`
}

// RecentItem is one entry in a recents list. Key identifies the item for
// de-duplication.
type RecentItem struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle,omitempty"`
	Ref      string    `json:"ref,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}

// pushRecent puts item at the front of items, dropping any earlier item with
// the same key and truncating to capacity.
func pushRecent(items []RecentItem, item RecentItem, capacity int) []RecentItem {
	out := make([]RecentItem, 0, min(len(items)+1, capacity))
	out = append(out, item)
	for _, it := range items {
		if len(out) == capacity {
			break
		}
		if it.Key == item.Key {
			continue
		}
		out = append(out, it)
	}
	return out
}
