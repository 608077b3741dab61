package settings

import (
	"context"
	"errors"
)

// ErrPreferenceNotFound is returned when an owner has no value for a key.
var ErrPreferenceNotFound = errors.New("preference not found")

// Repository defines the interface for settings storage.
type Repository interface {
	// GetPreference retrieves one of an owner's preferences.
	GetPreference(ctx context.Context, owner, key string) (*Preference, error)

	// ListPreferences retrieves all of an owner's stored preferences.
	ListPreferences(ctx context.Context, owner string) (map[string]*Preference, error)

	// PutPreference creates or updates a preference.
	PutPreference(ctx context.Context, pref *Preference) error

	// DeletePreference removes a preference. Returns ErrPreferenceNotFound
	// if it was not set.
	DeletePreference(ctx context.Context, owner, key string) error

	// ListRecents returns a recents list, most recent first.
	ListRecents(ctx context.Context, owner, list string) ([]RecentItem, error)

	// PushRecent adds item to the front of a recents list and returns the
	// resulting list.
	PushRecent(ctx context.Context, owner, list string, item RecentItem, capacity int) ([]RecentItem, error)

	// ClearRecents empties a recents list.
	ClearRecents(ctx context.Context, owner, list string) error
}
