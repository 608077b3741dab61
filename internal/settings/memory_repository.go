package settings

import (
	"context"
	"slices"
	"sync"
)

type recentsKey struct {
	owner string
	list  string
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	prefs   map[string]map[string]*Preference
	recents map[recentsKey][]RecentItem
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		prefs:   make(map[string]map[string]*Preference),
		recents: make(map[recentsKey][]RecentItem),
	}
}

// GetPreference retrieves one of an owner's preferences.
func (r *InMemoryRepository) GetPreference(_ context.Context, owner, key string) (*Preference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prefs[owner][key]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPreferences retrieves all of an owner's stored preferences.
func (r *InMemoryRepository) ListPreferences(_ context.Context, owner string) (map[string]*Preference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Preference, len(r.prefs[owner]))
	for k, v := range r.prefs[owner] {
		cp := *v
		result[k] = &cp
	}
	return result, nil
}

// PutPreference creates or updates a preference.
func (r *InMemoryRepository) PutPreference(_ context.Context, pref *Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.prefs[pref.Owner]
	if !ok {
		owned = make(map[string]*Preference)
		r.prefs[pref.Owner] = owned
	}
	cp := *pref
	owned[pref.Key] = &cp
	return nil
}

// DeletePreference removes a preference.
func (r *InMemoryRepository) DeletePreference(_ context.Context, owner, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prefs[owner][key]; !ok {
		return ErrPreferenceNotFound
	}
	delete(r.prefs[owner], key)
	return nil
}

// ListRecents returns a recents list, most recent first.
func (r *InMemoryRepository) ListRecents(_ context.Context, owner, list string) ([]RecentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.recents[recentsKey{owner, list}]), nil
}

// PushRecent adds item to the front of a recents list.
func (r *InMemoryRepository) PushRecent(_ context.Context, owner, list string, item RecentItem, capacity int) ([]RecentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := recentsKey{owner, list}
	r.recents[k] = pushRecent(r.recents[k], item, capacity)
	return slices.Clone(r.recents[k]), nil
}

// ClearRecents empties a recents list.
func (r *InMemoryRepository) ClearRecents(_ context.Context, owner, list string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.recents, recentsKey{owner, list})
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
