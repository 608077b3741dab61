package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/transit"
)

// Validation constants.
const (
	MaxStringLength = 200
	MaxTitleLength  = 120
	MaxMaxResults   = 50
)

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ServiceConfig holds configuration for the settings service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Defaults are returned for keys an owner has not set
	// (default: DefaultPreferences()).
	Defaults map[string]any

	// SubscriberBuffer is the per-subscriber change buffer (default: 16).
	SubscriberBuffer int
}

// Service provides preferences, change notifications and recents.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	defaults map[string]any
	buffer   int
	now      func() time.Time

	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	dropped atomic.Int64
}

type subscriber struct {
	ch   chan Change
	once sync.Once
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig) *Service {
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultPreferences()
	}
	buffer := cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		defaults: defaults,
		buffer:   buffer,
		now:      time.Now,
		subs:     make(map[string]map[*subscriber]struct{}),
	}
}

// Get returns an owner's preference, falling back to the default value.
func (s *Service) Get(ctx context.Context, owner, key string) (*Preference, error) {
	pref, err := s.repo.GetPreference(ctx, owner, key)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrPreferenceNotFound) {
		return nil, err
	}
	if def, ok := s.defaults[key]; ok {
		return &Preference{Owner: owner, Key: key, Value: def}, nil
	}
	return nil, ErrPreferenceNotFound
}

// List returns an owner's stored preferences merged over the defaults.
func (s *Service) List(ctx context.Context, owner string) (map[string]*Preference, error) {
	stored, err := s.repo.ListPreferences(ctx, owner)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*Preference, len(s.defaults)+len(stored))
	for k, v := range s.defaults {
		result[k] = &Preference{Owner: owner, Key: k, Value: v}
	}
	for k, v := range stored {
		result[k] = v
	}
	return result, nil
}

// Put validates and stores a preference, then notifies subscribers.
func (s *Service) Put(ctx context.Context, owner, key string, value any) (*Preference, error) {
	value, fieldErrors := validatePreference(key, value)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	pref := &Preference{
		Owner:     owner,
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.PutPreference(ctx, pref); err != nil {
		return nil, err
	}

	s.publish(owner, Change{Kind: ChangePut, Key: key, Value: value, At: pref.UpdatedAt})
	return pref, nil
}

// Delete removes a stored preference, then notifies subscribers.
func (s *Service) Delete(ctx context.Context, owner, key string) error {
	if err := s.repo.DeletePreference(ctx, owner, key); err != nil {
		return err
	}
	s.publish(owner, Change{Kind: ChangeDelete, Key: key, At: s.now().UTC()})
	return nil
}

// Bool returns a boolean preference or def.
func (s *Service) Bool(ctx context.Context, owner, key string, def bool) bool {
	return s.lookup(ctx, owner, key).BoolValue(def)
}

// Int returns an integer preference or def.
func (s *Service) Int(ctx context.Context, owner, key string, def int) int {
	return s.lookup(ctx, owner, key).IntValue(def)
}

// String returns a string preference or def.
func (s *Service) String(ctx context.Context, owner, key string, def string) string {
	return s.lookup(ctx, owner, key).StringValue(def)
}

// DefaultMode returns the owner's default mode.
func (s *Service) DefaultMode(ctx context.Context, owner string) transit.RouteType {
	rt, err := transit.ParseRouteType(s.String(ctx, owner, KeyDefaultMode, "train"))
	if err != nil {
		return transit.RouteTypeTrain
	}
	return rt
}

func (s *Service) lookup(ctx context.Context, owner, key string) *Preference {
	pref, err := s.Get(ctx, owner, key)
	if err != nil {
		if !errors.Is(err, ErrPreferenceNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read preference, using default")
		}
		return nil
	}
	return pref
}

// Subscribe returns a channel of the owner's preference changes and a
// cancel func that closes it. Changes are dropped for subscribers whose
// buffer is full.
func (s *Service) Subscribe(owner string) (<-chan Change, func()) {
	sub := &subscriber{ch: make(chan Change, s.buffer)}

	s.mu.Lock()
	owned, ok := s.subs[owner]
	if !ok {
		owned = make(map[*subscriber]struct{})
		s.subs[owner] = owned
	}
	owned[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs[owner], sub)
		if len(s.subs[owner]) == 0 {
			delete(s.subs, owner)
		}
		s.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Subscribers returns the number of open subscriptions for owner.
func (s *Service) Subscribers(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[owner])
}

// Dropped returns the number of changes dropped for slow subscribers.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Service) publish(owner string, change Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.subs[owner] {
		select {
		case sub.ch <- change:
		default:
			s.dropped.Add(1)
			s.logger.Debug().Str("key", change.Key).Msg("dropped settings change for slow subscriber")
		}
	}
}

// Recents returns a recents list, most recent first.
func (s *Service) Recents(ctx context.Context, owner, list string) ([]RecentItem, error) {
	if !nameRegex.MatchString(list) {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "list", Message: "must be lowercase letters, digits or underscores", Code: "INVALID_FORMAT"},
		}}
	}
	items, err := s.repo.ListRecents(ctx, owner, list)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []RecentItem{}
	}
	return items, nil
}

// PushRecent adds item to the front of a recents list. A capacity of zero
// uses DefaultRecentsCapacity; larger values are capped at
// MaxRecentsCapacity.
func (s *Service) PushRecent(ctx context.Context, owner, list string, item RecentItem, capacity int) ([]RecentItem, error) {
	var fieldErrors []models.FieldError
	if !nameRegex.MatchString(list) {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "list", Message: "must be lowercase letters, digits or underscores", Code: "INVALID_FORMAT",
		})
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "key", Message: "key is required", Code: "REQUIRED"})
	}
	if strings.TrimSpace(item.Title) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "title", Message: "title is required", Code: "REQUIRED"})
	} else if len(item.Title) > MaxTitleLength {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength), Code: "TOO_LONG",
		})
	}
	if capacity < 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "capacity", Message: "capacity must not be negative", Code: "OUT_OF_RANGE"})
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	switch {
	case capacity == 0:
		capacity = DefaultRecentsCapacity
	case capacity > MaxRecentsCapacity:
		capacity = MaxRecentsCapacity
	}

	item.AddedAt = s.now().UTC()
	return s.repo.PushRecent(ctx, owner, list, item, capacity)
}

// ClearRecents empties a recents list.
func (s *Service) ClearRecents(ctx context.Context, owner, list string) error {
	return s.repo.ClearRecents(ctx, owner, list)
}

// validatePreference checks a key and value and returns the value in its
// stored form.
func validatePreference(key string, value any) (any, []models.FieldError) {
	var errs []models.FieldError

	if !nameRegex.MatchString(key) {
		errs = append(errs, models.FieldError{
			Field: "key", Message: "must be lowercase letters, digits or underscores", Code: "INVALID_FORMAT",
		})
		return nil, errs
	}

	switch v := value.(type) {
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case bool, float64:
	case string:
		if len(v) > MaxStringLength {
			errs = append(errs, models.FieldError{
				Field: "value", Message: fmt.Sprintf("must be at most %d characters", MaxStringLength), Code: "TOO_LONG",
			})
		}
	default:
		errs = append(errs, models.FieldError{
			Field: "value", Message: "must be a boolean, number or string", Code: "INVALID_TYPE",
		})
		return nil, errs
	}

	switch key {
	case KeyDefaultMode:
		mode, ok := value.(string)
		if _, err := transit.ParseRouteType(mode); !ok || err != nil {
			errs = append(errs, models.FieldError{Field: "value", Message: "must be a known mode", Code: "INVALID_VALUE"})
		}
	case KeyExpandedPattern, KeyShowDisruptions:
		if _, ok := value.(bool); !ok {
			errs = append(errs, models.FieldError{Field: "value", Message: "must be a boolean", Code: "INVALID_TYPE"})
		}
	case KeyMaxResults:
		n, ok := value.(float64)
		if !ok || n != float64(int(n)) || n < 1 || n > MaxMaxResults {
			errs = append(errs, models.FieldError{
				Field: "value", Message: fmt.Sprintf("must be a whole number between 1 and %d", MaxMaxResults), Code: "OUT_OF_RANGE",
			})
		}
	case KeyHomeStop:
		n, ok := value.(float64)
		if !ok || n != float64(int(n)) || n < 1 {
			errs = append(errs, models.FieldError{Field: "value", Message: "must be a stop id", Code: "INVALID_VALUE"})
		}
	}

	return value, errs
}
