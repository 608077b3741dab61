package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nextstop/nextstop/internal/cache"
)

// Provider is an upstream timetable source.
type Provider interface {
	// Departures fetches upcoming departures for a stop.
	Departures(ctx context.Context, routeType RouteType, stopID int, opts DeparturesOptions) (*Departures, error)

	// Pattern fetches the stopping pattern of a run.
	Pattern(ctx context.Context, runRef string, routeType RouteType) (*Departures, error)

	// Search finds stops and routes.
	Search(ctx context.Context, term string, routeTypes []RouteType) (*SearchResult, error)

	// Disruptions fetches all current disruptions.
	Disruptions(ctx context.Context) ([]Disruption, error)

	// Name returns the provider name for logging.
	Name() string
}

// CacheMetrics receives cache outcomes per operation.
type CacheMetrics interface {
	RecordCacheHit(ctx context.Context, operation string)
	RecordCacheMiss(ctx context.Context, operation string)
	RecordStaleServed(ctx context.Context, operation string)
}

// Cached operations.
const (
	OpDepartures  = "departures"
	OpPattern     = "pattern"
	OpSearch      = "search"
	OpDisruptions = "disruptions"
)

// ServiceConfig holds configuration for the transit service.
type ServiceConfig struct {
	// Provider is the upstream timetable source.
	Provider Provider

	// Cache stores provider results. Defaults to an in-memory store.
	Cache cache.Store

	// Metrics receives cache outcomes (optional).
	Metrics CacheMetrics

	// Logger for service operations.
	Logger zerolog.Logger

	// DeparturesTTL is how long departures stay fresh (default: 15s).
	DeparturesTTL time.Duration

	// PatternTTL is how long a run pattern stays fresh (default: 15s).
	PatternTTL time.Duration

	// SearchTTL is how long search results stay fresh (default: 10m).
	SearchTTL time.Duration

	// DisruptionsTTL is how long disruptions stay fresh (default: 5m).
	DisruptionsTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 30m).
	StaleIfErrorTTL time.Duration
}

// Service provides timetable data with caching and stale-if-error fallback.
type Service struct {
	provider Provider
	store    cache.Store
	metrics  CacheMetrics
	logger   zerolog.Logger
	group    singleflight.Group
	now      func() time.Time

	departuresTTL   time.Duration
	patternTTL      time.Duration
	searchTTL       time.Duration
	disruptionsTTL  time.Duration
	staleIfErrorTTL time.Duration
}

// NewService creates a new transit service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		store:           cfg.Cache,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             time.Now,
		departuresTTL:   durationOrDefault(cfg.DeparturesTTL, 15*time.Second),
		patternTTL:      durationOrDefault(cfg.PatternTTL, 15*time.Second),
		searchTTL:       durationOrDefault(cfg.SearchTTL, 10*time.Minute),
		disruptionsTTL:  durationOrDefault(cfg.DisruptionsTTL, 5*time.Minute),
		staleIfErrorTTL: durationOrDefault(cfg.StaleIfErrorTTL, 30*time.Minute),
	}
	if s.store == nil {
		s.store = cache.NewMemoryStore()
	}
	return s
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ProviderName returns the upstream provider name.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Departures returns upcoming departures for a stop.
func (s *Service) Departures(ctx context.Context, routeType RouteType, stopID int, opts DeparturesOptions) (*Departures, error) {
	return fetchCached(ctx, s, OpDepartures, departuresKey(routeType, stopID, opts), s.departuresTTL, fetchPolicy{},
		func(ctx context.Context) (*Departures, error) {
			return s.provider.Departures(ctx, routeType, stopID, opts)
		})
}

// WarmDepartures refreshes the cached departures for a stop regardless of
// freshness.
func (s *Service) WarmDepartures(ctx context.Context, routeType RouteType, stopID int, opts DeparturesOptions) (*Departures, error) {
	return fetchCached(ctx, s, OpDepartures, departuresKey(routeType, stopID, opts), s.departuresTTL, fetchPolicy{force: true},
		func(ctx context.Context) (*Departures, error) {
			return s.provider.Departures(ctx, routeType, stopID, opts)
		})
}

// Pattern returns the stopping pattern of a run.
func (s *Service) Pattern(ctx context.Context, runRef string, routeType RouteType) (*Departures, error) {
	return s.pattern(ctx, runRef, routeType, fetchPolicy{})
}

// FreshPattern is Pattern without the stale-if-error fallback: a provider
// failure is returned even when an older entry is cached. Refresh loops use
// it so a failed cycle keeps their own snapshot instead of republishing
// stale estimates.
func (s *Service) FreshPattern(ctx context.Context, runRef string, routeType RouteType) (*Departures, error) {
	return s.pattern(ctx, runRef, routeType, fetchPolicy{noStale: true})
}

func (s *Service) pattern(ctx context.Context, runRef string, routeType RouteType, policy fetchPolicy) (*Departures, error) {
	key := fmt.Sprintf("pattern:%d:%s", int(routeType), runRef)
	return fetchCached(ctx, s, OpPattern, key, s.patternTTL, policy,
		func(ctx context.Context) (*Departures, error) {
			return s.provider.Pattern(ctx, runRef, routeType)
		})
}

// Search returns stops and routes matching term.
func (s *Service) Search(ctx context.Context, term string, routeTypes []RouteType) (*SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrInvalidRequest)
	}

	modes := make([]string, 0, len(routeTypes))
	for _, rt := range routeTypes {
		modes = append(modes, strconv.Itoa(int(rt)))
	}
	sort.Strings(modes)

	key := "search:" + strings.Join(modes, ",") + ":" + strings.ToLower(term)
	return fetchCached(ctx, s, OpSearch, key, s.searchTTL, fetchPolicy{},
		func(ctx context.Context) (*SearchResult, error) {
			return s.provider.Search(ctx, term, routeTypes)
		})
}

// Disruptions returns all current disruptions.
func (s *Service) Disruptions(ctx context.Context) ([]Disruption, error) {
	return fetchCached(ctx, s, OpDisruptions, "disruptions", s.disruptionsTTL, fetchPolicy{}, s.provider.Disruptions)
}

// ActiveDisruptions returns disruptions in effect now, optionally limited to
// one route (routeID 0 means all routes).
func (s *Service) ActiveDisruptions(ctx context.Context, routeID int) ([]Disruption, error) {
	all, err := s.Disruptions(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := make([]Disruption, 0, len(all))
	for i := range all {
		if !all[i].IsActive(now) {
			continue
		}
		if routeID != 0 && !all[i].AffectsRoute(routeID) {
			continue
		}
		active = append(active, all[i])
	}
	return active, nil
}

// Ping checks the cache backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func departuresKey(routeType RouteType, stopID int, opts DeparturesOptions) string {
	platforms := append([]string(nil), opts.Platforms...)
	sort.Strings(platforms)
	return fmt.Sprintf("departures:%d:%d:%d:%s", int(routeType), stopID, opts.MaxResults, strings.Join(platforms, ","))
}

type cacheEnvelope[T any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	Value     T         `json:"value"`
}

// fetchPolicy tunes fetchCached for one call.
type fetchPolicy struct {
	// force skips the fresh-entry check.
	force bool
	// noStale returns provider errors instead of serving a stale entry.
	noStale bool
}

// fetchCached serves key from the cache while fresh, otherwise fetches it.
// On a provider failure a stale entry within the stale-if-error window is
// served instead, unless policy.noStale. Concurrent fetches of one key are
// coalesced.
func fetchCached[T any](
	ctx context.Context,
	s *Service,
	op, key string,
	ttl time.Duration,
	policy fetchPolicy,
	fetch func(context.Context) (T, error),
) (T, error) {
	var zero T

	cached, hasCached := readEnvelope[T](ctx, s, key)
	if hasCached && !policy.force && s.now().Sub(cached.FetchedAt) < ttl {
		s.recordHit(ctx, op)
		return cached.Value, nil
	}
	s.recordMiss(ctx, op)

	v, err, _ := s.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.writeEnvelope(ctx, key, cacheEnvelope[T]{FetchedAt: s.now(), Value: value}, ttl)
		return value, nil
	})
	if err == nil {
		return v.(T), nil //nolint:forcetypeassert // only T is stored under key
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRequest) {
		return zero, err
	}

	s.logger.Error().Err(err).
		Str("provider", s.provider.Name()).
		Str("operation", op).
		Str("key", key).
		Msg("provider request failed")

	if hasCached && !policy.noStale && s.now().Sub(cached.FetchedAt) < s.staleIfErrorTTL {
		s.logger.Warn().
			Str("key", key).
			Time("fetched_at", cached.FetchedAt).
			Msg("serving stale data due to provider error")
		if s.metrics != nil {
			s.metrics.RecordStaleServed(ctx, op)
		}
		return cached.Value, nil
	}

	if errors.Is(err, ErrProviderUnavailable) {
		return zero, err
	}
	return zero, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func readEnvelope[T any](ctx context.Context, s *Service, key string) (cacheEnvelope[T], bool) {
	var env cacheEnvelope[T]

	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("key", key).Str("cache", s.store.Name()).Msg("cache read failed")
		}
		return env, false
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return env, false
	}
	return env, true
}

func (s *Service) writeEnvelope(ctx context.Context, key string, env any, ttl time.Duration) {
	raw, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("encoding cache entry")
		return
	}

	// Entries are kept for the stale window so they can back a failed refresh.
	expiry := s.staleIfErrorTTL
	if ttl > expiry {
		expiry = ttl
	}
	if err := s.store.Set(context.WithoutCancel(ctx), key, raw, expiry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Str("cache", s.store.Name()).Msg("cache write failed")
	}
}

func (s *Service) recordHit(ctx context.Context, op string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(ctx, op)
	}
}

func (s *Service) recordMiss(ctx context.Context, op string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(ctx, op)
	}
}
