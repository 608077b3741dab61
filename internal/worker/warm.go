package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/nextstop/nextstop/internal/transit"
)

// Job types accepted by Handle.
const (
	JobWarmDepartures = "warm_departures"
	JobHealthCheck    = "health_check"
)

// ErrUnknownJob is returned for unsupported job types.
var ErrUnknownJob = errors.New("unknown job type")

// Warmer refreshes cached transit data.
type Warmer interface {
	WarmDepartures(ctx context.Context, routeType transit.RouteType, stopID int, opts transit.DeparturesOptions) (*transit.Departures, error)
	Disruptions(ctx context.Context) ([]transit.Disruption, error)
}

// WarmJob warms the departures cache for the configured stops.
type WarmJob struct {
	config WarmConfig
	logger zerolog.Logger
	warmer Warmer

	metrics *WarmMetrics
}

// WarmMetrics tracks warm job statistics.
type WarmMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns         int64
	StopsWarmed       int64
	StopsFailed       int64
	DisruptionsWarmed int64
	DisruptionsFailed int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config WarmConfig
	Logger zerolog.Logger
	Warmer Warmer
}

// NewWarmJob creates a new warm job.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	config := cfg.Config
	if len(config.Stops) == 0 {
		config.Stops = DefaultHotStops()
	}
	config.applyDefaults()

	return &WarmJob{
		config:  config,
		logger:  cfg.Logger,
		warmer:  cfg.Warmer,
		metrics: &WarmMetrics{},
	}
}

// WarmResult contains the result of a warm run.
type WarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalStops int
	Successful int
	Failed     int
	Departures int
	Errors     []WarmError
}

// WarmError represents an error warming one stop.
type WarmError struct {
	Stop  HotStop
	Error string
}

type stopResult struct {
	stop       HotStop
	departures int
	err        error
}

// Run warms every configured stop once.
func (j *WarmJob) Run(ctx context.Context) *WarmResult {
	return j.run(ctx, j.config.SortedStops())
}

func (j *WarmJob) run(ctx context.Context, stops []HotStop) *WarmResult {
	startTime := time.Now()
	result := &WarmResult{
		StartTime:  startTime,
		TotalStops: len(stops),
	}

	j.logger.Info().
		Int("total_stops", result.TotalStops).
		Int("concurrency", j.config.Concurrency).
		Msg("starting departures warm job")

	p := pool.NewWithResults[stopResult]().WithMaxGoroutines(j.config.Concurrency)
	for _, stop := range stops {
		p.Go(func() stopResult {
			return j.warmStop(ctx, stop)
		})
	}

	for _, sr := range p.Wait() {
		if sr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WarmError{Stop: sr.stop, Error: sr.err.Error()})
			continue
		}
		result.Successful++
		result.Departures += sr.departures
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("departures", result.Departures).
		Msg("departures warm job completed")

	return result
}

func (j *WarmJob) warmStop(ctx context.Context, stop HotStop) stopResult {
	result := stopResult{stop: stop}

	if err := ctx.Err(); err != nil {
		result.err = err
		return result
	}

	rt, err := stop.RouteType()
	if err != nil {
		result.err = err
		return result
	}

	stopCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	deps, err := j.warmer.WarmDepartures(stopCtx, rt, stop.StopID, transit.DeparturesOptions{MaxResults: stop.MaxResults})
	if err != nil {
		j.logger.Warn().
			Err(err).
			Str("stop", stop.Name).
			Int("stop_id", stop.StopID).
			Msg("failed to warm departures")
		result.err = err
		return result
	}

	result.departures = len(deps.Departures)
	return result
}

// WarmDisruptions refreshes the disruptions list.
func (j *WarmJob) WarmDisruptions(ctx context.Context) error {
	if !j.config.DisruptionsEnabled() {
		return nil
	}

	j.logger.Debug().Msg("warming disruptions")

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if _, err := j.warmer.Disruptions(ctx); err != nil {
		atomic.AddInt64(&j.metrics.DisruptionsFailed, 1)
		j.logger.Error().Err(err).Msg("failed to warm disruptions")
		return err
	}

	atomic.AddInt64(&j.metrics.DisruptionsWarmed, 1)
	return nil
}

// RunEvery warms on a fixed interval until ctx is done.
func (j *WarmJob) RunEvery(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		j.Run(ctx)
		_ = j.WarmDisruptions(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// JobMessage is a job request delivered over Pub/Sub.
type JobMessage struct {
	JobType string `json:"job_type"`

	// StopIDs limits warm_departures to these configured stops.
	StopIDs []int `json:"stop_ids,omitempty"`
}

// Handle runs a job message.
func (j *WarmJob) Handle(ctx context.Context, msg JobMessage) error {
	switch msg.JobType {
	case JobWarmDepartures:
		return j.handleWarm(ctx, msg)
	case JobHealthCheck:
		return j.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (j *WarmJob) handleWarm(ctx context.Context, msg JobMessage) error {
	stops := j.config.SortedStops()
	if len(msg.StopIDs) > 0 {
		wanted := make(map[int]bool, len(msg.StopIDs))
		for _, id := range msg.StopIDs {
			wanted[id] = true
		}
		filtered := stops[:0]
		for _, s := range stops {
			if wanted[s.StopID] {
				filtered = append(filtered, s)
			}
		}
		stops = filtered
	}

	result := j.run(ctx, stops)
	if err := j.WarmDisruptions(ctx); err != nil {
		j.logger.Warn().Err(err).Msg("disruptions warm failed")
	}

	// Consider it successful if more than half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many warm failures: %d/%d", result.Failed, result.TotalStops)
	}
	return nil
}

func (j *WarmJob) handleHealthCheck(ctx context.Context) error {
	stops := j.config.SortedStops()
	if len(stops) == 0 {
		return nil
	}

	// Warm the highest priority stop to verify provider connectivity.
	if sr := j.warmStop(ctx, stops[0]); sr.err != nil {
		return fmt.Errorf("health check failed: %w", sr.err)
	}

	j.logger.Debug().Msg("health check passed")
	return nil
}

func (j *WarmJob) updateMetrics(result *WarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.StopsWarmed += int64(result.Successful)
	j.metrics.StopsFailed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmJob) GetMetrics() WarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WarmMetrics{
		TotalRuns:         j.metrics.TotalRuns,
		StopsWarmed:       j.metrics.StopsWarmed,
		StopsFailed:       j.metrics.StopsFailed,
		DisruptionsWarmed: atomic.LoadInt64(&j.metrics.DisruptionsWarmed),
		DisruptionsFailed: atomic.LoadInt64(&j.metrics.DisruptionsFailed),
		LastRunAt:         j.metrics.LastRunAt,
		LastRunDuration:   j.metrics.LastRunDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *WarmJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":         m.TotalRuns,
		"stops_warmed":       m.StopsWarmed,
		"stops_failed":       m.StopsFailed,
		"disruptions_warmed": m.DisruptionsWarmed,
		"disruptions_failed": m.DisruptionsFailed,
		"last_run_at":        m.LastRunAt,
		"last_run_duration":  m.LastRunDuration.String(),
		"total_duration":     m.TotalDuration.String(),
	}
}
