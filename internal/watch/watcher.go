// Package watch keeps pattern views refreshed while their screen is visible.
package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/transit"
)

// State is the refresh loop state.
type State string

// Watcher states.
const (
	StateFirstLoad State = "first_load"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Failure categories.
const (
	FailureTransport = "transport"
	FailureDecode    = "decode"
)

// FetchFunc fetches and rebuilds one snapshot.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// WatcherConfig holds configuration for a Watcher.
type WatcherConfig[T any] struct {
	// Name identifies the watcher in logs.
	Name string

	// Interval is the delay between the end of one refresh and the start
	// of the next.
	Interval time.Duration

	// Fetch produces a new snapshot.
	Fetch FetchFunc[T]

	// OnUpdate, if set, is called with each new snapshot from the loop.
	OnUpdate func(T)

	// Hidden starts the watcher paused.
	Hidden bool

	// Logger for refresh failures.
	Logger zerolog.Logger
}

// Stats counts refresh outcomes.
type Stats struct {
	Fetches           int64
	Failures          int64
	TransportFailures int64
	DecodeFailures    int64
	LastError         string
	LastFailureAt     time.Time
	UpdatedAt         time.Time
}

// Watcher runs a single fetch-and-rebuild loop. At most one fetch is in
// flight. While hidden no fetch is made; becoming visible again after a
// successful load triggers one immediate refresh.
type Watcher[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	onUpdate func(T)
	logger   zerolog.Logger

	visible  atomic.Bool
	loaded   atomic.Bool
	stopped  atomic.Bool
	wake     chan struct{}
	snapshot atomic.Pointer[T]

	statsMu sync.Mutex
	stats   Stats

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin refreshing.
func NewWatcher[T any](cfg WatcherConfig[T]) *Watcher[T] {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &Watcher[T]{
		name:     cfg.Name,
		interval: interval,
		fetch:    cfg.Fetch,
		onUpdate: cfg.OnUpdate,
		logger:   cfg.Logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.visible.Store(!cfg.Hidden)
	return w
}

// Start runs the loop until ctx is done or Stop is called.
func (w *Watcher[T]) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)
		go w.run(ctx)
	})
}

// Stop tears the loop down and waits for it to exit.
func (w *Watcher[T]) Stop() {
	w.startOnce.Do(func() { close(w.done) })
	w.stopped.Store(true)
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

// SetVisible records the screen visibility.
func (w *Watcher[T]) SetVisible(visible bool) {
	was := w.visible.Swap(visible)
	if visible && !was {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// Visible reports the last recorded visibility.
func (w *Watcher[T]) Visible() bool {
	return w.visible.Load()
}

// Snapshot returns the latest published snapshot.
func (w *Watcher[T]) Snapshot() (T, bool) {
	p := w.snapshot.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// State returns the current loop state.
func (w *Watcher[T]) State() State {
	switch {
	case w.stopped.Load():
		return StateStopped
	case !w.visible.Load():
		return StatePaused
	case !w.loaded.Load():
		return StateFirstLoad
	default:
		return StateActive
	}
}

// Stats returns a copy of the refresh counters.
func (w *Watcher[T]) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// Done is closed when the loop has exited.
func (w *Watcher[T]) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher[T]) run(ctx context.Context) {
	defer close(w.done)
	defer w.stopped.Store(true)

	timer := time.NewTimer(0)
	defer timer.Stop()

	// held is set when a tick fell due while paused.
	held := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			if !w.visible.Load() {
				held = true
				continue
			}
			w.refresh(ctx)
			timer.Reset(w.interval)

		case <-w.wake:
			if !w.visible.Load() {
				continue
			}
			if !w.loaded.Load() && !held {
				continue
			}
			held = false
			timer.Stop()
			w.refresh(ctx)
			timer.Reset(w.interval)
		}
	}
}

func (w *Watcher[T]) refresh(ctx context.Context) {
	v, err := w.fetch(ctx)

	w.statsMu.Lock()
	w.stats.Fetches++
	w.statsMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.recordFailure(err)
		return
	}

	w.snapshot.Store(&v)
	w.loaded.Store(true)

	w.statsMu.Lock()
	w.stats.UpdatedAt = time.Now()
	w.statsMu.Unlock()

	if w.onUpdate != nil {
		w.onUpdate(v)
	}
}

func (w *Watcher[T]) recordFailure(err error) {
	category := Categorize(err)

	w.statsMu.Lock()
	w.stats.Failures++
	if category == FailureDecode {
		w.stats.DecodeFailures++
	} else {
		w.stats.TransportFailures++
	}
	w.stats.LastError = err.Error()
	w.stats.LastFailureAt = time.Now()
	w.statsMu.Unlock()

	w.logger.Warn().
		Err(err).
		Str("watcher", w.name).
		Str("category", category).
		Bool("has_snapshot", w.loaded.Load()).
		Msg("refresh failed, keeping previous snapshot")
}

// Categorize classifies a refresh error as a decode or transport failure.
func Categorize(err error) string {
	if errors.Is(err, transit.ErrMalformedResponse) {
		return FailureDecode
	}
	return FailureTransport
}
