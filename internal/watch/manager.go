package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("watch session not found")
	ErrTooManySessions = errors.New("too many watch sessions")
	ErrInvalidRequest  = errors.New("invalid watch request")
	ErrShutdown        = errors.New("watch manager is shut down")
)

// PatternSource fetches run patterns. FreshPattern must report upstream
// failures rather than serve stale data, so a failed cycle is visible to the
// watcher.
type PatternSource interface {
	FreshPattern(ctx context.Context, runRef string, routeType transit.RouteType) (*transit.Departures, error)
}

// ManagerConfig holds configuration for the session manager.
type ManagerConfig struct {
	// Source fetches patterns (required).
	Source PatternSource

	// Interval between refreshes of each session (default: 30s).
	Interval time.Duration

	// IdleTTL closes sessions not read or updated for this long (default: 10m).
	IdleTTL time.Duration

	// SweepInterval is how often idle sessions are swept (default: 1m).
	SweepInterval time.Duration

	// MaxSessions bounds open sessions across all owners (default: 1000).
	MaxSessions int

	// MaxPerOwner bounds open sessions per owner (default: 5).
	MaxPerOwner int

	// Logger for session lifecycle events.
	Logger zerolog.Logger
}

// OpenRequest describes the pattern screen being opened.
type OpenRequest struct {
	RunRef    string
	RouteType transit.RouteType
	FromStop  int
	Hidden    bool
}

// Session is one open pattern screen.
type Session struct {
	ID        string
	Owner     string
	RunRef    string
	RouteType transit.RouteType
	FromStop  int
	CreatedAt time.Time

	watcher *Watcher[*pattern.Snapshot]

	mu       sync.Mutex
	lastSeen time.Time
}

// View is the current state of a session.
type View struct {
	Session  *Session
	State    State
	Snapshot *pattern.Snapshot
	Rows     []pattern.Row
	Stats    Stats
}

// View lays out the latest snapshot.
func (s *Session) View(expanded bool) View {
	v := View{
		Session: s,
		State:   s.watcher.State(),
		Stats:   s.watcher.Stats(),
	}
	if snap, ok := s.watcher.Snapshot(); ok {
		v.Snapshot = snap
		v.Rows = snap.Rows(pattern.LayoutOptions{Expanded: expanded, FromStop: s.FromStop})
	}
	return v
}

// Visible reports the recorded visibility.
func (s *Session) Visible() bool {
	return s.watcher.Visible()
}

// LastSeen returns when the session was last read or updated.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

// Manager owns the watch sessions of all devices.
type Manager struct {
	source        PatternSource
	interval      time.Duration
	idleTTL       time.Duration
	sweepInterval time.Duration
	maxSessions   int
	maxPerOwner   int
	logger        zerolog.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager. Sessions run until closed, swept or
// Shutdown.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		source:        cfg.Source,
		interval:      cfg.Interval,
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		maxSessions:   cfg.MaxSessions,
		maxPerOwner:   cfg.MaxPerOwner,
		logger:        cfg.Logger,
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	if m.idleTTL <= 0 {
		m.idleTTL = 10 * time.Minute
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = time.Minute
	}
	if m.maxSessions <= 0 {
		m.maxSessions = 1000
	}
	if m.maxPerOwner <= 0 {
		m.maxPerOwner = 5
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Start runs the idle sweeper until ctx is done or Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Info().Int("closed", n).Msg("swept idle watch sessions")
				}
			}
		}
	}()
}

// newSessionID returns a time-ordered session id.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "wch_" + id.String()
}

// Open starts a refreshing session for owner.
func (m *Manager) Open(owner string, req OpenRequest) (*Session, error) {
	if req.RunRef == "" {
		return nil, fmt.Errorf("%w: runRef is required", ErrInvalidRequest)
	}
	if !req.RouteType.Valid() {
		return nil, fmt.Errorf("%w: unknown route type %d", ErrInvalidRequest, int(req.RouteType))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShutdown
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, ErrTooManySessions
	}
	owned := 0
	for _, s := range m.sessions {
		if s.Owner == owner {
			owned++
		}
	}
	if owned >= m.maxPerOwner {
		return nil, fmt.Errorf("%w: limit of %d per device", ErrTooManySessions, m.maxPerOwner)
	}

	now := m.now()
	s := &Session{
		ID:        newSessionID(),
		Owner:     owner,
		RunRef:    req.RunRef,
		RouteType: req.RouteType,
		FromStop:  req.FromStop,
		CreatedAt: now,
		lastSeen:  now,
	}

	source := m.source
	s.watcher = NewWatcher(WatcherConfig[*pattern.Snapshot]{
		Name:     s.ID,
		Interval: m.interval,
		Hidden:   req.Hidden,
		Logger:   m.logger.With().Str("session_id", s.ID).Str("run_ref", s.RunRef).Logger(),
		Fetch: func(ctx context.Context) (*pattern.Snapshot, error) {
			resp, err := source.FreshPattern(ctx, s.RunRef, s.RouteType)
			if err != nil {
				return nil, err
			}
			return pattern.NewSnapshot(resp, s.RunRef, time.Now()), nil
		},
	})
	s.watcher.Start(m.ctx)

	m.sessions[s.ID] = s

	m.logger.Debug().
		Str("session_id", s.ID).
		Str("owner", owner).
		Str("run_ref", s.RunRef).
		Msg("watch session opened")

	return s, nil
}

// Get returns an owner's session and marks it as seen.
func (m *Manager) Get(owner, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok || s.Owner != owner {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// SetVisible records the visibility of an owner's session.
func (m *Manager) SetVisible(owner, id string, visible bool) (*Session, error) {
	s, err := m.Get(owner, id)
	if err != nil {
		return nil, err
	}
	s.watcher.SetVisible(visible)
	return s, nil
}

// Close tears down an owner's session.
func (m *Manager) Close(owner, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.watcher.Stop()
	return nil
}

// Sweep closes sessions idle for longer than the idle TTL and returns how
// many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.watcher.Stop()
	}
	return len(idle)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Load summarises the open sessions for status reporting.
type Load struct {
	Open     int
	Visible  int
	Capacity int
}

// Load counts open and visible sessions against the manager's capacity.
func (m *Manager) Load() Load {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	l := Load{Open: len(sessions), Capacity: m.maxSessions}
	for _, s := range sessions {
		if s.Visible() {
			l.Visible++
		}
	}
	return l
}

// Shutdown stops every session and the sweeper.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		s.watcher.Stop()
	}
	m.wg.Wait()
}
