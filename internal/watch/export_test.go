package watch

import "time"

// SetClock overrides the clock used for session idle tracking.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
