package settings

import "time"

// SetClock overrides the clock used for timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
