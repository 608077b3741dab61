package auth

import "time"

// SetClock overrides the clock used for token timestamps.
func (s *JWTService) SetClock(now func() time.Time) {
	s.now = now
}
