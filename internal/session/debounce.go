package session

import "time"

// DebouncedRecently reports whether a render for the identity happened
// within the window. Evaluated before any render callback is invoked.
func (s *Session) DebouncedRecently(key string, window time.Duration) bool {
	last, ok := s.debounce.Get(key)
	if !ok {
		return false
	}
	return time.Since(last) < window
}

// MarkRendered records a render timestamp for the identity.
func (s *Session) MarkRendered(key string) {
	s.debounce.Add(key, time.Now())
}
