package session

import "github.com/mailvault/mailvault/internal/models"

// CachedPage returns the in-memory copy of a folder page, used for the
// synchronous instant paint before any persistent or network work.
func (s *Session) CachedPage(key string) ([]models.Message, bool) {
	return s.pageCache.Get(key)
}

// StorePage replaces the in-memory copy of a folder page.
func (s *Session) StorePage(key string, messages []models.Message) {
	s.pageCache.Add(key, messages)
}
