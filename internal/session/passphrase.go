package session

// Passphrase returns the session-cached passphrase for a key.
func (s *Session) Passphrase(keyName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passphrases[keyName]
	return p, ok
}

// SetPassphrase caches a successfully used passphrase for the session.
func (s *Session) SetPassphrase(keyName, passphrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passphrases[keyName] = passphrase
}

// NeedsPassphrase returns the cached needs-passphrase determination for a
// key. known is false when the key has not been probed this session.
func (s *Session) NeedsPassphrase(keyName string) (needs bool, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needs, known = s.needsPassphrase[keyName]
	return needs, known
}

// SetNeedsPassphrase caches the needs-passphrase probe result for a key.
func (s *Session) SetNeedsPassphrase(keyName string, needs bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsPassphrase[keyName] = needs
}

// ForgetKey drops the cached passphrase and needs-passphrase determination
// for a key, called when the key is replaced or removed.
func (s *Session) ForgetKey(keyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passphrases, keyName)
	delete(s.needsPassphrase, keyName)
}

// MissingKeyNotified reports whether the missing-key notification was
// already shown (or dismissed) for the account this session.
func (s *Session) MissingKeyNotified(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missingKeyNotified[accountID]
}

// MarkMissingKeyNotified suppresses further missing-key notifications for
// the account until the session resets.
func (s *Session) MarkMissingKeyNotified(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingKeyNotified[accountID] = true
}
