package session

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
)

const (
	// DebounceCacheSize bounds the per-identity last-render map so it cannot
	// grow with mailbox size; eviction is LRU-by-use which approximates
	// LRU-by-timestamp for render tracking.
	DebounceCacheSize = 512
	// PageCacheSize bounds the in-memory folder page cache.
	PageCacheSize = 64
)

// Session owns the process-wide mutable state shared by the cache
// coordinator, the list sync engine and the decrypt pipeline: the active
// account's cancellation domain, the in-flight operation registry, the
// debounce map, the in-memory page cache and the passphrase caches.
//
// Lifecycle: SetActiveAccount cancels every operation of the previous
// account and clears account-scoped maps; Dispose tears the session down.
// Constructing one Session per test gives fully independent state.
type Session struct {
	log logger.Logger

	mu            sync.Mutex
	accountID     string
	accountCtx    context.Context
	accountCancel context.CancelFunc

	inflight  map[string]*Flight
	debounce  *lru.Cache[string, time.Time]
	pageCache *lru.Cache[string, []models.Message]

	passphrases        map[string]string
	needsPassphrase    map[string]bool
	missingKeyNotified map[string]bool

	disposed bool
}

func New(log logger.Logger) *Session {
	debounce, _ := lru.New[string, time.Time](DebounceCacheSize)
	pageCache, _ := lru.New[string, []models.Message](PageCacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		log:                log,
		accountCtx:         ctx,
		accountCancel:      cancel,
		inflight:           make(map[string]*Flight),
		debounce:           debounce,
		pageCache:          pageCache,
		passphrases:        make(map[string]string),
		needsPassphrase:    make(map[string]bool),
		missingKeyNotified: make(map[string]bool),
	}
}

// ActiveAccount returns the id of the account the session is bound to.
func (s *Session) ActiveAccount() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

// SetActiveAccount switches the cancellation domain to a new account.
// The previous account token is invalidated, aborting every operation
// still referencing it, and the account-scoped maps are cleared.
func (s *Session) SetActiveAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accountID == accountID {
		return
	}

	s.accountCancel()
	s.accountCtx, s.accountCancel = context.WithCancel(context.Background())
	s.accountID = accountID

	s.inflight = make(map[string]*Flight)
	s.debounce.Purge()
	s.pageCache.Purge()
}

// AccountContext returns the current account-scoped cancellation context.
func (s *Session) AccountContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountCtx
}

// Compose merges the caller context with the account token using any-of
// semantics: cancelling either aborts the composed context. The returned
// cancel must be called to release the watcher.
func (s *Session) Compose(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.Lock()
	accountCtx := s.accountCtx
	s.mu.Unlock()

	merged, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-accountCtx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

// Reset clears all session state and regenerates the account token.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accountCancel()
	s.accountCtx, s.accountCancel = context.WithCancel(context.Background())
	s.accountID = ""

	s.inflight = make(map[string]*Flight)
	s.debounce.Purge()
	s.pageCache.Purge()
	s.passphrases = make(map[string]string)
	s.needsPassphrase = make(map[string]bool)
	s.missingKeyNotified = make(map[string]bool)
}

// Dispose cancels the account token and drops all state. The session must
// not be used afterwards.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.accountCancel()
	s.inflight = nil
	s.debounce.Purge()
	s.pageCache.Purge()
}
