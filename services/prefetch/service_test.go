package prefetch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/services/quota"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeBodyRepo struct {
	complete map[string]bool
}

func (f *fakeBodyRepo) Get(ctx context.Context, accountID, messageID string) (*models.MessageBody, error) {
	return nil, nil
}

func (f *fakeBodyRepo) CompleteSet(ctx context.Context, accountID string, messageIDs []string) (map[string]bool, error) {
	if f.complete == nil {
		return map[string]bool{}, nil
	}
	return f.complete, nil
}

func (f *fakeBodyRepo) Save(ctx context.Context, body *models.MessageBody) error { return nil }
func (f *fakeBodyRepo) Delete(ctx context.Context, accountID, messageID string) error {
	return nil
}

func (f *fakeBodyRepo) BulkDelete(ctx context.Context, accountID string, messageIDs []string) error {
	return nil
}

func (f *fakeBodyRepo) DeleteOldest(ctx context.Context, accountID string, n int) (int64, error) {
	return 0, nil
}
func (f *fakeBodyRepo) InvalidateAccount(ctx context.Context, accountID string) error { return nil }

type fakeDetail struct {
	mu     sync.Mutex
	loaded []string
}

func (f *fakeDetail) LoadDetail(ctx context.Context, request interfaces.DetailRequest) enum.LoadStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, request.Message.Identity())
	if request.AllowPrompt {
		// Prefetch must never open prompts.
		return enum.LoadFailed
	}
	return enum.LoadRendered
}

func (f *fakeDetail) loadedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loaded...)
}

// quotaAt returns a quota service whose database file fills the given share
// of the budget.
func quotaAt(t *testing.T, fill float64) *quota.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	budget := uint64(1000)
	size := int(fill * float64(budget))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return quota.NewService(path, budget, &fakeBodyRepo{}, getLogger())
}

func newService(t *testing.T, bodyRepo *fakeBodyRepo, detail *fakeDetail, fill float64) *Service {
	t.Helper()
	sess := session.New(getLogger())
	sess.SetActiveAccount("acct-1")
	return NewService(sess, bodyRepo, detail, quotaAt(t, fill), getLogger())
}

func msgAt(id, folder string, age time.Duration, unread, attachment bool) models.Message {
	sent := time.Now().Add(-age)
	flags := models.StringList{}
	if !unread {
		flags = models.StringList{"\\Seen"}
	}
	return models.Message{
		ID:            id,
		AccountID:     "acct-1",
		Folder:        folder,
		Flags:         flags,
		HasAttachment: attachment,
		SentAt:        &sent,
	}
}

func TestPrefetchBodies_PriorityOrder(t *testing.T) {
	detail := &fakeDetail{}
	s := newService(t, &fakeBodyRepo{}, detail, 0.1)

	messages := []models.Message{
		msgAt("read-old", "Archive", 30*24*time.Hour, false, false),
		msgAt("unread-inbox-fresh", models.InboxPath, time.Hour, true, false),
		msgAt("read-inbox-week", models.InboxPath, 3*24*time.Hour, false, true),
		msgAt("unread-archive", "Archive", 2*24*time.Hour, true, false),
	}

	fetched, err := s.PrefetchBodies(context.Background(), messages, interfaces.PrefetchOptions{
		Limit:       3,
		Concurrency: 1,
		Prioritize:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, fetched)

	loaded := detail.loadedIDs()
	require.Len(t, loaded, 3)
	// unread+inbox+recent (190) > unread+week (120) > inbox+week+attachment (80).
	assert.Equal(t, "unread-inbox-fresh", loaded[0])
	assert.Equal(t, "unread-archive", loaded[1])
	assert.Equal(t, "read-inbox-week", loaded[2])
	assert.NotContains(t, loaded, "read-old")
}

func TestPrefetchBodies_SkipsCachedBodies(t *testing.T) {
	detail := &fakeDetail{}
	bodyRepo := &fakeBodyRepo{complete: map[string]bool{"m1": true}}
	s := newService(t, bodyRepo, detail, 0.1)

	messages := []models.Message{
		msgAt("m1", models.InboxPath, time.Hour, true, false),
		msgAt("m2", models.InboxPath, time.Hour, true, false),
	}

	fetched, err := s.PrefetchBodies(context.Background(), messages, interfaces.PrefetchOptions{Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, fetched)
	assert.Equal(t, []string{"m2"}, detail.loadedIDs())
}

func TestPrefetchBodies_CachedTopPriorityNotBackfilled(t *testing.T) {
	detail := &fakeDetail{}
	// The highest-priority message already has a complete body; the batch
	// slot it occupied must not be handed to a lower-priority message.
	bodyRepo := &fakeBodyRepo{complete: map[string]bool{"unread-inbox-fresh": true}}
	s := newService(t, bodyRepo, detail, 0.1)

	messages := []models.Message{
		msgAt("read-old", "Archive", 30*24*time.Hour, false, false),
		msgAt("unread-inbox-fresh", models.InboxPath, time.Hour, true, false),
	}

	fetched, err := s.PrefetchBodies(context.Background(), messages, interfaces.PrefetchOptions{
		Limit:       1,
		Concurrency: 1,
		Prioritize:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, fetched)
	assert.Empty(t, detail.loadedIDs())
}

func TestPrefetchBodies_SkipsBatchNearQuota(t *testing.T) {
	detail := &fakeDetail{}
	s := newService(t, &fakeBodyRepo{}, detail, 0.95)

	messages := []models.Message{
		msgAt("m1", models.InboxPath, time.Hour, true, false),
	}

	fetched, err := s.PrefetchBodies(context.Background(), messages, interfaces.PrefetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, fetched)
	assert.Empty(t, detail.loadedIDs())
}

func TestPrefetchBodies_FolderFilter(t *testing.T) {
	detail := &fakeDetail{}
	s := newService(t, &fakeBodyRepo{}, detail, 0.1)

	messages := []models.Message{
		msgAt("inbox-1", models.InboxPath, time.Hour, true, false),
		msgAt("archive-1", "Archive", time.Hour, true, false),
	}

	fetched, err := s.PrefetchBodies(context.Background(), messages, interfaces.PrefetchOptions{
		Folder:      models.InboxPath,
		Concurrency: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fetched)
	assert.Equal(t, []string{"inbox-1"}, detail.loadedIDs())
}

func TestPrefetchBodies_EmptyInput(t *testing.T) {
	detail := &fakeDetail{}
	s := newService(t, &fakeBodyRepo{}, detail, 0.1)

	fetched, err := s.PrefetchBodies(context.Background(), nil, interfaces.PrefetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, fetched)
}
