package quota

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

// shrinkingBodyRepo simulates eviction by shrinking the backing file on
// every DeleteOldest call.
type shrinkingBodyRepo struct {
	path    string
	perRow  int
	deleted atomic.Int64
}

func (r *shrinkingBodyRepo) Get(ctx context.Context, accountID, messageID string) (*models.MessageBody, error) {
	return nil, nil
}

func (r *shrinkingBodyRepo) CompleteSet(ctx context.Context, accountID string, messageIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (r *shrinkingBodyRepo) Save(ctx context.Context, body *models.MessageBody) error { return nil }
func (r *shrinkingBodyRepo) Delete(ctx context.Context, accountID, messageID string) error {
	return nil
}

func (r *shrinkingBodyRepo) BulkDelete(ctx context.Context, accountID string, messageIDs []string) error {
	return nil
}

func (r *shrinkingBodyRepo) DeleteOldest(ctx context.Context, accountID string, n int) (int64, error) {
	if r.perRow == 0 {
		return 0, nil
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return 0, err
	}
	newSize := info.Size() - int64(n*r.perRow)
	if newSize < 0 {
		newSize = 0
	}
	if err := os.Truncate(r.path, newSize); err != nil {
		return 0, err
	}
	r.deleted.Add(int64(n))
	return int64(n), nil
}

func (r *shrinkingBodyRepo) InvalidateAccount(ctx context.Context, accountID string) error {
	return nil
}

func writeDB(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestUsage_IncludesWALSideFiles(t *testing.T) {
	path := writeDB(t, 500)
	require.NoError(t, os.WriteFile(path+"-wal", make([]byte, 200), 0o600))
	require.NoError(t, os.WriteFile(path+"-shm", make([]byte, 100), 0o600))

	s := NewService(path, 1000, &shrinkingBodyRepo{}, getLogger())

	used, budget, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(800), used)
	assert.Equal(t, uint64(1000), budget)
}

func TestUsage_MissingFileIsZero(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "absent.db"), 1000, &shrinkingBodyRepo{}, getLogger())

	used, _, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), used)
}

func TestShouldSkipPrefetch(t *testing.T) {
	over := NewService(writeDB(t, 950), 1000, &shrinkingBodyRepo{}, getLogger())
	assert.True(t, over.ShouldSkipPrefetch(context.Background()))

	under := NewService(writeDB(t, 500), 1000, &shrinkingBodyRepo{}, getLogger())
	assert.False(t, under.ShouldSkipPrefetch(context.Background()))

	noBudget := NewService(writeDB(t, 500), 0, &shrinkingBodyRepo{}, getLogger())
	assert.False(t, noBudget.ShouldSkipPrefetch(context.Background()))
}

func TestSweep_EvictsUntilUnderBudget(t *testing.T) {
	path := writeDB(t, 2000)
	repo := &shrinkingBodyRepo{path: path, perRow: 20}
	s := NewService(path, 1000, repo, getLogger())

	evicted, err := s.Sweep(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Greater(t, evicted, int64(0))

	used, budget, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, used, budget)
}

func TestSweep_UnderBudgetIsNoop(t *testing.T) {
	path := writeDB(t, 100)
	repo := &shrinkingBodyRepo{path: path, perRow: 20}
	s := NewService(path, 1000, repo, getLogger())

	evicted, err := s.Sweep(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), evicted)
	assert.Equal(t, int64(0), repo.deleted.Load())
}

func TestSweep_StopsWhenNothingLeft(t *testing.T) {
	path := writeDB(t, 2000)
	// Repo with nothing left to delete: the sweep must not spin forever.
	repo := &shrinkingBodyRepo{path: path}
	s := NewService(path, 1000, repo, getLogger())

	evicted, err := s.Sweep(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), evicted)
}
