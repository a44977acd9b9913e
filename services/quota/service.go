package quota

import (
	"context"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

// SkipRatio is the fill level at or above which prefetch batches are skipped.
const SkipRatio = 0.9

// evictionBatch is how many cached bodies one sweep pass removes.
const evictionBatch = 25

// Service measures cache-database size against the configured budget and
// evicts the least recently used bodies when the budget is exceeded.
type Service struct {
	dbPath   string
	budget   uint64
	bodyRepo interfaces.MessageBodyRepository
	log      logger.Logger
}

func NewService(dbPath string, budget uint64, bodyRepo interfaces.MessageBodyRepository, log logger.Logger) *Service {
	return &Service{
		dbPath:   dbPath,
		budget:   budget,
		bodyRepo: bodyRepo,
		log:      log,
	}
}

func (s *Service) Usage(ctx context.Context) (uint64, uint64, error) {
	used, err := s.fileSize(s.dbPath)
	if err != nil {
		return 0, s.budget, err
	}
	// WAL mode keeps recent pages in side files until checkpoint.
	for _, suffix := range []string{"-wal", "-shm"} {
		if size, err := s.fileSize(s.dbPath + suffix); err == nil {
			used += size
		}
	}
	return used, s.budget, nil
}

// ShouldSkipPrefetch reports whether the cache is full enough that body
// prefetching should pause. Probe failures never block prefetch.
func (s *Service) ShouldSkipPrefetch(ctx context.Context) bool {
	used, budget, err := s.Usage(ctx)
	if err != nil || budget == 0 {
		return false
	}
	return float64(used)/float64(budget) >= SkipRatio
}

// Sweep evicts least-recently-updated bodies until usage drops below the
// budget or nothing is left to evict. It returns the number of evicted rows.
func (s *Service) Sweep(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "quota.Service.Sweep")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var evicted int64
	for {
		if ctx.Err() != nil {
			return evicted, ctx.Err()
		}
		used, budget, err := s.Usage(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			return evicted, err
		}
		if budget == 0 || used <= budget {
			break
		}

		removed, err := s.bodyRepo.DeleteOldest(ctx, accountID, evictionBatch)
		if err != nil {
			tracing.TraceErr(span, err)
			return evicted, errors.Wrap(err, "evicting cached bodies")
		}
		if removed == 0 {
			break
		}
		evicted += removed
	}

	if evicted > 0 {
		s.log.Infof("quota sweep evicted %d cached bodies for account %s", evicted, accountID)
	}
	span.SetTag("evicted", evicted)
	return evicted, nil
}

func (s *Service) fileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(info.Size()), nil
}

var _ interfaces.QuotaProbe = (*Service)(nil)
