package prefetch

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services/quota"
)

const (
	// DefaultConcurrency bounds parallel body fetches in one batch.
	DefaultConcurrency = 3
	// DefaultLimit bounds how many bodies one batch warms.
	DefaultLimit = 20
)

// Priority weights. Unread mail dominates, then inbox placement, then
// recency, then attachments.
const (
	scoreUnread     = 100
	scoreInbox      = 50
	scoreLastDay    = 40
	scoreLastWeek   = 20
	scoreAttachment = 10
)

// Service warms message bodies in the background so they open instantly
// offline. Batches are priority-ordered, deduplicated against the body
// cache, bounded in concurrency and skipped entirely near the quota.
type Service struct {
	session  *session.Session
	bodyRepo interfaces.MessageBodyRepository
	detail   interfaces.DetailService
	quota    *quota.Service
	log      logger.Logger
}

func NewService(
	sess *session.Session,
	bodyRepo interfaces.MessageBodyRepository,
	detailService interfaces.DetailService,
	quotaService *quota.Service,
	log logger.Logger,
) *Service {
	return &Service{
		session:  sess,
		bodyRepo: bodyRepo,
		detail:   detailService,
		quota:    quotaService,
		log:      log,
	}
}

func (s *Service) PrefetchBodies(ctx context.Context, messages []models.Message, opts interfaces.PrefetchOptions) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "prefetch.Service.PrefetchBodies")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("candidates", len(messages))

	if len(messages) == 0 {
		return 0, nil
	}

	if s.quota.ShouldSkipPrefetch(ctx) {
		span.SetTag("skipped", "quota")
		s.log.Info("prefetch skipped, cache near quota")
		return 0, nil
	}

	accountID := messages[0].AccountID
	ctx = tracing.WithAccountID(ctx, accountID)
	ctx, cancel := s.session.Compose(ctx)
	defer cancel()

	candidates := s.selectCandidates(ctx, accountID, messages, opts)
	if len(candidates) == 0 {
		return 0, nil
	}
	span.SetTag("selected", len(candidates))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var fetched atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i := range candidates {
		msg := candidates[i]
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			// Passive load: no prompts, no user-visible errors.
			status := s.detail.LoadDetail(groupCtx, interfaces.DetailRequest{
				Message:     &msg,
				AllowPrompt: false,
			})
			if status == enum.LoadRendered {
				fetched.Add(1)
			}
			return nil
		})
	}

	err := group.Wait()
	if err != nil && ctx.Err() != nil {
		// Cancellation mid-batch keeps what was fetched and reports no error.
		return int(fetched.Load()), nil
	}
	return int(fetched.Load()), err
}

// selectCandidates scores and orders the batch, cuts it down to the limit
// and only then drops entries that already have a complete cached body.
// Filtering after the cut keeps a fully-cached top of the list from pulling
// lower-priority messages into the batch.
func (s *Service) selectCandidates(ctx context.Context, accountID string, messages []models.Message, opts interfaces.PrefetchOptions) []models.Message {
	candidates := make([]models.Message, 0, len(messages))
	for i := range messages {
		msg := messages[i]
		if msg.Identity() == "" {
			continue
		}
		if opts.Folder != "" && msg.Folder != opts.Folder {
			continue
		}
		candidates = append(candidates, msg)
	}

	if opts.Prioritize {
		now := time.Now()
		sort.SliceStable(candidates, func(i, j int) bool {
			return score(&candidates[i], now) > score(&candidates[j], now)
		})
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		ids = append(ids, candidates[i].Identity())
	}
	complete, err := s.bodyRepo.CompleteSet(ctx, accountID, ids)
	if err != nil {
		s.log.Warnf("checking cached bodies: %v", err)
		complete = map[string]bool{}
	}

	selected := candidates[:0]
	for i := range candidates {
		if complete[candidates[i].Identity()] {
			continue
		}
		selected = append(selected, candidates[i])
	}
	return selected
}

func score(msg *models.Message, now time.Time) int {
	total := 0
	if msg.IsUnread() {
		total += scoreUnread
	}
	if msg.Folder == models.InboxPath {
		total += scoreInbox
	}
	if msg.SentAt != nil {
		age := now.Sub(*msg.SentAt)
		switch {
		case age < 24*time.Hour:
			total += scoreLastDay
		case age < 7*24*time.Hour:
			total += scoreLastWeek
		}
	}
	if msg.HasAttachment {
		total += scoreAttachment
	}
	return total
}

var _ interfaces.PrefetchService = (*Service)(nil)
