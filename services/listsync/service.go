package listsync

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/mailvault/mailvault/dto"
	"github.com/mailvault/mailvault/interfaces"
	localerrors "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
	"github.com/mailvault/mailvault/services/quota"
)

// previewLimit is the slice size of the quick first fetch used when a large
// page is requested and nothing is cached yet.
const previewLimit = 20

// Service reconciles the visible folder page with the persistent cache and
// the remote service: instant paint from memory, persistent read, deduped
// network refresh, identity merge, page-1 prune and derived folder counts.
type Service struct {
	state         *interfaces.ListState
	session       *session.Session
	messageRepo   interfaces.MessageRepository
	bodyRepo      interfaces.MessageBodyRepository
	folderRepo    interfaces.FolderRepository
	syncStateRepo interfaces.SyncStateRepository
	worker        interfaces.SyncWorker
	remote        interfaces.RemoteClient
	search        interfaces.SearchIndex
	quota         *quota.Service
	log           logger.Logger
}

func NewService(
	sess *session.Session,
	messageRepo interfaces.MessageRepository,
	bodyRepo interfaces.MessageBodyRepository,
	folderRepo interfaces.FolderRepository,
	syncStateRepo interfaces.SyncStateRepository,
	worker interfaces.SyncWorker,
	remote interfaces.RemoteClient,
	search interfaces.SearchIndex,
	quotaService *quota.Service,
	log logger.Logger,
) *Service {
	return &Service{
		state:         interfaces.NewListState(),
		session:       sess,
		messageRepo:   messageRepo,
		bodyRepo:      bodyRepo,
		folderRepo:    folderRepo,
		syncStateRepo: syncStateRepo,
		worker:        worker,
		remote:        remote,
		search:        search,
		quota:         quotaService,
		log:           log,
	}
}

func (s *Service) State() *interfaces.ListState {
	return s.state
}

func (s *Service) LoadMessages(ctx context.Context) error {
	accountID := s.session.ActiveAccount()
	if accountID == "" {
		return localerrors.ErrAccountNotSet
	}
	query := s.state.Query.Get()

	ctx = tracing.WithAccountID(ctx, accountID)
	ctx, cancel := s.session.Compose(ctx)
	defer cancel()

	span, ctx := opentracing.StartSpanFromContext(ctx, "listsync.Service.LoadMessages")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("folder", query.Folder)
	span.SetTag("page", query.Page)

	s.state.Loading.Set(true)
	defer s.state.Loading.Set(false)

	pageKey := query.PageKey(accountID)
	requestKey := query.Key(accountID)

	// Instant paint: the in-memory copy goes out synchronously, before any
	// database or network work.
	if cachedPage, ok := s.session.CachedPage(pageKey); ok && len(cachedPage) > 0 {
		s.publish(accountID, query, cachedPage)
	}

	local, err := s.messageRepo.GetPage(ctx, accountID, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warnf("reading cached page %s: %v", pageKey, err)
		local = nil
	}
	if len(local) > 0 {
		s.publish(accountID, query, local)
		s.publishHasNext(ctx, accountID, query, len(local))
	}

	// Identical concurrent requests collapse onto one network refresh.
	flight, owner := s.session.JoinFlight(requestKey)
	if !owner {
		waitErr := flight.Wait(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if waitErr == nil {
			if refreshed, err := s.messageRepo.GetPage(ctx, accountID, query); err == nil {
				s.publish(accountID, query, refreshed)
				s.publishHasNext(ctx, accountID, query, len(refreshed))
			}
			return nil
		}
		return s.refresh(ctx, accountID, query, local)
	}

	err = s.refresh(ctx, accountID, query, local)
	if ctx.Err() != nil {
		s.session.SettleFlight(requestKey, flight, context.Canceled)
		return nil
	}
	s.session.SettleFlight(requestKey, flight, err)
	return err
}

// refresh performs the network reconciliation for one page.
func (s *Service) refresh(ctx context.Context, accountID string, query models.ListQuery, local []models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "listsync.Service.refresh")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	// Preview fetch: paint a small slice fast when nothing is visible yet.
	if len(local) == 0 && query.Limit > previewLimit {
		previewQuery := query
		previewQuery.Limit = previewLimit
		if preview, err := s.fetchPage(ctx, accountID, previewQuery); err == nil && len(preview) > 0 {
			s.backfill(ctx, accountID, preview)
			s.publish(accountID, query, preview)
		}
	}

	fresh, err := s.fetchPage(ctx, accountID, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return pkgerrors.Wrap(err, "fetching folder page")
	}

	s.backfill(ctx, accountID, fresh)

	if len(fresh) > 0 {
		if err := s.messageRepo.BulkUpsert(ctx, fresh); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return pkgerrors.Wrap(err, "persisting folder page")
		}
	}

	// Staleness guard: the fetch raced an account or query change. The data
	// was persisted above; it just must not reach the visible state.
	if stale := s.isStale(accountID, query); stale {
		span.SetTag("stale", true)
		return nil
	}

	merged := s.mergeVisible(query, local, fresh)

	if query.Page == 1 && query.DefaultFilters() && len(fresh) > 0 {
		removed := s.prune(ctx, accountID, local, fresh)
		if len(removed) > 0 {
			merged = excludeIdentities(merged, removed)
		}
	}

	s.updateDerivedState(ctx, accountID, query, fresh)

	s.session.StorePage(query.PageKey(accountID), merged)
	s.publish(accountID, query, merged)
	s.publishHasNext(ctx, accountID, query, len(fresh))

	s.indexMessages(ctx, fresh)

	sweepCtx := tracing.WithAccountID(s.session.AccountContext(), accountID)
	go func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		if _, err := s.quota.Sweep(sweepCtx, accountID); err != nil && sweepCtx.Err() == nil {
			s.log.Warnf("quota sweep after sync: %v", err)
		}
	}()

	return nil
}

// fetchPage asks the background worker first and falls back to a direct
// network request when the worker is unavailable.
func (s *Service) fetchPage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error) {
	messages, err := s.worker.MessagePage(ctx, accountID, query)
	if err == nil {
		return messages, nil
	}
	if !pkgerrors.Is(err, localerrors.ErrWorkerUnavailable) {
		return nil, err
	}

	params := map[string]string{
		"accountId": accountID,
		"folder":    query.Folder,
		"page":      strconv.Itoa(query.Page),
		"limit":     strconv.Itoa(query.Limit),
	}
	if query.Search != "" {
		params["search"] = query.Search
	}
	if query.UnreadOnly {
		params["unread"] = "true"
	}
	if query.HasAttachment {
		params["hasAttachment"] = "true"
	}

	payload, err := s.remote.Request(ctx, "messages", params, nil)
	if err != nil {
		return nil, err
	}
	var page dto.RemoteMessagePage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding message page")
	}
	result := make([]models.Message, 0, len(page.Messages))
	for _, remote := range page.Messages {
		result = append(result, remote.ToModel(accountID))
	}
	return result, nil
}

// backfill copies sender and label fields from existing records into fresh
// page items whose server payload omitted them, matching by id, then UID,
// then header message-id.
func (s *Service) backfill(ctx context.Context, accountID string, fresh []models.Message) {
	for i := range fresh {
		msg := &fresh[i]
		if msg.FromAddress != "" && len(msg.Labels) > 0 {
			continue
		}

		existing := s.lookupExisting(ctx, accountID, msg)
		if existing == nil {
			continue
		}
		if msg.ID == "" {
			msg.ID = existing.ID
		}
		if msg.FromAddress == "" {
			msg.FromAddress = existing.FromAddress
			msg.FromName = existing.FromName
		}
		if len(msg.Labels) == 0 {
			msg.Labels = existing.Labels
		}
	}
}

func (s *Service) lookupExisting(ctx context.Context, accountID string, msg *models.Message) *models.Message {
	if msg.ID != "" {
		if existing, err := s.messageRepo.GetByID(ctx, accountID, msg.ID); err == nil && existing != nil {
			return existing
		}
	}
	if msg.UID != 0 {
		if existing, err := s.messageRepo.GetByUID(ctx, accountID, msg.UID); err == nil && existing != nil {
			return existing
		}
	}
	if msg.MessageID != "" {
		if existing, err := s.messageRepo.GetByMessageID(ctx, accountID, utils.NormalizeMessageID(msg.MessageID)); err == nil && existing != nil {
			return existing
		}
	}
	return nil
}

// mergeVisible builds the list the UI sees. Page 1 merges the cached page
// with the fresh result; later pages append to what is already shown.
func (s *Service) mergeVisible(query models.ListQuery, local, fresh []models.Message) []models.Message {
	if query.Page > 1 {
		return mergeMessages(s.state.Messages.Get(), fresh)
	}
	return mergeMessages(local, fresh)
}

// prune removes messages that were cached for page 1 but are gone from the
// fresh unfiltered result: deleted or moved on the server. It returns the
// removed identities.
func (s *Service) prune(ctx context.Context, accountID string, local, fresh []models.Message) map[string]bool {
	freshSet := identitySet(fresh)

	var removedIDs []string
	removed := make(map[string]bool)
	for i := range local {
		identity := local[i].Identity()
		if identity == "" || freshSet[identity] {
			continue
		}
		removed[identity] = true
		if local[i].ID != "" {
			removedIDs = append(removedIDs, local[i].ID)
		}
	}
	if len(removedIDs) == 0 {
		return removed
	}

	if err := s.messageRepo.BulkDelete(ctx, accountID, removedIDs); err != nil {
		s.log.Warnf("pruning %d messages: %v", len(removedIDs), err)
		return map[string]bool{}
	}
	if err := s.bodyRepo.BulkDelete(ctx, accountID, removedIDs); err != nil {
		s.log.Warnf("pruning cached bodies: %v", err)
	}
	if err := s.search.RemoveFromIndex(ctx, accountID, removedIDs); err != nil {
		s.log.Debugf("removing pruned messages from index: %v", err)
	}
	return removed
}

// updateDerivedState refreshes folder counters and the folder sync record.
func (s *Service) updateDerivedState(ctx context.Context, accountID string, query models.ListQuery, fresh []models.Message) {
	unread, err := s.messageRepo.UnreadCountsByFolder(ctx, accountID)
	if err != nil {
		s.log.Warnf("computing unread counts: %v", err)
		return
	}
	total, err := s.messageRepo.TotalCountsByFolder(ctx, accountID)
	if err != nil {
		s.log.Warnf("computing total counts: %v", err)
		return
	}
	if err := s.folderRepo.UpdateCounts(ctx, accountID, unread, total); err != nil {
		s.log.Warnf("updating folder counts: %v", err)
	}

	state := &models.FolderSyncState{
		AccountID:  accountID,
		Folder:     query.Folder,
		LastSyncAt: utils.Now(),
		LastTotal:  total[query.Folder],
	}
	if err := s.syncStateRepo.Save(ctx, state); err != nil {
		s.log.Warnf("saving sync state for %s: %v", query.Folder, err)
	}
}

// indexMessages feeds the search index, retrying a failure once and then
// moving on; indexing never fails a sync.
func (s *Service) indexMessages(ctx context.Context, messages []models.Message) {
	if len(messages) == 0 {
		return
	}
	if err := s.search.IndexMessages(ctx, messages); err != nil {
		if err := s.search.IndexMessages(ctx, messages); err != nil {
			s.log.Warnf("indexing %d messages: %v", len(messages), err)
		}
	}
}

// publish pushes a result to the visible state unless it became stale.
func (s *Service) publish(accountID string, query models.ListQuery, messages []models.Message) {
	if s.isStale(accountID, query) {
		return
	}
	s.state.Messages.Set(messages)
}

func (s *Service) publishHasNext(ctx context.Context, accountID string, query models.ListQuery, pageLen int) {
	if s.isStale(accountID, query) {
		return
	}
	// With default filters pagination is count-based; filtered views fall
	// back to the full-page heuristic.
	if query.DefaultFilters() {
		total, err := s.messageRepo.CountByFolder(ctx, accountID, query.Folder)
		if err == nil {
			s.state.HasNextPage.Set(int64(query.Offset()+query.Limit) < total)
			return
		}
	}
	s.state.HasNextPage.Set(pageLen >= query.Limit && query.Limit > 0)
}

func (s *Service) isStale(accountID string, query models.ListQuery) bool {
	if s.session.ActiveAccount() != accountID {
		return true
	}
	return s.state.Query.Get().Key(accountID) != query.Key(accountID)
}

var _ interfaces.ListSyncService = (*Service)(nil)
