package detail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/mailvault/mailvault/dto"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	localerrors "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
	"github.com/mailvault/mailvault/services/mimeparse"
	"github.com/mailvault/mailvault/services/pgp"
	"github.com/mailvault/mailvault/services/sanitizer"
)

// DebounceWindow suppresses repeat renders of the same message. A second
// load inside the window still clears its loading flag, it just does not
// repaint body and attachments.
const DebounceWindow = 500 * time.Millisecond

// Service is the per-message cache coordinator: it resolves the message
// identity, serves cached bodies, deduplicates concurrent loads, fetches
// through the worker with a direct network fallback, routes encrypted
// content through the decrypt pipeline and sanitizes everything it renders.
type Service struct {
	session     *session.Session
	messageRepo interfaces.MessageRepository
	bodyRepo    interfaces.MessageBodyRepository
	worker      interfaces.SyncWorker
	remote      interfaces.RemoteClient
	parser      *mimeparse.Service
	sanitizer   *sanitizer.Service
	pipeline    *pgp.Service
	log         logger.Logger
}

func NewService(
	sess *session.Session,
	messageRepo interfaces.MessageRepository,
	bodyRepo interfaces.MessageBodyRepository,
	worker interfaces.SyncWorker,
	remote interfaces.RemoteClient,
	parser *mimeparse.Service,
	sanitizerService *sanitizer.Service,
	pipeline *pgp.Service,
	log logger.Logger,
) interfaces.DetailService {
	return &Service{
		session:     sess,
		messageRepo: messageRepo,
		bodyRepo:    bodyRepo,
		worker:      worker,
		remote:      remote,
		parser:      parser,
		sanitizer:   sanitizerService,
		pipeline:    pipeline,
		log:         log,
	}
}

func (s *Service) LoadDetail(ctx context.Context, request interfaces.DetailRequest) enum.LoadStatus {
	msg := request.Message
	cb := request.Callbacks

	if msg == nil || msg.Identity() == "" {
		if cb.OnError != nil {
			cb.OnError(localerrors.ErrInvalidMessageID)
		}
		return enum.LoadFailed
	}

	ctx = tracing.WithAccountID(ctx, msg.AccountID)
	ctx, cancel := s.session.Compose(ctx)
	defer cancel()

	span, ctx := opentracing.StartSpanFromContext(ctx, "detail.Service.LoadDetail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.identity", msg.Identity())

	// The loading flag is raised lazily by produce, just before a fetch is
	// actually issued. Cache hits never flicker it, but every exit path
	// still lowers it.
	if cb.OnLoading != nil {
		defer cb.OnLoading(false)
	}

	if ctx.Err() != nil {
		return enum.LoadAborted
	}

	key := msg.CacheKey()
	identity := msg.Identity()

	cached, err := s.bodyRepo.Get(ctx, msg.AccountID, identity)
	if err != nil {
		s.log.Warnf("reading cached body for %s: %v", identity, err)
		cached = nil
	}
	if cached.Corrupted() {
		// Double-encoded entries are unrecoverable; drop them and refetch.
		s.log.Warnf("%v for %s, evicting entry", localerrors.ErrCacheCorrupted, identity)
		if err := s.bodyRepo.Delete(ctx, msg.AccountID, identity); err != nil {
			s.log.Warnf("deleting corrupted body for %s: %v", identity, err)
		}
		cached = nil
	}

	if cached.Complete() {
		span.SetTag("cache_hit", true)
		if !s.session.DebouncedRecently(key, DebounceWindow) {
			s.render(msg, cb, cached, true)
		}
		if !msg.MetadataComplete() {
			// Runs on the account token, not the caller context, so it
			// survives the caller returning but dies on account switch.
			refreshCtx := tracing.WithAccountID(s.session.AccountContext(), msg.AccountID)
			go func() {
				defer tracing.RecoverAndLogToJaeger(s.log)
				s.refreshMetadata(refreshCtx, msg)
			}()
		}
		return enum.LoadRendered
	}

	// Dedup concurrent loads of the same resource. Joiners wait for the
	// owner; on its success they re-read the cache, on its failure they run
	// their own fetch rather than inheriting the error.
	flight, owner := s.session.JoinFlight(key)
	if !owner {
		waitErr := flight.Wait(ctx)
		if ctx.Err() != nil {
			return enum.LoadAborted
		}
		if waitErr == nil {
			if fresh, err := s.bodyRepo.Get(ctx, msg.AccountID, identity); err == nil && fresh.Complete() {
				// The owner's render marks the key, so joiners landing inside
				// the debounce window stay silent like any other repeat load.
				if !s.session.DebouncedRecently(key, DebounceWindow) {
					s.render(msg, cb, fresh, true)
				}
				return enum.LoadRendered
			}
		}
		return s.produce(ctx, msg, cached, request)
	}

	status := s.produce(ctx, msg, cached, request)
	switch status {
	case enum.LoadRendered:
		s.session.SettleFlight(key, flight, nil)
	case enum.LoadAborted:
		s.session.SettleFlight(key, flight, context.Canceled)
	default:
		s.session.SettleFlight(key, flight, pkgerrors.Errorf("detail load failed for %s", identity))
	}
	return status
}

// produce runs the fetch/decrypt/sanitize path and renders the result.
// cached, when non-nil, is the incomplete entry found before the call and
// doubles as the last-known-good fallback.
func (s *Service) produce(ctx context.Context, msg *models.Message, cached *models.MessageBody, request interfaces.DetailRequest) enum.LoadStatus {
	cb := request.Callbacks
	identity := msg.Identity()

	// Encrypted content persisted as a body never renders as-is; it re-enters
	// the decrypt pipeline every time until a plaintext lands in the cache.
	if source := cached.EncryptedSource(); source != "" {
		return s.decryptAndRender(ctx, msg, source, request)
	}

	if cb.OnLoading != nil {
		cb.OnLoading(true)
	}
	detail, err := s.fetchDetail(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return enum.LoadAborted
		}
		return s.failWithFallback(msg, cb, cached, err)
	}

	if detail.Encrypted || utils.IsEncryptedContent(detail.RawSource) || utils.IsEncryptedContent(detail.Body) {
		source := detail.RawSource
		if !utils.IsEncryptedContent(source) {
			source = detail.Body
		}
		// Persist the raw source first so a later offline open can still
		// decrypt without the network.
		s.persist(ctx, &models.MessageBody{
			AccountID: msg.AccountID,
			MessageID: identity,
			RawSource: source,
		})
		return s.decryptAndRender(ctx, msg, source, request)
	}

	body, text, attachments := s.extractContent(ctx, detail)
	if ctx.Err() != nil {
		return enum.LoadAborted
	}

	entry := &models.MessageBody{
		AccountID:   msg.AccountID,
		MessageID:   identity,
		Body:        body,
		RawSource:   detail.RawSource,
		TextContent: text,
		Attachments: attachments,
	}
	s.sanitizeEntry(entry)
	s.persist(ctx, entry)

	if !entry.Complete() {
		return s.failWithFallback(msg, cb, cached, pkgerrors.Errorf("empty body for message %s", identity))
	}

	s.render(msg, cb, entry, false)
	return enum.LoadRendered
}

// fetchDetail asks the background worker first and falls back to a direct
// network request when the worker is unavailable.
func (s *Service) fetchDetail(ctx context.Context, msg *models.Message) (*interfaces.WorkerDetailResult, error) {
	result, err := s.worker.MessageDetail(ctx, msg.AccountID, msg.Identity())
	if err == nil {
		return result, nil
	}
	if !pkgerrors.Is(err, localerrors.ErrWorkerUnavailable) {
		return nil, err
	}

	payload, err := s.remote.Request(ctx, "messages/detail", map[string]string{
		"accountId": msg.AccountID,
		"messageId": msg.Identity(),
	}, nil)
	if err != nil {
		return nil, err
	}
	var detail dto.RemoteMessageDetail
	if err := json.Unmarshal(payload, &detail); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding detail payload")
	}
	return &interfaces.WorkerDetailResult{
		Encrypted:   detail.Encrypted,
		RawSource:   detail.RawSource,
		Body:        detail.Body,
		TextContent: detail.TextContent,
		Attachments: dto.ToAttachmentList(detail.Attachments),
	}, nil
}

// extractContent turns a detail payload into body/text/attachments, parsing
// the raw source when the server did not pre-render. A parse failure falls
// back to whatever the payload already carried.
func (s *Service) extractContent(ctx context.Context, detail *interfaces.WorkerDetailResult) (string, string, models.AttachmentList) {
	if detail.RawSource != "" {
		parsed, err := s.worker.ParseMime(ctx, detail.RawSource)
		if err != nil && pkgerrors.Is(err, localerrors.ErrWorkerUnavailable) {
			parsed, err = s.parser.Parse(ctx, detail.RawSource)
		}
		if err == nil && parsed != nil && parsed.BestBody() != "" {
			return parsed.BestBody(), parsed.Text, parsed.Attachments
		}
		if err != nil {
			s.log.Warnf("parsing message source: %v", err)
		}
	}
	body := detail.Body
	if body == "" {
		body = detail.TextContent
	}
	return body, detail.TextContent, detail.Attachments
}

func (s *Service) decryptAndRender(ctx context.Context, msg *models.Message, source string, request interfaces.DetailRequest) enum.LoadStatus {
	cb := request.Callbacks
	identity := msg.Identity()

	result := s.pipeline.Run(ctx, pgp.PipelineInput{
		Armored:     source,
		AccountID:   msg.AccountID,
		MessageID:   identity,
		AllowPrompt: request.AllowPrompt,
	})

	if result.Status == enum.DecryptAborted || ctx.Err() != nil {
		return enum.LoadAborted
	}

	if cb.OnPgpStatus != nil {
		cb.OnPgpStatus(result.Status)
	}

	switch result.Status {
	case enum.DecryptSuccess:
		entry := &models.MessageBody{
			AccountID:   msg.AccountID,
			MessageID:   identity,
			Body:        result.Body,
			RawSource:   source,
			TextContent: result.TextContent,
			Attachments: result.Attachments,
			Decrypted:   true,
		}
		s.sanitizeEntry(entry)
		// A failed decrypt must never be cached as plaintext; only a body
		// that passed the completeness check is persisted.
		if entry.Complete() {
			s.persist(ctx, entry)
		}
		s.render(msg, cb, entry, false)
		return enum.LoadRendered

	case enum.DecryptLockedNoPrompt, enum.DecryptLockedPrompted, enum.DecryptNoKeysConfigured:
		// Locked is a presentable state, not an error.
		return enum.LoadRendered

	default:
		if cb.OnError != nil {
			cb.OnError(pkgerrors.Errorf("decryption failed: %s", result.FailureMessage))
		}
		return enum.LoadFailed
	}
}

// sanitizeEntry rewrites the entry body through the sanitizer and records
// the image counters. Nothing reaches a render callback unsanitized.
func (s *Service) sanitizeEntry(entry *models.MessageBody) {
	if entry.Body == "" {
		return
	}
	result, err := s.sanitizer.Sanitize(entry.Body)
	if err != nil {
		s.log.Warnf("sanitizing body for %s: %v", entry.MessageID, err)
		entry.Body = ""
		return
	}
	entry.Body = result.HTML
	entry.BlockedImageCount = result.BlockedImages
	entry.TrackingPixelCount = result.TrackingPixels
}

// persist writes the cache entry; cache write failures degrade to a warning.
func (s *Service) persist(ctx context.Context, entry *models.MessageBody) {
	if err := s.bodyRepo.Save(ctx, entry); err != nil {
		s.log.Warnf("caching body for %s: %v", entry.MessageID, err)
	}
}

// render delivers an entry through the callbacks. Results for an account
// that is no longer active are dropped.
func (s *Service) render(msg *models.Message, cb interfaces.DetailCallbacks, entry *models.MessageBody, fromCache bool) {
	if active := s.session.ActiveAccount(); active != "" && active != msg.AccountID {
		return
	}

	if cb.OnBody != nil {
		cb.OnBody(entry.Body, interfaces.BodyMeta{
			FromCache:   fromCache,
			Decrypted:   entry.Decrypted,
			TextContent: entry.TextContent,
		})
	}
	if cb.OnAttachments != nil {
		cb.OnAttachments(entry.Attachments)
	}
	if cb.OnImageStatus != nil {
		cb.OnImageStatus(entry.BlockedImageCount, entry.TrackingPixelCount)
	}
	s.session.MarkRendered(msg.CacheKey())
}

// failWithFallback serves the last cached plaintext when a fresh fetch
// fails, and only surfaces the error when there is nothing to show.
func (s *Service) failWithFallback(msg *models.Message, cb interfaces.DetailCallbacks, cached *models.MessageBody, err error) enum.LoadStatus {
	if cached.Complete() {
		s.log.Warnf("serving stale body for %s after fetch failure: %v", msg.Identity(), err)
		s.render(msg, cb, cached, true)
		return enum.LoadRendered
	}
	s.log.Errorf("detail load failed for %s: %v", msg.Identity(), err)
	if cb.OnError != nil {
		cb.OnError(err)
	}
	return enum.LoadFailed
}

// refreshMetadata re-fetches header fields for a record that rendered from
// cache but is missing subject/sender/date.
func (s *Service) refreshMetadata(ctx context.Context, msg *models.Message) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "detail.Service.refreshMetadata")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	payload, err := s.remote.Request(ctx, "messages", map[string]string{
		"accountId": msg.AccountID,
		"id":        msg.Identity(),
		"limit":     "1",
	}, nil)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debugf("metadata refresh for %s: %v", msg.Identity(), err)
		}
		return
	}

	var page dto.RemoteMessagePage
	if err := json.Unmarshal(payload, &page); err != nil || len(page.Messages) == 0 {
		return
	}

	updated := page.Messages[0].ToModel(msg.AccountID)
	if updated.ID == "" {
		updated.ID = msg.ID
	}
	if err := s.messageRepo.Upsert(ctx, &updated); err != nil && ctx.Err() == nil {
		s.log.Warnf("persisting refreshed metadata for %s: %v", msg.Identity(), err)
	}
}

var _ interfaces.DetailService = (*Service)(nil)
