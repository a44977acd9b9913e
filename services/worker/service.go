package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/mailvault/mailvault/dto"
	"github.com/mailvault/mailvault/interfaces"
	localerrors "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
	"github.com/mailvault/mailvault/services/mimeparse"
)

const taskQueueSize = 64

// Service is the in-process background worker. All requests are funneled
// through a single task queue so the worker can be stopped and callers can
// fall back to the direct network path when it is unavailable.
type Service struct {
	remote    interfaces.RemoteClient
	parser    *mimeparse.Service
	decryptor interfaces.Decryptor
	unlocker  interfaces.KeyUnlocker
	log       logger.Logger

	mu      sync.Mutex
	running bool
	tasks   chan func()
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewService(
	remote interfaces.RemoteClient,
	parser *mimeparse.Service,
	decryptor interfaces.Decryptor,
	unlocker interfaces.KeyUnlocker,
	log logger.Logger,
) *Service {
	return &Service{
		remote:    remote,
		parser:    parser,
		decryptor: decryptor,
		unlocker:  unlocker,
		log:       log,
	}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.tasks = make(chan func(), taskQueueSize)
	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.loop(s.tasks, s.stop)
	s.log.Info("sync worker started")
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("sync worker stopped")
}

func (s *Service) loop(tasks chan func(), stop chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case task := <-tasks:
			task()
		}
	}
}

// submit runs fn on the worker goroutine and waits for it. It fails with
// ErrWorkerUnavailable when the worker is stopped or the queue is full.
func (s *Service) submit(ctx context.Context, fn func()) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return localerrors.ErrWorkerUnavailable
	}
	tasks, stop := s.tasks, s.stop
	s.mu.Unlock()

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case tasks <- wrapped:
	case <-stop:
		return localerrors.ErrWorkerUnavailable
	case <-ctx.Done():
		return ctx.Err()
	default:
		return pkgerrors.Wrap(localerrors.ErrWorkerUnavailable, "task queue full")
	}

	select {
	case <-done:
		return nil
	case <-stop:
		return localerrors.ErrWorkerUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) MessageDetail(ctx context.Context, accountID, messageID string) (*interfaces.WorkerDetailResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "worker.Service.MessageDetail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentWorker(span)
	span.SetTag("message.id", messageID)

	var (
		result *interfaces.WorkerDetailResult
		err    error
	)
	submitErr := s.submit(ctx, func() {
		result, err = s.fetchDetail(ctx, accountID, messageID)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) fetchDetail(ctx context.Context, accountID, messageID string) (*interfaces.WorkerDetailResult, error) {
	payload, err := s.remote.Request(ctx, "messages/detail", map[string]string{
		"accountId": accountID,
		"messageId": messageID,
	}, nil)
	if err != nil {
		return nil, err
	}

	var detail dto.RemoteMessageDetail
	if err := json.Unmarshal(payload, &detail); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding detail payload")
	}

	result := &interfaces.WorkerDetailResult{
		Encrypted:   detail.Encrypted,
		RawSource:   detail.RawSource,
		Body:        detail.Body,
		TextContent: detail.TextContent,
		Attachments: dto.ToAttachmentList(detail.Attachments),
	}
	// Servers that do not classify content still get encrypted handling.
	if !result.Encrypted && (utils.IsEncryptedContent(detail.RawSource) || utils.IsEncryptedContent(detail.Body)) {
		result.Encrypted = true
		if result.RawSource == "" {
			result.RawSource = detail.Body
		}
	}
	return result, nil
}

func (s *Service) MessagePage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "worker.Service.MessagePage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentWorker(span)
	span.SetTag("folder", query.Folder)
	span.SetTag("page", query.Page)

	var (
		messages []models.Message
		err      error
	)
	submitErr := s.submit(ctx, func() {
		messages, err = s.fetchPage(ctx, accountID, query)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return messages, nil
}

func (s *Service) fetchPage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error) {
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

	messages := make([]models.Message, 0, len(page.Messages))
	for _, remote := range page.Messages {
		messages = append(messages, remote.ToModel(accountID))
	}
	return messages, nil
}

func (s *Service) Folders(ctx context.Context, accountID string) ([]models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "worker.Service.Folders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentWorker(span)

	var (
		folders []models.Folder
		err     error
	)
	submitErr := s.submit(ctx, func() {
		folders, err = s.fetchFolders(ctx, accountID)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return folders, nil
}

func (s *Service) fetchFolders(ctx context.Context, accountID string) ([]models.Folder, error) {
	payload, err := s.remote.Request(ctx, "folders", map[string]string{"accountId": accountID}, nil)
	if err != nil {
		return nil, err
	}

	var remoteFolders []dto.RemoteFolder
	if err := json.Unmarshal(payload, &remoteFolders); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding folder listing")
	}

	folders := make([]models.Folder, 0, len(remoteFolders))
	for _, remote := range remoteFolders {
		folders = append(folders, remote.ToModel(accountID))
	}
	return folders, nil
}

func (s *Service) ParseMime(ctx context.Context, raw string) (*models.ParsedMessage, error) {
	var (
		parsed *models.ParsedMessage
		err    error
	)
	submitErr := s.submit(ctx, func() {
		parsed, err = s.parser.Parse(ctx, raw)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	return parsed, err
}

func (s *Service) Decrypt(ctx context.Context, request interfaces.DecryptRequest) (*interfaces.DecryptResult, error) {
	var (
		result *interfaces.DecryptResult
		err    error
	)
	submitErr := s.submit(ctx, func() {
		result, err = s.decryptor.Decrypt(ctx, request)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	return result, err
}

func (s *Service) UnlockKey(ctx context.Context, request interfaces.UnlockRequest) (*interfaces.UnlockResult, error) {
	var (
		result *interfaces.UnlockResult
		err    error
	)
	submitErr := s.submit(ctx, func() {
		result, err = s.unlocker.Unlock(ctx, request)
	})
	if submitErr != nil {
		return nil, submitErr
	}
	return result, err
}

var _ interfaces.SyncWorker = (*Service)(nil)
