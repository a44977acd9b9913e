package services

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/services/detail"
	"github.com/mailvault/mailvault/services/listsync"
	"github.com/mailvault/mailvault/services/mimeparse"
	"github.com/mailvault/mailvault/services/pgp"
	"github.com/mailvault/mailvault/services/prefetch"
	"github.com/mailvault/mailvault/services/quota"
	"github.com/mailvault/mailvault/services/remote"
	"github.com/mailvault/mailvault/services/sanitizer"
	"github.com/mailvault/mailvault/services/search"
	"github.com/mailvault/mailvault/services/worker"
)

// Services wires every service of the cache core against one session and
// one repository set.
type Services struct {
	Session *session.Session

	RemoteClient    interfaces.RemoteClient
	MimeParser      *mimeparse.Service
	Sanitizer       *sanitizer.Service
	KeyVault        *pgp.KeyVault
	DecryptEngine   *pgp.Engine
	PgpPipeline     *pgp.Service
	SyncWorker      *worker.Service
	SearchIndex     interfaces.SearchIndex
	QuotaService    *quota.Service
	DetailService   interfaces.DetailService
	ListSyncService *listsync.Service
	PrefetchService interfaces.PrefetchService
}

// ExternalCapabilities are the UI-provided hooks the decrypt pipeline needs.
// Tests and the headless daemon pass no-op implementations.
type ExternalCapabilities struct {
	Prompt   interfaces.PassphrasePrompt
	Notifier interfaces.Notifier
}

func InitServices(
	cfg *config.Config,
	db *gorm.DB,
	repos *repository.Repositories,
	capabilities ExternalCapabilities,
	log logger.Logger,
) (*Services, error) {
	sess := session.New(log)

	remoteClient := remote.NewClient(cfg.AppConfig.RemoteBaseURL, cfg.AppConfig.RemoteAPIToken, log)
	mimeParser := mimeparse.NewService(log)
	sanitizerService := sanitizer.NewService(log)

	keyVault := pgp.NewKeyVault(log)
	decryptEngine := pgp.NewEngine(keyVault, repos.PgpKeyRepository, mimeParser, log)

	passStore, err := pgp.NewPassphraseStore(log)
	if err != nil {
		// The OS keyring is optional; without it passphrases live only in
		// the session.
		log.Warnf("keyring unavailable, passphrases will not persist: %v", err)
		passStore = nil
	}

	pipeline := pgp.NewService(
		sess,
		repos.PgpKeyRepository,
		repos.MessageBodyRepository,
		decryptEngine,
		keyVault,
		capabilities.Prompt,
		capabilities.Notifier,
		passStore,
		log,
	)

	syncWorker := worker.NewService(remoteClient, mimeParser, decryptEngine, keyVault, log)
	searchIndex := search.NewService(db, log)
	quotaService := quota.NewService(cfg.Database.Path, cfg.AppConfig.CacheBudgetBytes, repos.MessageBodyRepository, log)

	detailService := detail.NewService(
		sess,
		repos.MessageRepository,
		repos.MessageBodyRepository,
		syncWorker,
		remoteClient,
		mimeParser,
		sanitizerService,
		pipeline,
		log,
	)

	listSyncService := listsync.NewService(
		sess,
		repos.MessageRepository,
		repos.MessageBodyRepository,
		repos.FolderRepository,
		repos.SyncStateRepository,
		syncWorker,
		remoteClient,
		searchIndex,
		quotaService,
		log,
	)

	prefetchService := prefetch.NewService(sess, repos.MessageBodyRepository, detailService, quotaService, log)

	return &Services{
		Session:         sess,
		RemoteClient:    remoteClient,
		MimeParser:      mimeParser,
		Sanitizer:       sanitizerService,
		KeyVault:        keyVault,
		DecryptEngine:   decryptEngine,
		PgpPipeline:     pipeline,
		SyncWorker:      syncWorker,
		SearchIndex:     searchIndex,
		QuotaService:    quotaService,
		DetailService:   detailService,
		ListSyncService: listSyncService,
		PrefetchService: prefetchService,
	}, nil
}

// NoopPrompt declines every passphrase request, used by the headless daemon.
type NoopPrompt struct{}

func (NoopPrompt) Open(ctx context.Context, keyName string) (*interfaces.PromptResult, error) {
	return nil, errors.New("no prompt available")
}

// NoopNotifier drops notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyMissingKeys(accountID string) {}
