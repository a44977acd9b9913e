package cron

import (
	"context"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	cron_config "github.com/mailvault/mailvault/internal/cron/config"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/internal/session"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services/quota"
)

// GroupMaintenance serializes the maintenance jobs against each other.
const GroupMaintenance = "maintenance"

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMaintenance: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	stopCh   chan struct{}
	jobIDs   map[string]cronv3.EntryID
	session  *session.Session
	repos    *repository.Repositories
	prefetch interfaces.PrefetchService
	quota    *quota.Service
}

func NewCronManager(
	cfg *config.Config,
	log logger.Logger,
	sess *session.Session,
	repos *repository.Repositories,
	prefetchService interfaces.PrefetchService,
	quotaService *quota.Service,
) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		session:  sess,
		repos:    repos,
		prefetch: prefetchService,
		quota:    quotaService,
	}
}

// Start initializes and starts the cron scheduler.
func (cm *CronManager) Start() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler.
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Info("Cron heartbeat")
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleInboxPrefetch != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleInboxPrefetch, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMaintenance].Lock()
			defer jobLocks.locks[GroupMaintenance].Unlock()
			cm.prefetchInbox()
		})
		if err != nil {
			cm.log.Fatalf("Could not add inbox prefetch cron job: %v", err)
		}
		cm.jobIDs["inbox_prefetch"] = id
		cm.log.Infof("Registered inbox prefetch job with schedule: %s", cronConfig.CronScheduleInboxPrefetch)
	}

	if cronConfig.CronScheduleQuotaSweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleQuotaSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMaintenance].Lock()
			defer jobLocks.locks[GroupMaintenance].Unlock()
			cm.sweepQuota()
		})
		if err != nil {
			cm.log.Fatalf("Could not add quota sweep cron job: %v", err)
		}
		cm.jobIDs["quota_sweep"] = id
		cm.log.Infof("Registered quota sweep job with schedule: %s", cronConfig.CronScheduleQuotaSweep)
	}

	if cronConfig.CronScheduleSyncStateCleanup != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleSyncStateCleanup, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMaintenance].Lock()
			defer jobLocks.locks[GroupMaintenance].Unlock()
			cm.cleanupSyncStates()
		})
		if err != nil {
			cm.log.Fatalf("Could not add sync-state cleanup cron job: %v", err)
		}
		cm.jobIDs["sync_state_cleanup"] = id
		cm.log.Infof("Registered sync-state cleanup job with schedule: %s", cronConfig.CronScheduleSyncStateCleanup)
	}
}

// prefetchInbox warms recent inbox bodies for the active account.
func (cm *CronManager) prefetchInbox() {
	accountID := cm.session.ActiveAccount()
	if accountID == "" {
		return
	}

	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.prefetchInbox")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	ctx = tracing.WithAccountID(ctx, accountID)

	candidates, err := cm.repos.MessageRepository.GetPage(ctx, accountID, models.ListQuery{
		Folder: models.InboxPath,
		Page:   1,
		Limit:  cm.cfg.AppConfig.PrefetchLimit * 2,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to read inbox page for prefetch: %v", err)
		return
	}

	fetched, err := cm.prefetch.PrefetchBodies(ctx, candidates, interfaces.PrefetchOptions{
		Limit:       cm.cfg.AppConfig.PrefetchLimit,
		Concurrency: cm.cfg.AppConfig.PrefetchConcurrency,
		Folder:      models.InboxPath,
		Prioritize:  true,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Inbox prefetch failed: %v", err)
		return
	}
	cm.log.Infof("Inbox prefetch warmed %d bodies", fetched)
}

// sweepQuota evicts old cached bodies for every configured account.
func (cm *CronManager) sweepQuota() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepQuota")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	accounts, err := cm.repos.AccountRepository.GetAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list accounts for quota sweep: %v", err)
		return
	}

	for _, account := range accounts {
		if _, err := cm.quota.Sweep(ctx, account.ID); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Quota sweep failed for account %s: %v", account.ID, err)
		}
	}
}

// cleanupSyncStates removes sync records whose account no longer exists.
func (cm *CronManager) cleanupSyncStates() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.cleanupSyncStates")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	accounts, err := cm.repos.AccountRepository.GetAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list accounts for sync-state cleanup: %v", err)
		return
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}

	removed, err := cm.repos.SyncStateRepository.DeleteOrphans(ctx, ids)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Sync-state cleanup failed: %v", err)
		return
	}
	if removed > 0 {
		cm.log.Infof("Removed %d orphaned sync states", removed)
	}
}
