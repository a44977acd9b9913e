package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Inbox body prefetch, every five minutes
	CronScheduleInboxPrefetch string `env:"CRON_SCHEDULE_INBOX_PREFETCH" envDefault:"0 */5 * * * *"`
	// Cache quota sweep, every hour
	CronScheduleQuotaSweep string `env:"CRON_SCHEDULE_QUOTA_SWEEP" envDefault:"0 0 * * * *"`
	// Orphaned sync-state cleanup, daily at midnight
	CronScheduleSyncStateCleanup string `env:"CRON_SCHEDULE_SYNC_STATE_CLEANUP" envDefault:"0 0 0 * * *"`
}
