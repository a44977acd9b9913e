package config

import (
	"github.com/mailvault/mailvault/internal/database"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

type AppConfig struct {
	// DataDir holds the cache database and derived state.
	DataDir string `env:"MAILVAULT_DATA_DIR" envDefault:"./data"`

	RemoteBaseURL  string `env:"MAILVAULT_REMOTE_BASE_URL,required"`
	RemoteAPIToken string `env:"MAILVAULT_REMOTE_API_TOKEN"`

	// CacheBudgetBytes caps the cache database size; the eviction sweep
	// enforces it. Zero disables the budget.
	CacheBudgetBytes uint64 `env:"MAILVAULT_CACHE_BUDGET_BYTES" envDefault:"524288000"`

	PrefetchLimit       int `env:"MAILVAULT_PREFETCH_LIMIT" envDefault:"20"`
	PrefetchConcurrency int `env:"MAILVAULT_PREFETCH_CONCURRENCY" envDefault:"3"`

	Logger  *logger.Config
	Tracing *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Path     string `env:"MAILVAULT_DB_PATH"`
	LogLevel string `env:"MAILVAULT_DB_LOG_LEVEL" envDefault:"WARN"`
}

// ToConnectionConfig maps onto the database package's config shape.
func (c *DatabaseConfig) ToConnectionConfig() *database.DatabaseConfig {
	return &database.DatabaseConfig{
		Path:     c.Path,
		LogLevel: c.LogLevel,
	}
}
