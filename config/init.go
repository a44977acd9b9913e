package config

import (
	"log"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

type Config struct {
	AppConfig *AppConfig
	Database  *DatabaseConfig
	Logger    *logger.Config
	Tracing   *tracing.JaegerConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig: &AppConfig{},
		Database:  &DatabaseConfig{},
		Logger:    &logger.Config{},
		Tracing:   &tracing.JaegerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailvault config: %v", err)
	}

	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(config.AppConfig.DataDir, "mailvault.db")
	}
	config.AppConfig.Logger = config.Logger
	config.AppConfig.Tracing = config.Tracing

	return config, nil
}
