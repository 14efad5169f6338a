// Package config provides configuration loading, defaults, and validation
// for the recurd scheduling daemon.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all daemon configuration parameters.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig controls the periodic materialization tick.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"min=1s"`
}

// EngineConfig carries the materialization coordinator's knobs.
type EngineConfig struct {
	// CollaboratorTimeout bounds one advance pass against the store.
	CollaboratorTimeout time.Duration `mapstructure:"collaborator_timeout" validate:"min=100ms"`
	// MaterializeHorizon is how far ahead of now occurrences are created.
	MaterializeHorizon time.Duration `mapstructure:"materialize_horizon" validate:"min=0"`
	// RetryCeiling is the consecutive-failure count after which a stalled
	// series is escalated to error-level logging.
	RetryCeiling int `mapstructure:"retry_ceiling" validate:"min=1"`
	// Concurrency limits parallel series advances per pass.
	Concurrency int `mapstructure:"concurrency" validate:"min=1"`
}

// Load reads configuration from defaults, an optional config.yaml, and
// RECURD_* environment variables, then validates the result.
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("RECURD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	viper.SetDefault("database.path", "recurd.db")

	viper.SetDefault("scheduler.tick_interval", time.Minute)

	viper.SetDefault("engine.collaborator_timeout", 5*time.Second)
	viper.SetDefault("engine.materialize_horizon", 7*24*time.Hour)
	viper.SetDefault("engine.retry_ceiling", 5)
	viper.SetDefault("engine.concurrency", 8)
}
