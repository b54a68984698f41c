package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/entitlementsync/internal/shared/config"
)

const envPrefix = "ENTITLEMENTSYNC"

type Config struct {
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Engine   sharedConfig.EngineConfig   `mapstructure:"engine"`
	Ledger   sharedConfig.LedgerConfig   `mapstructure:"ledger"`
	Redis    sharedConfig.RedisConfig    `mapstructure:"redis"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Billing  sharedConfig.BillingConfig  `mapstructure:"billing"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (or the file at configFile when set) and
// overlays ENTITLEMENTSYNC_* environment variables. A missing default config
// file is not an error.
func Load(env, configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// Set environment variable prefix and replacer
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// Validate checks the settings the engine cannot start without.
func (c *Config) Validate() error {
	if c.Engine.ProductNamespace == "" {
		return errors.New("config: engine.product_namespace is required")
	}
	if c.Ledger.BaseURL == "" {
		return errors.New("config: ledger.base_url is required")
	}
	if c.Ledger.SigningSecret == "" {
		return errors.New("config: ledger.signing_secret is required")
	}
	if c.Billing.Mode != "" && c.Billing.Mode != "sandbox" {
		return fmt.Errorf("config: unsupported billing.mode %q", c.Billing.Mode)
	}
	if c.Database.Enabled && c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "debug")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Engine defaults
	v.SetDefault("engine.product_namespace", "")
	v.SetDefault("engine.user_email", "")
	v.SetDefault("engine.reconcile_interval", "15m")
	v.SetDefault("engine.sync_timeout", "30s")
	v.SetDefault("engine.event_buffer", 32)
	v.SetDefault("engine.timezone", "UTC")

	// Ledger defaults
	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.signing_secret", "")
	v.SetDefault("ledger.token_ttl", "10m")
	v.SetDefault("ledger.timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "entitlementsync:status:events")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "entitlementsync")
	v.SetDefault("database.sqlite_path", "entitlementsync.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Billing defaults
	v.SetDefault("billing.mode", "sandbox")
}
