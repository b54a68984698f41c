package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// EngineConfig replaces process-wide billing/region state: everything the
// engine needs to know about its installation is passed in here.
type EngineConfig struct {
	ProductNamespace  string        `mapstructure:"product_namespace"`
	UserEmail         string        `mapstructure:"user_email"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	SyncTimeout       time.Duration `mapstructure:"sync_timeout"`
	EventBuffer       int           `mapstructure:"event_buffer"`
	Timezone          string        `mapstructure:"timezone"`
}

type LedgerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

// SandboxProduct seeds the sandbox billing authority's catalog.
type SandboxProduct struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	Price       string `mapstructure:"price"`
}

type BillingConfig struct {
	Mode     string           `mapstructure:"mode"`
	Products []SandboxProduct `mapstructure:"products"`
}
