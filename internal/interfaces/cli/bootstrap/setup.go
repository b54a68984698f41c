package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/infrastructure/config"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// Flags shared by every command.
type Flags struct {
	Env        string
	ConfigFile string
}

// Bind registers the shared flags on cmd.
func (f *Flags) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Path to the config file (default ./configs/config.yaml)")
}

// Setup loads configuration and initializes the process logger.
func Setup(f *Flags) (*config.Config, logger.Interface, error) {
	cfg, err := config.Load(MapEnvToGinMode(f.Env), f.ConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode == "debug"); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.NewLogger(), nil
}

// MapEnvToGinMode translates deployment environments to gin modes.
func MapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	default:
		return "debug"
	}
}
