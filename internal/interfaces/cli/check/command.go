package check

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/dto"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/bootstrap"
)

func NewCommand() *cobra.Command {
	var (
		flags   bootstrap.Flags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one forced subscription check and print the backend record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &flags, timeout, cmd.OutOrStdout())
		},
	}
	flags.Bind(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall deadline for the check")

	return cmd
}

func run(ctx context.Context, flags *bootstrap.Flags, timeout time.Duration, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := bootstrap.Setup(flags)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(cfg, log, bootstrap.Options{SkipRelay: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Errorw("engine teardown failed", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := app.Engine.ForceCheck(ctx)
	if err != nil {
		return fmt.Errorf("subscription check failed: %w", err)
	}

	return writeJSON(out, dto.ToSubscriptionInfoDTO(info, cfg.Engine.ProductNamespace))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
