package history

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/infrastructure/database"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/repository"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/bootstrap"
)

func NewCommand() *cobra.Command {
	var (
		flags  bootstrap.Flags
		filter repository.SyncHistoryFilter
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent backend sync attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &flags, filter, cmd.OutOrStdout())
		},
	}
	flags.Bind(cmd)
	cmd.Flags().StringVar(&filter.ProductID, "product", "", "Only attempts for this product ID")
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "Only this operation (sync, purchase)")
	cmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "Only failed attempts")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Maximum rows")

	return cmd
}

func run(ctx context.Context, flags *bootstrap.Flags, filter repository.SyncHistoryFilter, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := bootstrap.Setup(flags)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("history requires database.enabled")
	}

	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	rows, err := repository.NewSyncHistoryRepository(db).ListRecent(ctx, filter)
	if err != nil {
		return err
	}

	return writeTable(out, rows)
}

func writeTable(out io.Writer, rows []*models.SyncHistoryModel) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPTED\tOPERATION\tTRIGGER\tPRODUCT\tPROPOSED\tWILL_RENEW\tRESULT\tDURATION\tERROR")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AttemptedAt.UTC().Format(time.RFC3339),
			r.Operation,
			r.Trigger,
			r.ProductID,
			r.ProposedStatus,
			willRenewColumn(r),
			resultColumn(r),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			deref(r.ErrorMessage),
		)
	}
	return w.Flush()
}

func willRenewColumn(r *models.SyncHistoryModel) string {
	if r.RenewalUndetermined {
		return "unknown"
	}
	return strconv.FormatBool(r.WillRenew)
}

func resultColumn(r *models.SyncHistoryModel) string {
	if !r.Success {
		return "failed"
	}
	if r.ResultStatus == nil {
		return "ok"
	}
	return *r.ResultStatus
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
