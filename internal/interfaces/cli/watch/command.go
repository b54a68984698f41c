package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/infrastructure/pubsub"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/bootstrap"
)

func NewCommand() *cobra.Command {
	var flags bootstrap.Flags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print status events relayed over Redis by running engines",
		Long:  `Subscribe to the Redis status channel and print every relayed status_updated and purchase_completed event as one JSON line until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, &flags, cmd.OutOrStdout())
		},
	}
	flags.Bind(cmd)

	return cmd
}

func run(ctx context.Context, flags *bootstrap.Flags, out io.Writer) error {
	cfg, log, err := bootstrap.Setup(flags)
	if err != nil {
		return err
	}
	if !cfg.Redis.Enabled {
		return errors.New("watch requires redis.enabled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	bus := pubsub.NewRedisStatusEventBus(client, cfg.Redis.Channel, log)
	log.Infow("watching status events", "channel", bus.Channel())

	enc := json.NewEncoder(out)
	err = bus.SubscribeAll(ctx, func(_ context.Context, event pubsub.StatusChangeEvent) {
		if err := enc.Encode(event); err != nil {
			log.Warnw("failed to write status event", "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
