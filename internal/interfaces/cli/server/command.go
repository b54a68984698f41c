package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/orris-inc/entitlementsync/internal/interfaces/http"
	"github.com/orris-inc/entitlementsync/internal/shared/version"
)

const shutdownTimeout = 30 * time.Second

func NewCommand() *cobra.Command {
	var flags bootstrap.Flags

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the entitlement engine and its HTTP API",
		Long:  `Start the subscription engine (transaction listener, periodic reconciler) and serve its HTTP API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&flags)
		},
	}
	flags.Bind(cmd)

	return cmd
}

func run(flags *bootstrap.Flags) error {
	cfg, log, err := bootstrap.Setup(flags)
	if err != nil {
		return err
	}

	log.Infow("starting server",
		"environment", flags.Env,
		"version", version.Version,
		"namespace", cfg.Engine.ProductNamespace,
	)

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {}

	app, err := bootstrap.New(cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Errorw("engine teardown failed", "error", err)
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Engine.SyncTimeout+5*time.Second)
	err = app.Start(startCtx)
	cancelStart()
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	router, err := httpRouter.NewRouter(app.Engine, cfg.Engine.ProductNamespace, log)
	if err != nil {
		return err
	}
	router.SetupRoutes()

	srv := &http.Server{
		Addr:        cfg.Server.GetAddr(),
		Handler:     router.GetEngine(),
		ReadTimeout: 15 * time.Second,
		// Purchases and forced checks wait on the ledger; /v1/events streams.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting",
			"address", cfg.Server.GetAddr(),
			"mode", cfg.Server.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Infow("shutting down server...", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	// Closing the engine first ends open event streams.
	if err := app.Close(); err != nil {
		log.Errorw("engine teardown failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}
