// Package bootstrap assembles a running entitlement engine from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appentitlement "github.com/orris-inc/entitlementsync/internal/application/entitlement"
	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/auth"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/billing"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/cache"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/config"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/database"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/ledger"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/pubsub"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/repository"
	"github.com/orris-inc/entitlementsync/internal/shared/biztime"
	"github.com/orris-inc/entitlementsync/internal/shared/goroutine"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const redisPingTimeout = 5 * time.Second

// App owns the engine and every connection it was built on.
type App struct {
	Config  *config.Config
	Engine  *appentitlement.SubscriptionEngine
	Billing *billing.Sandbox
	Redis   *redis.Client
	DB      *gorm.DB
	History *repository.SyncHistoryRepository
	Relay   *pubsub.RedisStatusEventBus
	Logger  logger.Interface

	relayCancel context.CancelFunc
	relayWG     sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// Options tune what New connects to.
type Options struct {
	// SkipRelay builds the app without forwarding engine events to Redis.
	SkipRelay bool
}

// New connects the optional Redis and database backends and builds the
// engine. The engine is not started.
func New(cfg *config.Config, log logger.Interface, opts Options) (*App, error) {
	if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
		return nil, fmt.Errorf("invalid engine timezone: %w", err)
	}
	if err := biztime.Init(cfg.Engine.Timezone); err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: log}

	var statusCache services.StatusCache = cache.NewMemoryStatusCache()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Redis = client
		statusCache = cache.NewRedisStatusCache(client, log.Named("status-cache"))
		log.Infow("redis connected", "addr", cfg.Redis.GetAddr())
	}

	var history services.SyncHistoryRecorder
	if cfg.Database.Enabled {
		db, err := database.Open(&cfg.Database, log.Named("database"))
		if err != nil {
			app.closeConnections()
			return nil, err
		}
		app.DB = db
		app.History = repository.NewSyncHistoryRepository(db)
		history = app.History
	}

	app.Billing = billing.NewSandbox(cfg.Engine.ProductNamespace, cfg.Billing.Products, log.Named("billing"))
	tokens := auth.NewLedgerTokenService(cfg.Ledger.SigningSecret, cfg.Ledger.TokenTTL)
	ledgerClient := ledger.NewClient(cfg.Ledger, tokens, log.Named("ledger"))

	engine, err := appentitlement.NewSubscriptionEngine(cfg.Engine, appentitlement.Dependencies{
		Billing: app.Billing,
		Ledger:  ledgerClient,
		Cache:   statusCache,
		History: history,
		Clock:   biztime.NowUTC,
		Logger:  log.Named("engine"),
	})
	if err != nil {
		app.closeConnections()
		return nil, err
	}
	app.Engine = engine

	if app.Redis != nil && !opts.SkipRelay {
		app.Relay = pubsub.NewRedisStatusEventBus(app.Redis, cfg.Redis.Channel, log.Named("relay"))
	}

	return app, nil
}

// Start starts the engine and, when Redis is configured, the event relay.
func (a *App) Start(ctx context.Context) error {
	if err := a.Engine.Start(ctx); err != nil {
		return err
	}

	if a.Relay != nil {
		sub := a.Engine.Subscribe()
		relayCtx, cancel := context.WithCancel(context.Background())
		a.relayCancel = cancel
		a.relayWG.Add(1)
		goroutine.SafeGo(a.Logger, "status-relay", func() {
			defer a.relayWG.Done()
			if err := a.Relay.Forward(relayCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Warnw("status relay stopped", "error", err)
			}
		})
	}
	return nil
}

// Close tears the engine down before closing its connections. Safe to call
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Engine != nil {
			errs = append(errs, a.Engine.Close())
		}
		if a.relayCancel != nil {
			a.relayCancel()
		}
		a.relayWG.Wait()
		errs = append(errs, a.closeConnections())
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) closeConnections() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.Close(a.DB))
	}
	return errors.Join(errs...)
}
