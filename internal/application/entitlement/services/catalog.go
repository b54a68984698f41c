package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// ProductFetcher loads product metadata from the billing authority.
type ProductFetcher interface {
	FetchProducts(ctx context.Context, ids []string) ([]entitlement.Product, error)
}

// CatalogRetryConfig bounds the background catalog load.
type CatalogRetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultCatalogRetryConfig retries for up to two minutes.
func DefaultCatalogRetryConfig() CatalogRetryConfig {
	return CatalogRetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
	}
}

// Catalog caches the purchasable products of this installation.
type Catalog struct {
	fetcher   ProductFetcher
	namespace string
	ids       []string
	retry     CatalogRetryConfig
	logger    logger.Interface

	mu       sync.RWMutex
	products map[string]entitlement.Product
	loaded   bool
}

// NewCatalog creates a catalog for every (tier, interval) product of namespace.
func NewCatalog(fetcher ProductFetcher, namespace string, retry CatalogRetryConfig, log logger.Interface) *Catalog {
	return &Catalog{
		fetcher:   fetcher,
		namespace: namespace,
		ids:       entitlement.AllProductIDs(namespace),
		retry:     retry,
		logger:    log,
		products:  make(map[string]entitlement.Product),
	}
}

// Refresh fetches the catalog once. A failure keeps the previous contents.
func (c *Catalog) Refresh(ctx context.Context) error {
	products, err := c.fetcher.FetchProducts(ctx, c.ids)
	if err != nil {
		return fmt.Errorf("%w: %w", entitlement.ErrCatalogUnavailable, err)
	}

	loaded := make(map[string]entitlement.Product, len(products))
	for _, product := range products {
		if product.Tier == "" {
			product.Tier = entitlement.TierForProductID(c.namespace, product.ID)
		}
		loaded[product.ID] = product
	}

	c.mu.Lock()
	c.products = loaded
	c.loaded = true
	c.mu.Unlock()

	c.logger.Infow("product catalog loaded",
		"requested", len(c.ids),
		"found", len(loaded),
	)
	return nil
}

// Load refreshes the catalog, retrying with exponential backoff until it
// succeeds, ctx is done, or the retry budget is spent.
func (c *Catalog) Load(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retry.InitialInterval
	expBackoff.MaxInterval = c.retry.MaxInterval
	expBackoff.Reset()

	startTime := time.Now()
	var attempt int

	for {
		attempt++
		err := c.Refresh(ctx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.retry.MaxElapsedTime > 0 && time.Since(startTime) >= c.retry.MaxElapsedTime {
			return fmt.Errorf("catalog load gave up after %d attempts: %w", attempt, err)
		}

		delay := expBackoff.NextBackOff()
		if delay == backoff.Stop {
			return err
		}

		c.logger.Warnw("product catalog fetch failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Lookup returns a product by identifier. It fails with ErrCatalogUnavailable
// while the catalog was never loaded and ErrProductNotFound otherwise.
func (c *Catalog) Lookup(productID string) (entitlement.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return entitlement.Product{}, entitlement.ErrCatalogUnavailable
	}
	product, ok := c.products[productID]
	if !ok {
		return entitlement.Product{}, fmt.Errorf("%w: %s", entitlement.ErrProductNotFound, productID)
	}
	return product, nil
}

// Loaded reports whether at least one fetch succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Products returns the loaded products ordered by identifier.
func (c *Catalog) Products() []entitlement.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entitlement.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
