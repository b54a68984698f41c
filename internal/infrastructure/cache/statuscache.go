package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const (
	statusKeyPrefix    = "entitlementsync:status:"
	statusCurrentKey   = statusKeyPrefix + "current"
	statusTTL          = 7 * 24 * time.Hour
	fieldProductID     = "product_id"
	fieldStatus        = "status"
	fieldPlanName      = "plan_name"
	fieldExpiresAt     = "expires_at"
	fieldWillRenew     = "will_renew"
	fieldSeatCount     = "seat_count"
	fieldCanCreateTeam = "can_create_team"
)

// MemoryStatusCache keeps the last authoritative records in process memory.
type MemoryStatusCache struct {
	mu       sync.RWMutex
	products map[string]entitlement.BackendSubscriptionInfo
	current  *entitlement.BackendSubscriptionInfo
}

// NewMemoryStatusCache creates an empty in-memory status cache
func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{products: make(map[string]entitlement.BackendSubscriptionInfo)}
}

func (c *MemoryStatusCache) Get(_ context.Context, productID string) (*entitlement.BackendSubscriptionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.products[productID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (c *MemoryStatusCache) Set(_ context.Context, productID string, info *entitlement.BackendSubscriptionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID] = *info
	return nil
}

func (c *MemoryStatusCache) Current(_ context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil, nil
	}
	info := *c.current
	return &info, nil
}

func (c *MemoryStatusCache) SetCurrent(_ context.Context, info *entitlement.BackendSubscriptionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *info
	c.current = &copied
	return nil
}

// RedisStatusCache stores the last authoritative records as Redis hashes so
// they survive restarts and are shared between instances.
type RedisStatusCache struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisStatusCache creates a new Redis-based status cache
func NewRedisStatusCache(client *redis.Client, logger logger.Interface) *RedisStatusCache {
	return &RedisStatusCache{
		client: client,
		logger: logger,
	}
}

func (c *RedisStatusCache) key(productID string) string {
	return statusKeyPrefix + "product:" + productID
}

func (c *RedisStatusCache) Get(ctx context.Context, productID string) (*entitlement.BackendSubscriptionInfo, error) {
	return c.load(ctx, c.key(productID))
}

func (c *RedisStatusCache) Set(ctx context.Context, productID string, info *entitlement.BackendSubscriptionInfo) error {
	if err := c.store(ctx, c.key(productID), info); err != nil {
		return err
	}

	c.logger.Debugw("subscription status cached",
		"product_id", productID,
		"status", info.Status,
	)
	return nil
}

func (c *RedisStatusCache) Current(ctx context.Context) (*entitlement.BackendSubscriptionInfo, error) {
	return c.load(ctx, statusCurrentKey)
}

func (c *RedisStatusCache) SetCurrent(ctx context.Context, info *entitlement.BackendSubscriptionInfo) error {
	return c.store(ctx, statusCurrentKey, info)
}

func (c *RedisStatusCache) load(ctx context.Context, key string) (*entitlement.BackendSubscriptionInfo, error) {
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription status from cache: %w", err)
	}

	if len(result) == 0 {
		return nil, nil // Cache miss
	}

	info := &entitlement.BackendSubscriptionInfo{
		ProductID:     result[fieldProductID],
		Status:        result[fieldStatus],
		PlanName:      result[fieldPlanName],
		WillRenew:     result[fieldWillRenew] == "1",
		CanCreateTeam: result[fieldCanCreateTeam] == "1",
	}

	if seats, ok := result[fieldSeatCount]; ok {
		info.SeatCount, _ = strconv.Atoi(seats)
	}

	if expiresStr := result[fieldExpiresAt]; expiresStr != "" {
		expiresUnix, err := strconv.ParseInt(expiresStr, 10, 64)
		if err == nil {
			expiresAt := time.Unix(expiresUnix, 0).UTC()
			info.ExpiresAt = &expiresAt
		}
	}

	return info, nil
}

func (c *RedisStatusCache) store(ctx context.Context, key string, info *entitlement.BackendSubscriptionInfo) error {
	expiresAt := ""
	if info.ExpiresAt != nil {
		expiresAt = strconv.FormatInt(info.ExpiresAt.Unix(), 10)
	}

	fields := map[string]interface{}{
		fieldProductID:     info.ProductID,
		fieldStatus:        info.Status,
		fieldPlanName:      info.PlanName,
		fieldExpiresAt:     expiresAt,
		fieldWillRenew:     boolToInt(info.WillRenew),
		fieldSeatCount:     info.SeatCount,
		fieldCanCreateTeam: boolToInt(info.CanCreateTeam),
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, statusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set subscription status in cache: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
