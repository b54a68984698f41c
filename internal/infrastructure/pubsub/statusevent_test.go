package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/shared/events"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// startSubscriber runs subscribe in the background and waits until the
// subscription is registered with Redis.
func startSubscriber(t *testing.T, client *redis.Client, channel string, subscribe func(ctx context.Context) error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = subscribe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(context.Background(), channel).Result()
		return err == nil && n[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)
	return cancel
}

func TestNewStatusChangeEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := at.Add(24 * time.Hour)
	info := entitlement.BackendSubscriptionInfo{
		ProductID: "com.x.plus.month",
		Status:    "active",
		PlanName:  "Plus",
		ExpiresAt: &expires,
		WillRenew: true,
	}

	wire, ok := NewStatusChangeEvent(entitlement.NewStatusUpdatedEvent("com.x.plus.month", "periodic", info, at))
	require.True(t, ok)
	assert.Equal(t, entitlement.EventTypeStatusUpdated, wire.Type)
	assert.Equal(t, "periodic", wire.Trigger)
	assert.Equal(t, expires.Unix(), wire.ExpiresAt)
	assert.Equal(t, at.Unix(), wire.Timestamp)
	assert.NotEmpty(t, wire.EventID)

	wire, ok = NewStatusChangeEvent(entitlement.NewPurchaseCompletedEvent("com.x.plus.month", "tx-1", info, at))
	require.True(t, ok)
	assert.Equal(t, entitlement.EventTypePurchaseCompleted, wire.Type)
	assert.Equal(t, "tx-1", wire.TransactionID)
}

func TestRedisStatusEventBus_StampsInstanceID(t *testing.T) {
	client := setupTestRedis(t)
	local := NewRedisStatusEventBus(client, "", logger.NewNop())
	remote := NewRedisStatusEventBus(client, "", logger.NewNop())
	require.NotEqual(t, local.InstanceID(), remote.InstanceID())

	received := make(chan StatusChangeEvent, 4)
	startSubscriber(t, client, local.Channel(), func(ctx context.Context) error {
		return local.SubscribeAll(ctx, func(_ context.Context, e StatusChangeEvent) { received <- e })
	})

	ctx := context.Background()
	require.NoError(t, local.Publish(ctx, StatusChangeEvent{ProductID: "own", InstanceID: "spoofed"}))
	require.NoError(t, remote.Publish(ctx, StatusChangeEvent{ProductID: "remote"}))

	got := map[string]string{}
	for len(got) < 2 {
		select {
		case e := <-received:
			got[e.ProductID] = e.InstanceID
		case <-time.After(2 * time.Second):
			t.Fatalf("events not delivered, got %v", got)
		}
	}
	assert.Equal(t, local.InstanceID(), got["own"])
	assert.Equal(t, remote.InstanceID(), got["remote"])
}

func TestRedisStatusEventBus_ForwardsBusEvents(t *testing.T) {
	client := setupTestRedis(t)
	relay := NewRedisStatusEventBus(client, "test:events", logger.NewNop())

	received := make(chan StatusChangeEvent, 4)
	startSubscriber(t, client, "test:events", func(ctx context.Context) error {
		return relay.SubscribeAll(ctx, func(_ context.Context, e StatusChangeEvent) { received <- e })
	})

	bus := events.NewBus(8)
	sub := bus.Subscribe()
	forwardDone := make(chan error, 1)
	go func() { forwardDone <- relay.Forward(context.Background(), sub) }()

	info := entitlement.BackendSubscriptionInfo{Status: "active"}
	bus.Publish(entitlement.NewStatusUpdatedEvent("com.x.team.year", "listener", info, time.Now()))

	select {
	case e := <-received:
		assert.Equal(t, "com.x.team.year", e.ProductID)
		assert.Equal(t, "active", e.Status)
		assert.Equal(t, "listener", e.Trigger)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarded event not delivered")
	}

	bus.Close()
	select {
	case err := <-forwardDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forward did not stop after bus close")
	}
}
