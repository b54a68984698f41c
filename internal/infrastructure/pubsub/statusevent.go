package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/domain/shared/events"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// DefaultStatusEventChannel is used when no channel is configured.
const DefaultStatusEventChannel = "entitlementsync:status:events"

const publishTimeout = 5 * time.Second

// StatusChangeEvent is the wire form of a StatusUpdated or PurchaseCompleted
// event relayed between instances.
type StatusChangeEvent struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	ProductID     string `json:"product_id"`
	Trigger       string `json:"trigger,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
	PlanName      string `json:"plan_name,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	WillRenew     bool   `json:"will_renew"`
	SeatCount     int    `json:"seat_count,omitempty"`
	CanCreateTeam bool   `json:"can_create_team,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	InstanceID    string `json:"instance_id,omitempty"` // Publishing instance
}

// NewStatusChangeEvent converts a domain event. It reports false for event
// types that are not relayed.
func NewStatusChangeEvent(event events.DomainEvent) (StatusChangeEvent, bool) {
	var (
		out  StatusChangeEvent
		info entitlement.BackendSubscriptionInfo
	)

	switch e := event.(type) {
	case *entitlement.StatusUpdatedEvent:
		out = StatusChangeEvent{EventID: e.EventID, Trigger: e.Trigger}
		info = e.Info
	case *entitlement.PurchaseCompletedEvent:
		out = StatusChangeEvent{EventID: e.EventID, TransactionID: e.TransactionID}
		info = e.Info
	default:
		return StatusChangeEvent{}, false
	}

	out.Type = event.GetEventType()
	out.ProductID = event.GetAggregateID()
	out.Timestamp = event.GetOccurredAt().Unix()
	out.Status = info.Status
	out.PlanName = info.PlanName
	out.WillRenew = info.WillRenew
	out.SeatCount = info.SeatCount
	out.CanCreateTeam = info.CanCreateTeam
	if info.ExpiresAt != nil {
		out.ExpiresAt = info.ExpiresAt.Unix()
	}
	return out, true
}

// StatusEventHandler handles one relayed event.
type StatusEventHandler func(ctx context.Context, event StatusChangeEvent)

// RedisStatusEventBus relays entitlement events over Redis Pub/Sub so other
// instances can refresh their view of the subscription.
type RedisStatusEventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     logger.Interface
}

// NewRedisStatusEventBus creates a bus on channel, or on
// DefaultStatusEventChannel when channel is empty.
func NewRedisStatusEventBus(client *redis.Client, channel string, logger logger.Interface) *RedisStatusEventBus {
	if channel == "" {
		channel = DefaultStatusEventChannel
	}
	return &RedisStatusEventBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (b *RedisStatusEventBus) InstanceID() string {
	return b.instanceID
}

func (b *RedisStatusEventBus) Channel() string {
	return b.channel
}

// Publish sends event to the channel, stamped with this instance's ID.
func (b *RedisStatusEventBus) Publish(ctx context.Context, event StatusChangeEvent) error {
	event.InstanceID = b.instanceID
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish status event",
			"event_type", event.Type,
			"product_id", event.ProductID,
			"error", err,
		)
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	b.logger.Debugw("status event published",
		"event_type", event.Type,
		"product_id", event.ProductID,
		"status", event.Status,
	)
	return nil
}

// Forward republishes every relayable event received on sub until ctx is
// done or the subscription closes. Publish failures are logged and skipped.
func (b *RedisStatusEventBus) Forward(ctx context.Context, sub *events.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-sub.C:
			if !ok {
				return nil
			}

			wire, relay := NewStatusChangeEvent(event)
			if !relay {
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			_ = b.Publish(pubCtx, wire)
			cancel()
		}
	}
}

// SubscribeAll calls handler, in order, for every event on the channel,
// this instance's own included. It blocks until ctx is done.
func (b *RedisStatusEventBus) SubscribeAll(ctx context.Context, handler StatusEventHandler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to status events", "channel", b.channel)

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("status event subscriber stopped", "reason", ctx.Err())
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("status event channel closed")
				return nil
			}

			var event StatusChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal status event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}

			handler(ctx, event)
		}
	}
}
