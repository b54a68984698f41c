package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/pubsub"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const (
	// SSEKeepaliveInterval is the interval for sending keepalive messages.
	SSEKeepaliveInterval = 30 * time.Second

	// SSEContentType is the content type for SSE responses.
	SSEContentType = "text/event-stream"
)

// eventTypeAliases maps the short names accepted in ?types= to event types.
var eventTypeAliases = map[string]string{
	"status_updated":     entitlement.EventTypeStatusUpdated,
	"purchase_completed": entitlement.EventTypePurchaseCompleted,
}

// EventStreamHandler streams engine events to observers as server-sent events.
type EventStreamHandler struct {
	source            eventSource
	keepAliveInterval time.Duration
	logger            logger.Interface
}

// NewEventStreamHandler creates a new EventStreamHandler
func NewEventStreamHandler(source eventSource, logger logger.Interface) *EventStreamHandler {
	return &EventStreamHandler{
		source:            source,
		keepAliveInterval: SSEKeepaliveInterval,
		logger:            logger,
	}
}

// Stream handles GET /v1/events?types=status_updated,purchase_completed
func (h *EventStreamHandler) Stream(c *gin.Context) {
	types, err := parseEventTypes(c.Query("types"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := h.source.Subscribe(types...)
	defer sub.Unsubscribe()

	connID := uuid.NewString()

	c.Header("Content-Type", SSEContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable Nginx buffering

	if _, err := c.Writer.WriteString(": connected\n\n"); err != nil {
		h.logger.Warnw("SSE initial write error", "conn_id", connID, "error", err)
		return
	}
	c.Writer.Flush()

	h.logger.Infow("event stream opened", "conn_id", connID, "types", types)

	keepAliveTicker := time.NewTicker(h.keepAliveInterval)
	defer keepAliveTicker.Stop()

	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("event stream closed by client", "conn_id", connID)
			return

		case event, ok := <-sub.C:
			if !ok {
				// Engine closed the bus
				return
			}
			wire, relay := pubsub.NewStatusChangeEvent(event)
			if !relay {
				continue
			}
			data, err := json.Marshal(wire)
			if err != nil {
				h.logger.Warnw("failed to encode event", "conn_id", connID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", wire.EventID, wire.Type, data); err != nil {
				h.logger.Warnw("event stream write error", "conn_id", connID, "error", err)
				return
			}
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				h.logger.Warnw("event stream keepalive error", "conn_id", connID, "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func parseEventTypes(param string) ([]string, error) {
	if param == "" {
		return nil, nil
	}

	var types []string
	for _, p := range strings.Split(param, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, ok := eventTypeAliases[p]
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", p)
		}
		types = append(types, t)
	}
	return types, nil
}
