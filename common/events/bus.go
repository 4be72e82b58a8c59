package events

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/redis"
)

// ChannelPattern matches every workflow event channel
const ChannelPattern = "workflow:events:*"

// Channel returns the pub/sub channel for a workflow's events
func Channel(workflowID string) string {
	return fmt.Sprintf("workflow:events:%s", workflowID)
}

// Publisher fans events out to live subscribers. Delivery is
// best-effort; the ledger is the durable record.
type Publisher interface {
	Publish(ctx context.Context, workflowID string, event *Event) error
}

// Bus publishes events over Redis pub/sub
type Bus struct {
	client *redis.Client
	log    *logger.Logger
}

// NewBus creates an event bus backed by Redis
func NewBus(client *redis.Client, log *logger.Logger) *Bus {
	return &Bus{client: client, log: log}
}

// Publish serializes the event and publishes it on the workflow's
// channel. Publish failures are logged and swallowed so event delivery
// never fails a node execution.
func (b *Bus) Publish(ctx context.Context, workflowID string, event *Event) error {
	if event.Timestamp == "" {
		event.Timestamp = Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.PublishEvent(ctx, Channel(workflowID), string(payload)); err != nil {
		b.log.Warn("event publish failed",
			"workflow_id", workflowID,
			"event_type", event.EventType,
			"error", err)
	}
	return nil
}

// Subscribe opens a pattern subscription over every workflow event
// channel. The fanout service uses this to relay events to WebSockets.
func (b *Bus) Subscribe(ctx context.Context) *goredis.PubSub {
	return b.client.GetUnderlying().PSubscribe(ctx, ChannelPattern)
}
