package main

import (
	"context"
	"strings"

	"github.com/lyzr/agentflow/common/events"
	"github.com/lyzr/agentflow/common/logger"
)

// RedisSubscriber listens to the workflow event channels and forwards
// every payload to the hub
type RedisSubscriber struct {
	bus *events.Bus
	hub *Hub
	log *logger.Logger
}

// NewRedisSubscriber creates a new RedisSubscriber instance
func NewRedisSubscriber(bus *events.Bus, hub *Hub, log *logger.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		bus: bus,
		hub: hub,
		log: log,
	}
}

// Start begins relaying until ctx is cancelled
func (s *RedisSubscriber) Start(ctx context.Context) {
	pubsub := s.bus.Subscribe(ctx)
	defer pubsub.Close()

	s.log.Info("redis subscriber started", "pattern", events.ChannelPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("redis subscriber stopping")
			return

		case msg := <-ch:
			if msg == nil {
				continue
			}

			workflowID := workflowIDFromChannel(msg.Channel)
			if workflowID == "" {
				s.log.Warn("unexpected channel format", "channel", msg.Channel)
				continue
			}

			s.hub.broadcast <- &Message{
				WorkflowID: workflowID,
				Data:       []byte(msg.Payload),
			}
		}
	}
}

// workflowIDFromChannel extracts the workflow id from a channel name.
// Channel format: workflow:events:{workflow_id}
func workflowIDFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "workflow" || parts[1] != "events" {
		return ""
	}
	return parts[2]
}
