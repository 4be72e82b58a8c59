package main

import (
	"sync"

	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/metrics"
)

// Hub maintains active WebSocket connections keyed by workflow id and
// broadcasts events to every subscriber of that workflow.
type Hub struct {
	// Map: workflow id -> subscribers
	connections map[string][]*Client
	mutex       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	log *logger.Logger
}

// Message is one event frame destined for a workflow's subscribers
type Message struct {
	WorkflowID string
	Data       []byte
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		log:         log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.log.Info("hub started")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToWorkflow(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.connections[client.workflowID] = append(h.connections[client.workflowID], client)
	metrics.WebSocketClients.Inc()

	h.log.Info("client registered",
		"workflow_id", client.workflowID,
		"username", client.username,
		"subscribers", len(h.connections[client.workflowID]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[client.workflowID]
	for i, c := range clients {
		if c == client {
			h.connections[client.workflowID] = append(clients[:i], clients[i+1:]...)
			client.closeSend()
			metrics.WebSocketClients.Dec()

			if len(h.connections[client.workflowID]) == 0 {
				delete(h.connections, client.workflowID)
			}

			h.log.Info("client unregistered",
				"workflow_id", client.workflowID,
				"subscribers", len(h.connections[client.workflowID]))
			break
		}
	}
}

// broadcastToWorkflow sends an event to every subscriber of a
// workflow. A subscriber whose send buffer is full is dropped rather
// than blocking the others.
func (h *Hub) broadcastToWorkflow(message *Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := h.connections[message.WorkflowID]
	if len(clients) == 0 {
		return
	}

	for _, client := range clients {
		select {
		case client.send <- message.Data:
			metrics.EventsRelayed.Inc()
		default:
			h.log.Warn("client send buffer full, dropping connection",
				"workflow_id", client.workflowID)
			client.closeSend()
		}
	}
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}
