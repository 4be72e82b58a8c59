package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lyzr/agentflow/common/events"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/redis"
	"github.com/lyzr/agentflow/common/repository"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server authenticates WebSocket subscriptions and hands them to the hub
type Server struct {
	hub       *Hub
	redis     *redis.Client
	workflows *repository.WorkflowRepository
	log       *logger.Logger
}

// NewServer creates a new Server instance
func NewServer(hub *Hub, redisClient *redis.Client, workflows *repository.WorkflowRepository, log *logger.Logger) *Server {
	return &Server{
		hub:       hub,
		redis:     redisClient,
		workflows: workflows,
		log:       log,
	}
}

// HandleWebSocket upgrades a subscription request.
// URL: /api/ws/workflows/{id}?auth-token=...
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDFromPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("auth-token")
	if token == "" {
		http.Error(w, "auth-token query parameter required", http.StatusUnauthorized)
		return
	}

	username, err := s.authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid auth token", http.StatusUnauthorized)
		return
	}

	if _, err := s.workflows.Get(r.Context(), workflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, workflowID.String(), username)

	// Handshake frame before any relayed events
	handshake, _ := json.Marshal(&events.Event{
		EventType:  events.TypeConnected,
		WorkflowID: workflowID.String(),
		Timestamp:  events.Now(),
	})
	client.send <- handshake

	s.hub.register <- client

	s.log.Info("websocket connected",
		"workflow_id", workflowID,
		"username", username,
		"remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// authenticate maps an auth token to a username
func (s *Server) authenticate(ctx context.Context, token string) (string, error) {
	return s.redis.Get(ctx, "auth:token:"+token)
}

// workflowIDFromPath parses /api/ws/workflows/{id}
func workflowIDFromPath(path string) (uuid.UUID, error) {
	const prefix = "/api/ws/workflows/"
	if !strings.HasPrefix(path, prefix) {
		return uuid.Nil, fmt.Errorf("not found")
	}
	raw := strings.TrimPrefix(path, prefix)
	raw = strings.TrimSuffix(raw, "/")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid workflow id")
	}
	return id, nil
}
