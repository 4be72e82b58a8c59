package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lyzr/agentflow/common/bootstrap"
	"github.com/lyzr/agentflow/common/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "fanout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	log := components.Logger

	hub := NewHub(log)
	go hub.Run()

	subscriber := NewRedisSubscriber(components.Events, hub, log)
	go subscriber.Start(ctx)

	server := NewServer(hub, components.Redis, repository.NewWorkflowRepository(components.DB), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws/workflows/", server.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", components.Config.Service.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
		// WebSocket connections are long-lived, so no read/write
		// timeouts here
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("fanout service listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down fanout service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("fanout service stopped")
}
