package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/agentflow/cmd/worker/engine"
	"github.com/lyzr/agentflow/cmd/worker/handlers"
	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/cmd/worker/tools"
	"github.com/lyzr/agentflow/common/bootstrap"
	"github.com/lyzr/agentflow/common/queue"
	"github.com/lyzr/agentflow/common/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config
	log := components.Logger

	workflows := repository.NewWorkflowRepository(components.DB)
	runs := repository.NewRunRepository(components.DB)
	ledger := repository.NewLedgerRepository(components.DB)
	approvals := repository.NewApprovalRepository(components.DB)
	toolRepo := repository.NewToolRepository(components.DB)

	jobs, err := queue.New(ctx, components.Redis, cfg.Engine, log)
	if err != nil {
		log.Error("failed to initialize job queue", "error", err)
		os.Exit(1)
	}

	llmClient := llm.NewOpenAI(cfg.LLM, log)
	executor := tools.NewHTTPExecutor(cfg.LLM.RequestTimeout, log)

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewStartHandler())
	registry.Register(handlers.NewEndHandler())
	registry.Register(handlers.NewForkHandler())
	registry.Register(handlers.NewIfElseHandler())
	registry.Register(handlers.NewApprovalHandler())
	registry.Register(handlers.NewAgentHandler(llmClient, toolRepo, executor, cfg.LLM.DefaultModel, cfg.Engine.MaxToolIterations))
	registry.Register(handlers.NewGuardrailsHandler(llmClient, cfg.LLM.DefaultModel))
	registry.Register(handlers.NewCognitiveHandler(llmClient, registry, cfg.LLM.DefaultModel))

	eng := engine.New(
		workflows,
		runs,
		ledger,
		approvals,
		components.Redis,
		components.Events,
		jobs,
		registry,
		cfg.Engine,
		log,
	)

	log.Info("worker starting",
		"stream", cfg.Engine.JobStream,
		"group", cfg.Engine.ConsumerGroup,
		"concurrency", cfg.Engine.Concurrency)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		log.Info("shutdown signal received", "signal", s.String())
		cancel()
	}()

	jobs.Consume(ctx, eng.HandleJob)

	log.Info("worker stopped")
}
