package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/agentflow/cmd/api/handlers"
	apimw "github.com/lyzr/agentflow/cmd/api/middleware"
	"github.com/lyzr/agentflow/cmd/api/routes"
	"github.com/lyzr/agentflow/common/bootstrap"
	"github.com/lyzr/agentflow/common/queue"
	"github.com/lyzr/agentflow/common/ratelimit"
	"github.com/lyzr/agentflow/common/repository"
	"github.com/lyzr/agentflow/common/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	jobs, err := queue.New(ctx, components.Redis, components.Config.Engine, components.Logger)
	if err != nil {
		components.Logger.Error("failed to initialize job queue", "error", err)
		os.Exit(1)
	}

	runHandler := handlers.NewRunHandler(
		repository.NewWorkflowRepository(components.DB),
		repository.NewRunRepository(components.DB),
		repository.NewLedgerRepository(components.DB),
		repository.NewApprovalRepository(components.DB),
		components.Events,
		jobs,
		components.Logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "api",
		})
	})

	limiter := ratelimit.New(components.Redis.GetUnderlying(), components.Logger)
	routes.Register(e, runHandler, apimw.RateLimitExecutions(limiter, components.Config.RateLimit))

	srv := server.New("api", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
