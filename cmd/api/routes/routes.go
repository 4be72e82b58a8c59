package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentflow/cmd/api/handlers"
	apimw "github.com/lyzr/agentflow/cmd/api/middleware"
)

// Register wires the run lifecycle routes. Everything except the
// health check requires an authenticated user; endpoints that start
// runs are additionally rate limited.
func Register(e *echo.Echo, runs *handlers.RunHandler, execLimit echo.MiddlewareFunc) {
	api := e.Group("", apimw.RequireUser())

	workflows := api.Group("/workflows/:id")
	{
		workflows.POST("/execute", runs.Execute, execLimit)
		workflows.POST("/runs/:run_id/nodes/:node_id/approve", runs.Approve)
		workflows.GET("/runs", runs.List)
	}

	runGroup := api.Group("/runs/:run_id")
	{
		runGroup.POST("/replay", runs.Replay, execLimit)
		runGroup.GET("", runs.Detail)
		runGroup.GET("/ledger", runs.Ledger)
	}
}
