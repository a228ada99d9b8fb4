package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/clinterm/termserver/cmd/termserver/container"
	"github.com/clinterm/termserver/cmd/termserver/handlers"
)

// RegisterIntegrityRoutes registers the integrity-check routes
func RegisterIntegrityRoutes(e *echo.Echo, serviceContainer *container.Container) {
	// Create handler with dependencies
	h := handlers.NewIntegrityHandler(serviceContainer)

	branches := e.Group("/api/v1/branches")
	{
		branches.POST("/:path/integrity-check", h.RunFull)                            // POST /api/v1/branches/MAIN/integrity-check
		branches.POST("/:path/integrity-check-changed", h.RunChanged)                 // POST /api/v1/branches/MAIN|projectA/integrity-check-changed
		branches.POST("/:path/integrity-check-task", h.RunTask)                       // POST /api/v1/branches/MAIN|projectA|taskB/integrity-check-task
		branches.GET("/:path/semantic-index/extra-concepts", h.ExtraConceptsInSemanticIndex) // GET /api/v1/branches/MAIN/semantic-index/extra-concepts
	}

	e.GET("/api/v1/integrity-runs", h.ListRuns) // GET /api/v1/integrity-runs?branch=MAIN|projectA
}
