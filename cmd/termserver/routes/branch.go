package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/clinterm/termserver/cmd/termserver/container"
	"github.com/clinterm/termserver/cmd/termserver/handlers"
)

// RegisterBranchRoutes registers the branch lifecycle routes
func RegisterBranchRoutes(e *echo.Echo, serviceContainer *container.Container) {
	// Create handler with dependencies
	h := handlers.NewBranchHandler(serviceContainer)

	branches := e.Group("/api/v1/branches")
	{
		branches.GET("/:path", h.Get)                        // GET /api/v1/branches/MAIN|projectA
		branches.POST("/:path", h.Create)                    // POST /api/v1/branches/MAIN|projectA
		branches.POST("/:path/rebase", h.Rebase)             // POST /api/v1/branches/MAIN|projectA/rebase
		branches.POST("/:path/promote", h.Promote)           // POST /api/v1/branches/MAIN|projectA/promote
		branches.PATCH("/:path/metadata", h.PatchMetadata)   // PATCH /api/v1/branches/MAIN|projectA/metadata
	}
}
