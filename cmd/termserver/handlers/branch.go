package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinterm/termserver/cmd/termserver/container"
	"github.com/clinterm/termserver/cmd/termserver/models"
)

// BranchHandler handles branch lifecycle requests
type BranchHandler struct {
	container *container.Container
}

// NewBranchHandler creates a new branch handler
func NewBranchHandler(container *container.Container) *BranchHandler {
	return &BranchHandler{
		container: container,
	}
}

// Get retrieves branch state
// GET /api/v1/branches/:path
func (h *BranchHandler) Get(c echo.Context) error {
	b, err := h.container.BranchService.FindBranchOrThrow(c.Request().Context(), branchPath(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Create creates a child branch
// POST /api/v1/branches/:path
func (h *BranchHandler) Create(c echo.Context) error {
	b, err := h.container.Store.CreateBranch(c.Request().Context(), branchPath(c))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, b)
}

// Rebase advances the branch base to the parent head
// POST /api/v1/branches/:path/rebase
func (h *BranchHandler) Rebase(c echo.Context) error {
	if err := h.container.Store.Rebase(c.Request().Context(), branchPath(c)); err != nil {
		return respondError(c, err)
	}
	return h.Get(c)
}

// Promote merges the branch's unpromoted changes into its parent
// POST /api/v1/branches/:path/promote
func (h *BranchHandler) Promote(c echo.Context) error {
	if err := h.container.Store.Promote(c.Request().Context(), branchPath(c)); err != nil {
		return respondError(c, err)
	}
	return h.Get(c)
}

// PatchMetadata applies a JSON merge patch to the branch metadata
// PATCH /api/v1/branches/:path/metadata
func (h *BranchHandler) PatchMetadata(c echo.Context) error {
	mergePatch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(mergePatch) == 0 {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "merge patch body is required"})
	}

	b, err := h.container.BranchService.PatchMetadata(c.Request().Context(), branchPath(c), mergePatch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
