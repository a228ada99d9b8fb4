package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinterm/termserver/cmd/termserver/container"
	"github.com/clinterm/termserver/cmd/termserver/models"
	"github.com/clinterm/termserver/cmd/termserver/service"
	"github.com/clinterm/termserver/common/store"
)

// IntegrityHandler handles integrity-check requests
type IntegrityHandler struct {
	container *container.Container
}

// NewIntegrityHandler creates a new integrity handler
func NewIntegrityHandler(container *container.Container) *IntegrityHandler {
	return &IntegrityHandler{
		container: container,
	}
}

// branchPath converts the URL form of a branch path; path segments use "|"
// in URLs in place of "/"
func branchPath(c echo.Context) string {
	return strings.ReplaceAll(c.Param("path"), "|", "/")
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBranchMisuse):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), models.ErrorResponse{Error: err.Error()})
}

// RunFull runs the full integrity check
// POST /api/v1/branches/:path/integrity-check?stated=true
func (h *IntegrityHandler) RunFull(c echo.Context) error {
	stated := true
	if raw := c.QueryParam("stated"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid stated parameter"})
		}
		stated = parsed
	}

	report, err := h.container.IntegrityRunner.RunFull(c.Request().Context(), branchPath(c), stated)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// RunChanged runs the changed-only integrity check
// POST /api/v1/branches/:path/integrity-check-changed
func (h *IntegrityHandler) RunChanged(c echo.Context) error {
	report, err := h.container.IntegrityRunner.RunChanged(c.Request().Context(), branchPath(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// RunTask runs the task+extension differential check
// POST /api/v1/branches/:path/integrity-check-task
func (h *IntegrityHandler) RunTask(c echo.Context) error {
	var request models.TaskIntegrityCheckRequest
	if err := c.Bind(&request); err != nil || request.ExtensionMainPath == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "extensionMainPath is required"})
	}

	report, err := h.container.IntegrityRunner.RunTask(c.Request().Context(), branchPath(c), request.ExtensionMainPath)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ExtraConceptsInSemanticIndex runs the semantic index orphan probe
// GET /api/v1/branches/:path/semantic-index/extra-concepts
func (h *IntegrityHandler) ExtraConceptsInSemanticIndex(c echo.Context) error {
	orphans, err := h.container.IntegrityService.FindExtraConceptsInSemanticIndex(c.Request().Context(), branchPath(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orphans)
}

// ListRuns lists recent integrity runs for a branch
// GET /api/v1/integrity-runs?branch=MAIN|projectA&limit=20
func (h *IntegrityHandler) ListRuns(c echo.Context) error {
	if h.container.RunRepo == nil {
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "run history is not enabled"})
	}

	branch := strings.ReplaceAll(c.QueryParam("branch"), "|", "/")
	if branch == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "branch is required"})
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit parameter"})
		}
		limit = parsed
	}

	runs, err := h.container.RunRepo.ListByBranch(c.Request().Context(), branch, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}
