package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Handler handles API requests
type Handler struct {
	store storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		store: store,
	}
}

// GetOrgRuns returns the most recent export runs of an organization
// GET /api/v1/orgs/:org/runs?limit=N
func (h *Handler) GetOrgRuns(c *gin.Context) {
	org := c.Param("org")

	limit, err := parseLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	runs, err := h.store.GetRuns(c.Request.Context(), org, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetRun returns a single export run
// GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetRunRepos returns the per-repository results of an export run
// GET /api/v1/runs/:id/repos
func (h *Handler) GetRunRepos(c *gin.Context) {
	id := c.Param("id")

	// unknown runs are a 404, not an empty list
	if _, err := h.store.GetRun(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	results, err := h.store.GetRepoResults(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": results,
	})
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultRunLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxRunLimit {
		return 0, apperrors.NewBadRequestError("limit must be an integer between 1 and " + strconv.Itoa(maxRunLimit))
	}
	return limit, nil
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(statusForCode(appErr.Code), gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}

func statusForCode(code apperrors.ErrCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeBadRequest, apperrors.ErrCodeConfig:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
