package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

// APIKeyHeader carries a per-request card API key, overriding the configured one.
const APIKeyHeader = "X-Api-Key"

type RunHandler struct {
	runner *services.Runner
}

func NewRunHandler(runner *services.Runner) *RunHandler {
	return &RunHandler{
		runner: runner,
	}
}

// StartSets begins a set fetch and reconciliation run
func (h *RunHandler) StartSets(c *gin.Context) {
	status, err := h.runner.StartSets(c.GetHeader(APIKeyHeader))
	h.respondStarted(c, status, err)
}

// StartCards begins a card ingestion run against the REST API
func (h *RunHandler) StartCards(c *gin.Context) {
	status, err := h.runner.StartCards(c.GetHeader(APIKeyHeader))
	h.respondStarted(c, status, err)
}

// StartJP begins a Japanese site scrape. The JSON body is an optional listing query.
func (h *RunHandler) StartJP(c *gin.Context) {
	var q services.JPQuery
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
			return
		}
	}
	status, err := h.runner.StartJP(q)
	h.respondStarted(c, status, err)
}

func (h *RunHandler) respondStarted(c *gin.Context, status *services.RunStatus, err error) {
	var active *services.RunActiveError
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, status.View())
	case errors.Is(err, services.ErrMissingCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "an API key is required (set the " + APIKeyHeader + " header)"})
	case errors.As(err, &active):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "runId": active.RunID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetRun returns the status of one run
func (h *RunHandler) GetRun(c *gin.Context) {
	status, ok := h.runner.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, status.View())
}

// ListRuns returns recent runs, newest first
func (h *RunHandler) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"runs": h.runner.Registry().List(),
	})
}
