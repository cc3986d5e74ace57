package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lancerane/CSVConverter-GCP/internal/repository/postgres"
)

// HistoryStore reads the run history.
type HistoryStore interface {
	ListRuns(ctx context.Context, limit int) ([]postgres.RunRow, error)
	ListFiles(ctx context.Context, runID int64) ([]postgres.FileRow, error)
}

type HistoryHandler struct {
	store HistoryStore
}

func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) ListRuns(c *gin.Context) {
	limit := 20
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []postgres.RunRow{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *HistoryHandler) ListFiles(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	files, err := h.store.ListFiles(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if files == nil {
		files = []postgres.FileRow{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "files": files})
}
