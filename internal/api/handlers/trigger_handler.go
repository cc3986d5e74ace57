package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lancerane/CSVConverter-GCP/internal/pipeline"
)

// Runner executes one conversion run.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

type TriggerHandler struct {
	runner Runner
}

func NewTriggerHandler(runner Runner) *TriggerHandler {
	return &TriggerHandler{runner: runner}
}

// Trigger runs the pipeline once and replies with the run summary as plain
// text. Partially failed runs still answer 200; only a run that could not
// get past listing and mirroring answers 500.
func (h *TriggerHandler) Trigger(c *gin.Context) {
	report, err := h.runner.Run(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, "Error: %s\n", err.Error())
		return
	}
	c.String(http.StatusOK, "%s\n", report.Summary())
}
