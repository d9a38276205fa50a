package handlers

import (
	"net/http"

	"github.com/wonny/camon/backend/internal/scheduler"
	"github.com/wonny/camon/backend/pkg/logger"
)

// JobSource exposes scheduler execution statistics
type JobSource interface {
	GetJobStats() map[string]scheduler.JobStats
}

// JobsHandler serves the scheduled job status endpoint
type JobsHandler struct {
	source JobSource
	logger *logger.Logger
}

func NewJobsHandler(source JobSource, log *logger.Logger) *JobsHandler {
	return &JobsHandler{source: source, logger: log}
}

// GetStats handles GET /api/jobs
func (h *JobsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.GetJobStats())
}
