package handlers

import (
	"net/http"

	"github.com/wonny/camon/backend/internal/feed"
	"github.com/wonny/camon/backend/pkg/logger"
)

// FeedSource exposes the feed subsystem state
type FeedSource interface {
	Status() feed.ManagerStatus
}

// FeedHandler serves the feed status endpoint
type FeedHandler struct {
	source FeedSource
	logger *logger.Logger
}

func NewFeedHandler(source FeedSource, log *logger.Logger) *FeedHandler {
	return &FeedHandler{source: source, logger: log}
}

// GetStatus handles GET /api/feed/status
func (h *FeedHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.Status())
}
