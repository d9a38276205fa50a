package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/internal/ranking"
	"github.com/wonny/camon/backend/pkg/logger"
)

const defaultRankingLimit = 50

// RankingSource is the engine surface the handlers need
type RankingSource interface {
	GroupRanking(ctx context.Context, limit int) ([]ranking.GroupRankingEntry, error)
	CallRanking(ctx context.Context, limit int) ([]ranking.CallRankingEntry, error)
	ContractStats(ctx context.Context, address string, typ contracts.AddressType) (*ranking.ContractStats, error)
	ActiveContracts(ctx context.Context, limit int) ([]string, error)
	ResetDaily(ctx context.Context) error
}

// RankingHandler serves the leaderboard endpoints
type RankingHandler struct {
	source RankingSource
	logger *logger.Logger
}

func NewRankingHandler(source RankingSource, log *logger.Logger) *RankingHandler {
	return &RankingHandler{source: source, logger: log}
}

// GetGroupRanking handles GET /api/ranking/groups?limit=N
func (h *RankingHandler) GetGroupRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.source.GroupRanking(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load group ranking")
		respondError(w, http.StatusInternalServerError, "Failed to load group ranking")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// GetCallRanking handles GET /api/ranking/calls?limit=N
func (h *RankingHandler) GetCallRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.source.CallRanking(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load call ranking")
		respondError(w, http.StatusInternalServerError, "Failed to load call ranking")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// GetContract handles GET /api/ranking/contract/{address}
func (h *RankingHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if address == "" {
		respondError(w, http.StatusBadRequest, "Address is required")
		return
	}

	typ := contracts.DetectAddressType(address)
	stats, err := h.source.ContractStats(r.Context(), address, typ)
	if err != nil {
		h.logger.WithField("address", address).WithError(err).Error("Failed to load contract stats")
		respondError(w, http.StatusInternalServerError, "Failed to load contract stats")
		return
	}
	if stats == nil {
		respondError(w, http.StatusNotFound, "Contract not tracked")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetActive handles GET /api/ranking/active?limit=N
func (h *RankingHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.source.ActiveContracts(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load active contracts")
		respondError(w, http.StatusInternalServerError, "Failed to load active contracts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(addresses),
		"addresses": addresses,
	})
}

// Reset handles POST /api/ranking/reset, the manual daily reset
func (h *RankingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.source.ResetDaily(r.Context()); err != nil {
		h.logger.WithError(err).Error("Manual ranking reset failed")
		respondError(w, http.StatusInternalServerError, "Reset failed")
		return
	}
	h.logger.Info("Manual ranking reset complete")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultRankingLimit
	}
	return limit
}
