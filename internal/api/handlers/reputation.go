package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/pkg/logger"
)

// ReputationReader 평판 스냅샷 (reputation.Aggregator)
type ReputationReader interface {
	Ranking() []contracts.SourceReputation
	Get(sourceID string) (contracts.SourceReputation, bool)
}

// ReputationHandler handles read-only reputation endpoints
type ReputationHandler struct {
	reputation ReputationReader
	logger     *logger.Logger
}

// NewReputationHandler creates a new reputation handler
func NewReputationHandler(rep ReputationReader, log *logger.Logger) *ReputationHandler {
	return &ReputationHandler{reputation: rep, logger: log}
}

// GetRanking returns eligible sources by composite rank
// GET /v1/reputation?limit=20
func (h *ReputationHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	ranking := h.reputation.Ranking()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(ranking) {
			ranking = ranking[:limit]
		}
	}
	if ranking == nil {
		ranking = []contracts.SourceReputation{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(ranking),
		"sources": ranking,
	})
}

// GetSource returns one source's reputation, eligible or not
// GET /v1/reputation/{source}
func (h *ReputationHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	rep, ok := h.reputation.Get(source)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown source")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}
