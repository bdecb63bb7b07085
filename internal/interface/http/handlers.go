package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ShieldBattery/ShieldBattery-sub013/internal/application/query"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/ladder"
	"github.com/ShieldBattery/ShieldBattery-sub013/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports liveness only; it never touches backing stores.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports whether both backing stores answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Database != nil {
		if err := s.deps.Database.Ping(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable")
			return
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Ping(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "cache unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LADDER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCurrentLadder handles GET /api/v1/ladder/{matchmakingType}
func (s *Server) handleGetCurrentLadder(w http.ResponseWriter, r *http.Request) {
	q := query.GetCurrentLadderQuery{
		MatchmakingType: r.PathValue("matchmakingType"),
		SearchQuery:     r.URL.Query().Get("q"),
	}

	result, err := s.deps.CurrentLadder.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetFinalizedLadder handles GET /api/v1/ladder/{matchmakingType}/{seasonId}
func (s *Server) handleGetFinalizedLadder(w http.ResponseWriter, r *http.Request) {
	seasonID, err := strconv.ParseInt(r.PathValue("seasonId"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "season id must be an integer")
		return
	}

	q := query.GetFinalizedLadderQuery{
		MatchmakingType: r.PathValue("matchmakingType"),
		SeasonID:        seasonID,
		SearchQuery:     r.URL.Query().Get("q"),
	}

	result, err := s.deps.FinalizedLadder.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetUserRanks handles GET /api/v1/users/{id}/ranks
func (s *Server) handleGetUserRanks(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "user id must be a UUID")
		return
	}

	result, err := s.deps.UserRanks.Handle(r.Context(), query.GetUserRanksQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps application errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ladder.ErrInvalidMatchmakingType):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ladder.ErrSeasonNotFinalized):
		writeJSONError(w, http.StatusConflict, "season_not_finalized", "season has not been finalized yet")
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ladder.ErrNoCurrentSeason):
		writeJSONError(w, http.StatusNotFound, "not_found", "no current season")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
