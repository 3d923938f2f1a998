package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/rescuelabs/protocold/internal/db/gorm"
	"github.com/rescuelabs/protocold/internal/histsync"
	"github.com/rescuelabs/protocold/internal/ingest"
	"github.com/rescuelabs/protocold/internal/pipeline"
	"github.com/rescuelabs/protocold/pkg/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// queryRequest is the submit-query payload.
type queryRequest struct {
	UserID   int64  `json:"user_id"`
	AgencyID int64  `json:"agency_id,omitempty"`
	Query    string `json:"query"`
}

func (s *Service) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.UserID <= 0 || req.Query == "" {
		respondError(w, http.StatusBadRequest, "user_id and query are required")
		return
	}
	if len(req.Query) > models.MaxQueryTextLen {
		respondError(w, http.StatusBadRequest, "query exceeds maximum length")
		return
	}

	result := s.pipeline.SubmitQuery(r.Context(), req.UserID, req.AgencyID, req.Query)
	respondJSON(w, statusForResult(result), result)
}

// statusForResult maps pipeline outcomes to HTTP status codes. Routine
// outcomes the client branches on stay 200 with success=false.
func statusForResult(result *pipeline.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Error {
	case pipeline.ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case pipeline.ErrCodeUserNotFound:
		return http.StatusNotFound
	case pipeline.ErrCodeNoProtocols:
		return http.StatusOK
	default:
		return http.StatusBadGateway
	}
}

// syncRequest is the history sync payload. A request-level device ID
// fills entries that omit their own.
type syncRequest struct {
	UserID   int64                    `json:"user_id"`
	DeviceID string                   `json:"device_id,omitempty"`
	Entries  []models.LocalQueryEntry `json:"entries"`
}

func (s *Service) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	for i := range req.Entries {
		if req.Entries[i].DeviceID == "" {
			req.Entries[i].DeviceID = req.DeviceID
		}
	}

	user, err := s.users.GetUser(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, gormdb.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Error().Err(err).Int64("userId", req.UserID).Msg("User lookup failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	view, err := s.syncEngine.Sync(r.Context(), user, req.Entries)
	if err != nil {
		switch {
		case errors.Is(err, histsync.ErrNotEntitled):
			respondError(w, http.StatusForbidden, "history sync requires a paid plan")
		case errors.Is(err, histsync.ErrBatchTooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			log.Error().Err(err).Int64("userId", req.UserID).Msg("Sync failed")
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Service) handleListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}
	limit := gormdb.ParseLimitParam(r, 50)

	records, err := s.syncEngine.History(r.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("History read failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"history": records,
		"count":   len(records),
	})
}

func (s *Service) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}

	deleted, err := s.syncEngine.ClearHistory(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("History clear failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Service) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || entryID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if err := s.syncEngine.DeleteEntry(r.Context(), userID, entryID); err != nil {
		if errors.Is(err, gormdb.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entry not found")
			return
		}
		log.Error().Err(err).Int64("userId", userID).Int64("entryId", entryID).Msg("Entry delete failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ingestRequest is the protocol indexing payload.
type ingestRequest struct {
	AgencyID  int64             `json:"agency_id,omitempty"`
	Documents []ingest.Document `json:"documents"`
}

func (s *Service) handleIngestProtocols(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "documents are required")
		return
	}

	chunks := s.chunker.ChunkDocuments(req.Documents)
	inputs := make([]gormdb.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = gormdb.ChunkInput{
			ProtocolNumber: c.ProtocolNumber,
			ProtocolTitle:  c.ProtocolTitle,
			Section:        c.Section,
			Content:        c.Content,
		}
	}

	inserted, err := s.protocols.InsertChunks(r.Context(), req.AgencyID, inputs)
	if err != nil {
		log.Error().Err(err).Int64("agencyId", req.AgencyID).Msg("Protocol ingest failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"chunks": inserted})
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		respondError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if err := s.store.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":          s.version,
		"uptime_seconds":   int64(time.Since(s.startTime).Seconds()),
		"free_daily_limit": s.cfg.FreeDailyLimit,
		"retrieval_limit":  s.cfg.RetrievalLimit,
	})
}

// parseUserIDParam reads and validates the user_id query parameter,
// writing a 400 response when invalid.
func parseUserIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "valid user_id is required")
		return 0, false
	}
	return userID, true
}
