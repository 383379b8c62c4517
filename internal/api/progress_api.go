package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/domain"
)

// ─── Progression API (/api/titles, /api/users/{userID}/*) ───────────────────

// maxXPEventsLimit caps ?limit= on the XP history endpoint.
const maxXPEventsLimit = 500

// --- /api/titles ---

func (s *Server) handleTitles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"titles": s.svc.Ladder().Ranks(),
	})
}

// --- /api/titles/lookup?xp=N ---

func (s *Server) handleTitleLookup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("xp")
	xp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("xp must be an integer, got %q", raw), "")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Ladder().Status(xp))
}

// --- /api/users/{userID}/streak ---

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	day, err := s.dayParam(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.Streak(r.Context(), chi.URLParam(r, "userID"), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- /api/users/{userID}/streak/days ---

func (s *Server) handleCompletionDays(w http.ResponseWriter, r *http.Request) {
	days, err := s.svc.CompletionDays(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"total": len(days),
	})
}

// dayRequest is the optional body of the streak mutations.
type dayRequest struct {
	Date string `json:"date"`
}

// decodeDay reads {"date": "..."} from the body. An empty body or date means
// today; ?date= is honored when the body has none.
func (s *Server) decodeDay(r *http.Request) (domain.Date, error) {
	var req dayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return domain.Date{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if req.Date == "" {
		req.Date = r.URL.Query().Get("date")
	}
	return s.dayParam(req.Date)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	day, err := s.decodeDay(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.svc.CompleteActivity(r.Context(), chi.URLParam(r, "userID"), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	day, err := s.decodeDay(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.UseFreeze(r.Context(), chi.URLParam(r, "userID"), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- /api/users/{userID}/title ---

func (s *Server) handleUserTitle(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Title(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- /api/users/{userID}/xp ---

type awardXPRequest struct {
	Amount int64           `json:"amount"`
	Source domain.XPSource `json:"source"`
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}

	award, err := s.svc.AwardXP(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Source)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, award)
}

func (s *Server) handleXPEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxXPEventsLimit {
			writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("limit must be between 1 and %d", maxXPEventsLimit), "")
			return
		}
		limit = n
	}

	events, err := s.svc.XPHistory(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.XPEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// ─── Error mapping ──────────────────────────────────────────────────────────

var errBadRequest = errors.New("malformed request body")

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *domain.FreezeError
	switch {
	case errors.As(err, &fe):
		writeError(w, http.StatusConflict, "invalid_freeze_use", err.Error(), string(fe.Reason))
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), "")
	case errors.Is(err, domain.ErrMalformedState):
		writeError(w, http.StatusUnprocessableEntity, "malformed_state", err.Error(), "")
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidXPAmount),
		errors.Is(err, domain.ErrInvalidXPSource):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
	}
}
