package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/services"
)

type SessionHandler struct {
	Sessions *services.SessionService
	Reviews  *services.ReviewService
}

func (sh *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SchoolID  uint   `json:"school_id"`
		ClassID   uint   `json:"class_id"`
		Date      string `json:"date"`
		ImageRef  string `json:"image_ref"`
		CreatedBy string `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.ClassID == 0 || req.SchoolID == 0 || strings.TrimSpace(req.Date) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "school_id, class_id and date are required")
		return
	}

	session, err := sh.Sessions.CreateSession(services.CreateSessionInput{
		SchoolID:  req.SchoolID,
		ClassID:   req.ClassID,
		Date:      req.Date,
		ImageRef:  req.ImageRef,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "class_not_found", err.Error())
			return
		}
		log.Printf("Error creating session for class %d: %v", req.ClassID, err)
		WriteAPIError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, session)
}

func (sh *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filters := database.SessionFilters{
		Status:   r.URL.Query().Get("status"),
		DateFrom: r.URL.Query().Get("date_from"),
		DateTo:   r.URL.Query().Get("date_to"),
	}
	filters.SchoolID = parseUintQuery(r, "school_id")
	filters.ClassID = parseUintQuery(r, "class_id")
	if v := parseUintQuery(r, "limit"); v != nil {
		filters.Limit = uint64(*v)
	}
	if v := parseUintQuery(r, "offset"); v != nil {
		filters.Offset = uint64(*v)
	}

	summaries, err := sh.Sessions.ListSessions(filters)
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve sessions")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (sh *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	detail, err := sh.Sessions.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		log.Printf("Error getting session %s: %v", sessionID, err)
		WriteAPIError(w, http.StatusInternalServerError, "get_failed", "Failed to retrieve session")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (sh *SessionHandler) ListPendingReview(w http.ResponseWriter, r *http.Request) {
	summaries, err := sh.Sessions.ListPendingReview(parseUintQuery(r, "school_id"))
	if err != nil {
		log.Printf("Error listing pending review sessions: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve pending review sessions")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (sh *SessionHandler) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var input services.ConfirmInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}

	session, err := sh.Reviews.Confirm(sessionID, input)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found")
		case errors.Is(err, services.ErrInvalidStateTransition):
			WriteAPIError(w, http.StatusConflict, "invalid_state", err.Error())
		case errors.Is(err, services.ErrCrossClassReference):
			WriteAPIError(w, http.StatusUnprocessableEntity, "cross_class_reference", err.Error())
		default:
			log.Printf("Error confirming session %s: %v", sessionID, err)
			WriteAPIError(w, http.StatusBadRequest, "confirm_failed", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (sh *SessionHandler) ListSessionRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	records, err := sh.Reviews.ListRecords(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		log.Printf("Error listing attendance records for session %s: %v", sessionID, err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve attendance records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (sh *SessionHandler) ReprocessSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if err := sh.Sessions.Reprocess(sessionID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found")
		case errors.Is(err, services.ErrInvalidStateTransition):
			WriteAPIError(w, http.StatusConflict, "invalid_state", err.Error())
		default:
			log.Printf("Error reprocessing session %s: %v", sessionID, err)
			WriteAPIError(w, http.StatusInternalServerError, "reprocess_failed", "Failed to reprocess session")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": sessionID, "status": "PROCESSING"})
}

func parseUintQuery(r *http.Request, key string) *uint {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	u := uint(v)
	return &u
}
