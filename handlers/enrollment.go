package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/services"
)

type EnrollmentHandler struct {
	Enrollments *services.EnrollmentService
}

func (eh *EnrollmentHandler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID uint   `json:"student_id"`
		ImageRef  string `json:"image_ref"`
		CreatedBy string `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.StudentID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "student_id is required")
		return
	}

	job, err := eh.Enrollments.Enroll(services.EnrollInput{
		StudentID: req.StudentID,
		ImageRef:  req.ImageRef,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "student_not_found", err.Error())
			return
		}
		log.Printf("Error creating enrollment for student %d: %v", req.StudentID, err)
		WriteAPIError(w, http.StatusBadRequest, "enroll_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (eh *EnrollmentHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	filters := database.EnrollmentFilters{
		ActiveOnly: r.URL.Query().Get("active_only") == "true",
	}
	filters.SchoolID = parseUintQuery(r, "school_id")
	filters.StudentID = parseUintQuery(r, "student_id")
	if v := parseUintQuery(r, "limit"); v != nil {
		filters.Limit = uint64(*v)
	}
	if v := parseUintQuery(r, "offset"); v != nil {
		filters.Offset = uint64(*v)
	}

	summaries, err := eh.Enrollments.ListEnrollments(filters)
	if err != nil {
		log.Printf("Error listing enrollments: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve enrollments")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (eh *EnrollmentHandler) DeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "enrollment_id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "Invalid enrollment ID format")
		return
	}

	if err := eh.Enrollments.Deactivate(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "enrollment_not_found", "Enrollment not found or already inactive")
			return
		}
		log.Printf("Error deactivating enrollment %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "deactivate_failed", "Failed to deactivate enrollment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (eh *EnrollmentHandler) GetEnrollmentJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := eh.Enrollments.GetJob(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "job_not_found", "Enrollment job not found")
			return
		}
		log.Printf("Error getting enrollment job %s: %v", jobID, err)
		WriteAPIError(w, http.StatusInternalServerError, "get_failed", "Failed to retrieve enrollment job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
