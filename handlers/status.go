package handlers

import (
	"net/http"

	"github.com/classkit/attendancebackend/services"
)

type StatusHandler struct {
	Status *services.StatusService
}

// GetStatus reports engine readiness and live matching configuration.
func (st *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, st.Status.GetStatus())
}
