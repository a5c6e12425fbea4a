package prescription

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for prescription retrieval and the
// retry path after a failed best-effort creation
type Handler struct {
	service      *Service
	appointments appointment.Repository
}

// NewHandler creates a new prescription handler
func NewHandler(service *Service, appointments appointment.Repository) *Handler {
	return &Handler{service: service, appointments: appointments}
}

// Register adds the prescription routes onto the appointments router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/{appointmentID}/prescription", func(r chi.Router) {
		r.Get("/", h.GetPrescription)
		r.Post("/", h.RetryCreate)
	})
}

// GetPrescription returns the prescription for an appointment
func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	p, err := h.service.GetByAppointment(r.Context(), appointmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// RetryCreate retries prescription creation for a completed appointment
// whose original best-effort creation failed
func (h *Handler) RetryCreate(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	a, err := h.appointments.FindByID(r.Context(), appointmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	if a.Status != appointment.StatusCompleted {
		writeError(w, errors.Conflict("prescription requires a completed appointment"))
		return
	}
	if a.DoctorID == nil {
		writeError(w, errors.Conflict("completed appointment has no doctor on record"))
		return
	}

	var req CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := h.service.CreateForAppointment(
		r.Context(), a.ID, *a.DoctorID, a.PatientID,
		req.Diagnosis, req.Medications, req.Instructions,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
