package booking

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Handler exposes booking and cancellation over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a booking HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register adds the booking routes onto the appointments router. Booking
// owns creation and cancellation; the lifecycle transitions live with the
// appointment handler on the same router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.BookAppointment)
	r.Post("/{appointmentID}/cancel", h.CancelAppointment)
}

// BookAppointment creates a new appointment and optionally starts payment.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.service.Book(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// CancelAppointment cancels an appointment, refunding a completed payment
// in the same request.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.service.Cancel(r.Context(), appointmentID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
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
