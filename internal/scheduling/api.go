package scheduling

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for slot queries
type Handler struct {
	allocator *Allocator
}

// NewHandler creates a new scheduling handler
func NewHandler(allocator *Allocator) *Handler {
	return &Handler{allocator: allocator}
}

// Routes registers the scheduling routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/clinics/{clinicID}/slots", h.GetSlots)
	return r
}

// GetSlots returns time slots for a clinic and date
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	clinicID, err := types.ParseID(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinic ID"))
		return
	}

	date, err := types.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid or missing date, expected YYYY-MM-DD"))
		return
	}

	slots, err := h.allocator.GetAvailableSlots(r.Context(), clinicID, date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clinic_id": clinicID,
		"date":      date,
		"slots":     slots,
	})
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
