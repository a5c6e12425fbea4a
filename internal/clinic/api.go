package clinic

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the clinic module
type Handler struct {
	repo *Repository
}

// NewHandler creates a new clinic handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the clinic routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/clinics", func(r chi.Router) {
		r.Get("/", h.ListClinics)
		r.Post("/", h.CreateClinic)

		r.Route("/{clinicID}", func(r chi.Router) {
			r.Get("/", h.GetClinic)
			r.Put("/", h.UpdateClinic)

			r.Route("/doctors", func(r chi.Router) {
				r.Get("/", h.ListDoctors)
				r.Post("/", h.CreateDoctor)
			})
		})
	})

	r.Get("/doctors/{doctorID}", h.GetDoctor)

	return r
}

// ListClinics lists all clinics
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	filter := ListClinicsFilter{
		Search: r.URL.Query().Get("search"),
	}

	if a := r.URL.Query().Get("active"); a != "" {
		active := a == "true"
		filter.Active = &active
	}

	clinics, total, err := h.repo.ListClinics(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  clinics,
		"total": total,
	})
}

// GetClinic gets a clinic by ID
func (h *Handler) GetClinic(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinic ID"))
		return
	}

	clinic, err := h.repo.GetClinic(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clinic)
}

// CreateClinic registers a new clinic
func (h *Handler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	var req CreateClinicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"name": "name is required",
		}))
		return
	}

	for _, hrs := range req.OperatingHours {
		if !hrs.OpensAt.Before(hrs.ClosesAt) {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"operating_hours": "opens_at must be before closes_at",
			}))
			return
		}
	}

	now := time.Now()
	clinic := &Clinic{
		ID:              types.NewID(),
		Name:            req.Name,
		Address:         req.Address,
		Phone:           req.Phone,
		Email:           req.Email,
		ConsultationFee: req.ConsultationFee,
		Active:          true,
		OperatingHours:  req.OperatingHours,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.CreateClinic(r.Context(), clinic); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, clinic)
}

// UpdateClinic updates a clinic
func (h *Handler) UpdateClinic(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinic ID"))
		return
	}

	clinic, err := h.repo.GetClinic(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateClinicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// Apply updates
	if req.Name != nil {
		clinic.Name = *req.Name
	}
	if req.Address != nil {
		clinic.Address = *req.Address
	}
	if req.Phone != nil {
		clinic.Phone = *req.Phone
	}
	if req.Email != nil {
		clinic.Email = *req.Email
	}
	if req.ConsultationFee != nil {
		clinic.ConsultationFee = *req.ConsultationFee
	}
	if req.Active != nil {
		clinic.Active = *req.Active
	}
	if req.OperatingHours != nil {
		clinic.OperatingHours = req.OperatingHours
	}
	clinic.UpdatedAt = time.Now()

	if err := h.repo.UpdateClinic(r.Context(), clinic); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clinic)
}

// --- Doctor Handlers ---

// ListDoctors lists the doctors of a clinic
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	clinicID, err := types.ParseID(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinic ID"))
		return
	}

	doctors, err := h.repo.ListDoctors(r.Context(), clinicID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  doctors,
		"total": len(doctors),
	})
}

// GetDoctor gets a doctor by ID
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid doctor ID"))
		return
	}

	doctor, err := h.repo.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doctor)
}

// CreateDoctor adds a doctor to a clinic
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	clinicID, err := types.ParseID(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinic ID"))
		return
	}

	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.FullName == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"full_name": "full_name is required",
		}))
		return
	}

	doctor := &Doctor{
		ID:             types.NewID(),
		ClinicID:       clinicID,
		FullName:       req.FullName,
		Specialization: req.Specialization,
		Active:         true,
		CreatedAt:      time.Now(),
	}

	if err := h.repo.CreateDoctor(r.Context(), doctor); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doctor)
}

// --- Helpers ---

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
