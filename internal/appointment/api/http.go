package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/prescription"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/events"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Notifier dispatches a notification after a durable state change.
// Delivery is at-least-once; the ledger never waits on it.
type Notifier interface {
	Dispatch(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) error
}

// PrescriptionCreator creates the optional prescription attached to a
// completed appointment
type PrescriptionCreator interface {
	CreateForAppointment(ctx context.Context, appointmentID, doctorID, patientID types.ID, diagnosis string, medications []string, instructions string) (*prescription.Prescription, error)
}

// Handler provides HTTP handlers for the appointment state machine
type Handler struct {
	repo          domain.Repository
	bus           events.EventBus
	notifier      Notifier
	prescriptions PrescriptionCreator
}

// NewHandler creates a new appointment handler
func NewHandler(repo domain.Repository, bus events.EventBus, notifier Notifier, prescriptions PrescriptionCreator) *Handler {
	return &Handler{repo: repo, bus: bus, notifier: notifier, prescriptions: prescriptions}
}

// Routes registers the appointment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAppointments)

	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.GetAppointment)

		// Status transitions
		r.Post("/assign", h.AssignDoctor)
		r.Post("/confirm", h.ConfirmAppointment)
		r.Post("/decline", h.DeclineAppointment)
		r.Post("/start", h.StartAppointment)
		r.Post("/complete", h.CompleteAppointment)
	})

	return r
}

// --- Request types ---

type AssignDoctorRequest struct {
	DoctorID    types.ID `json:"doctor_id"`
	ClinicNotes string   `json:"clinic_notes,omitempty"`
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	Diagnosis    string   `json:"diagnosis"`
	Medications  []string `json:"medications"`
	Instructions string   `json:"instructions,omitempty"`
	DoctorNotes  string   `json:"doctor_notes,omitempty"`
}

// --- Handlers ---

// ListAppointments lists appointments with filters
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{}

	if c := r.URL.Query().Get("clinic_id"); c != "" {
		id, err := types.ParseID(c)
		if err != nil {
			writeError(w, errors.BadRequest("invalid clinic_id"))
			return
		}
		filter.ClinicID = &id
	}

	if p := r.URL.Query().Get("patient_id"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient_id"))
			return
		}
		filter.PatientID = &id
	}

	if d := r.URL.Query().Get("doctor_id"); d != "" {
		id, err := types.ParseID(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid doctor_id"))
			return
		}
		filter.DoctorID = &id
	}

	if d := r.URL.Query().Get("date"); d != "" {
		date, err := types.ParseDate(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid date"))
			return
		}
		filter.Date = &date
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.Status(s)
		filter.Status = &status
	}

	appointments, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  appointments,
		"total": total,
	})
}

// GetAppointment gets an appointment by ID
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// AssignDoctor delegates a pending appointment to a doctor
func (h *Handler) AssignDoctor(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	var req AssignDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	prev := a.Status
	if err := a.AssignDoctor(req.DoctorID); err != nil {
		writeError(w, err)
		return
	}
	if req.ClinicNotes != "" {
		a.ClinicNotes = req.ClinicNotes
	}

	if err := h.repo.UpdateStatus(r.Context(), a, prev); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), a)
	h.notify(r.Context(), req.DoctorID, "doctor", notification.TemplateDoctorAssigned, a, map[string]any{
		"appointment_date": a.AppointmentDate,
		"appointment_time": a.AppointmentTime,
	})

	writeJSON(w, http.StatusOK, a)
}

// ConfirmAppointment records the doctor's acceptance
func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	prev := a.Status
	if err := a.Confirm(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), a, prev); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), a)
	h.notify(r.Context(), a.PatientID, "patient", notification.TemplateAppointmentConfirmed, a, map[string]any{
		"appointment_date": a.AppointmentDate,
		"appointment_time": a.AppointmentTime,
	})

	writeJSON(w, http.StatusOK, a)
}

// DeclineAppointment records the doctor's refusal, reason required
func (h *Handler) DeclineAppointment(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	var req DeclineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	prev := a.Status
	if err := a.Decline(req.Reason); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), a, prev); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), a)
	h.notify(r.Context(), a.PatientID, "patient", notification.TemplateAppointmentDeclined, a, map[string]any{
		"reason": req.Reason,
	})
	h.notify(r.Context(), a.ClinicID, "clinic", notification.TemplateAppointmentDeclined, a, map[string]any{
		"reason": req.Reason,
	})

	writeJSON(w, http.StatusOK, a)
}

// StartAppointment marks the consultation as underway
func (h *Handler) StartAppointment(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	prev := a.Status
	if err := a.Start(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), a, prev); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), a)

	writeJSON(w, http.StatusOK, a)
}

// CompleteAppointment finishes the consultation. Completion is durable
// first; the prescription is created afterward and surfaced as a
// retryable follow-up if it fails.
func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	a := h.getAppointment(w, r)
	if a == nil {
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.Diagnosis == "" {
		details["diagnosis"] = "diagnosis is required"
	}
	if len(req.Medications) == 0 {
		details["medications"] = "medications are required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	prev := a.Status
	if err := a.Complete(req.DoctorNotes); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), a, prev); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), a)
	h.notify(r.Context(), a.PatientID, "patient", notification.TemplateVisitCompleted, a, map[string]any{
		"rating_requested": true,
	})

	response := map[string]any{"appointment": a}

	if h.prescriptions != nil && a.DoctorID != nil {
		rx, err := h.prescriptions.CreateForAppointment(
			r.Context(), a.ID, *a.DoctorID, a.PatientID,
			req.Diagnosis, req.Medications, req.Instructions,
		)
		if err != nil {
			response["prescription_error"] = "prescription creation failed, retry from the appointment record"
		} else {
			response["prescription"] = rx
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// --- Helpers ---

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) *domain.Appointment {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return nil
	}

	a, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil
	}

	return a
}

func (h *Handler) publishEvents(ctx context.Context, a *domain.Appointment) {
	if h.bus == nil {
		return
	}

	for _, e := range a.DomainEvents() {
		event := events.NewEvent(e.Type, "appointment", map[string]any{
			"appointment_id": a.ID,
			"status":         a.Status,
			"data":           e.Data,
		}).WithActor(a.PatientID, "patient", a.ClinicID)

		h.bus.Publish(ctx, event)
	}
}

func (h *Handler) notify(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, a *domain.Appointment, payload map[string]any) {
	if h.notifier == nil {
		return
	}

	h.notifier.Dispatch(ctx, userID, userType, kind, a.ID, payload)
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
