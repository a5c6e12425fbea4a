package domain

import (
	"time"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// AppointmentType defines the service category of an appointment
type AppointmentType string

const (
	TypeConsultation AppointmentType = "CONSULTATION"
	TypeFollowUp     AppointmentType = "FOLLOW_UP"
	TypeCheckup      AppointmentType = "CHECKUP"
	TypeVaccination  AppointmentType = "VACCINATION"
	TypeLabTest      AppointmentType = "LAB_TEST"
)

// Status is the lifecycle state of an appointment. Exactly one status
// holds at any time and it is only ever written through the transition
// methods below.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusConfirmed  Status = "confirmed"
	StatusDeclined   Status = "declined"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further lifecycle transitions are permitted
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the appointment still occupies its slot
func (s Status) IsActive() bool {
	return s != StatusCancelled && s != StatusDeclined
}

// PaymentStatus tracks settlement separately from the lifecycle status.
// Payment confirmation and doctor confirmation are independent gates; a
// failed payment leaves the appointment payable again without moving it
// out of its lifecycle state.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Appointment is the aggregate root for the booking ledger
type Appointment struct {
	ID       types.ID `json:"id"`
	ClinicID types.ID `json:"clinic_id"`
	// PatientID identifies the booking patient
	PatientID types.ID `json:"patient_id"`
	// DoctorID is set when the clinic assigns a doctor and retained
	// afterward, including on decline, for the audit trail
	DoctorID *types.ID `json:"doctor_id,omitempty"`

	AppointmentDate types.Date      `json:"appointment_date"`
	AppointmentTime types.TimeOfDay `json:"appointment_time"`
	DurationMinutes int             `json:"duration_minutes"`
	Type            AppointmentType `json:"appointment_type"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	PatientNotes  string `json:"patient_notes,omitempty"`
	ClinicNotes   string `json:"clinic_notes,omitempty"`
	DoctorNotes   string `json:"doctor_notes,omitempty"`
	DeclineReason string `json:"decline_reason,omitempty"`

	// Each timestamp is set exactly once, by the transition that causes it.
	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	DeclinedAt  *time.Time `json:"declined_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Domain events accumulated by transitions, drained for publishing
	// after the durable write.
	domainEvents []Event
}

// Event is a domain event raised by an appointment transition
type Event struct {
	Type          string         `json:"type"`
	AppointmentID types.ID       `json:"appointment_id"`
	Data          map[string]any `json:"data,omitempty"`
}

// NewAppointment creates a pending appointment with validation
func NewAppointment(
	clinicID, patientID types.ID,
	date types.Date,
	slot types.TimeOfDay,
	appointmentType AppointmentType,
	patientNotes string,
) (*Appointment, error) {
	details := map[string]string{}
	if clinicID.IsZero() {
		details["clinic_id"] = "clinic_id is required"
	}
	if patientID.IsZero() {
		details["patient_id"] = "patient_id is required"
	}
	if date.IsZero() {
		details["appointment_date"] = "appointment_date is required"
	}
	if slot.IsZero() {
		details["appointment_time"] = "appointment_time is required"
	}
	if appointmentType == "" {
		details["appointment_type"] = "appointment_type is required"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid appointment", details)
	}

	now := time.Now()
	a := &Appointment{
		ID:              types.NewID(),
		ClinicID:        clinicID,
		PatientID:       patientID,
		AppointmentDate: date,
		AppointmentTime: slot,
		DurationMinutes: 30,
		Type:            appointmentType,
		Status:          StatusPending,
		PaymentStatus:   PaymentUnpaid,
		PatientNotes:    patientNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	a.raise("appointment.created", map[string]any{
		"clinic_id":        clinicID,
		"patient_id":       patientID,
		"appointment_date": date,
		"appointment_time": slot,
		"appointment_type": appointmentType,
	})

	return a, nil
}

// AssignDoctor moves a pending appointment to assigned. The clinic
// delegates the visit to a specific doctor; the doctor remains the final
// authority on acceptance.
func (a *Appointment) AssignDoctor(doctorID types.ID) error {
	if a.Status != StatusPending {
		return errors.InvalidTransition(string(a.Status), string(StatusAssigned))
	}
	if doctorID.IsZero() {
		return errors.Validation("invalid assignment", map[string]string{
			"doctor_id": "doctor_id is required",
		})
	}

	now := time.Now()
	a.Status = StatusAssigned
	a.DoctorID = &doctorID
	a.AssignedAt = &now
	a.UpdatedAt = now

	a.raise("appointment.assigned", map[string]any{"doctor_id": doctorID})

	return nil
}

// Confirm records the assigned doctor's acceptance
func (a *Appointment) Confirm() error {
	if a.Status != StatusAssigned {
		return errors.InvalidTransition(string(a.Status), string(StatusConfirmed))
	}

	now := time.Now()
	a.Status = StatusConfirmed
	a.ConfirmedAt = &now
	a.UpdatedAt = now

	a.raise("appointment.confirmed", map[string]any{"doctor_id": a.DoctorID})

	return nil
}

// Decline records the assigned doctor's refusal. Declined is terminal:
// re-assignment to another doctor is a fresh clinic action on a new
// booking, the ledger does not auto-retry.
func (a *Appointment) Decline(reason string) error {
	if reason == "" {
		return errors.Validation("invalid decline", map[string]string{
			"decline_reason": "decline_reason is required",
		})
	}
	if a.Status != StatusAssigned {
		return errors.InvalidTransition(string(a.Status), string(StatusDeclined))
	}

	now := time.Now()
	a.Status = StatusDeclined
	a.DeclineReason = reason
	a.DeclinedAt = &now
	a.UpdatedAt = now

	a.raise("appointment.declined", map[string]any{
		"doctor_id": a.DoctorID,
		"reason":    reason,
	})

	return nil
}

// Start marks the consultation as underway
func (a *Appointment) Start() error {
	if a.Status != StatusConfirmed {
		return errors.InvalidTransition(string(a.Status), string(StatusInProgress))
	}

	now := time.Now()
	a.Status = StatusInProgress
	a.StartedAt = &now
	a.UpdatedAt = now

	a.raise("appointment.started", nil)

	return nil
}

// Complete finishes the consultation. Completion is the durable fact; any
// follow-up prescription is created separately and is retryable without
// reversing it.
func (a *Appointment) Complete(doctorNotes string) error {
	if a.Status != StatusInProgress {
		return errors.InvalidTransition(string(a.Status), string(StatusCompleted))
	}

	now := time.Now()
	a.Status = StatusCompleted
	a.DoctorNotes = doctorNotes
	a.CompletedAt = &now
	a.UpdatedAt = now

	a.raise("appointment.completed", map[string]any{"doctor_id": a.DoctorID})

	return nil
}

// Cancel ends the appointment before the visit. Permitted from pending,
// assigned, and confirmed; the caller is responsible for driving the
// refund path when a completed payment exists.
func (a *Appointment) Cancel() error {
	switch a.Status {
	case StatusPending, StatusAssigned, StatusConfirmed:
	default:
		return errors.InvalidTransition(string(a.Status), string(StatusCancelled))
	}

	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.UpdatedAt = now

	a.raise("appointment.cancelled", map[string]any{
		"payment_status": a.PaymentStatus,
	})

	return nil
}

// MarkPaid records a completed payment. Idempotent: marking an already
// paid appointment is a no-op.
func (a *Appointment) MarkPaid() {
	if a.PaymentStatus == PaymentPaid {
		return
	}
	a.PaymentStatus = PaymentPaid
	a.UpdatedAt = time.Now()
	a.raise("appointment.payment_confirmed", nil)
}

// MarkPaymentFailed records a failed payment without touching the
// lifecycle status, leaving the appointment payable again.
func (a *Appointment) MarkPaymentFailed() {
	a.PaymentStatus = PaymentFailed
	a.UpdatedAt = time.Now()
	a.raise("appointment.payment_failed", nil)
}

// MarkRefunded records that the settled payment was reversed
func (a *Appointment) MarkRefunded() {
	a.PaymentStatus = PaymentRefunded
	a.UpdatedAt = time.Now()
	a.raise("appointment.payment_refunded", nil)
}

// DomainEvents returns and clears accumulated domain events
func (a *Appointment) DomainEvents() []Event {
	events := a.domainEvents
	a.domainEvents = nil
	return events
}

func (a *Appointment) raise(eventType string, data map[string]any) {
	a.domainEvents = append(a.domainEvents, Event{
		Type:          eventType,
		AppointmentID: a.ID,
		Data:          data,
	})
}
