package domain

import (
	"context"

	"github.com/igabaycare/platform/internal/shared/types"
)

// Repository defines the interface for appointment persistence.
// Implementations must enforce the single-active-booking-per-slot rule at
// the storage level so concurrent creates for the same slot resolve to
// exactly one winner.
type Repository interface {
	// Create persists a new appointment. Returns ErrConflict when an
	// active appointment already occupies the same clinic+date+time.
	Create(ctx context.Context, a *Appointment) error

	FindByID(ctx context.Context, id types.ID) (*Appointment, error)

	// UpdateStatus persists a lifecycle transition with a compare-and-swap
	// on the previous status: the write only applies if the persisted
	// status still equals expected. A losing concurrent writer gets
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, a *Appointment, expected Status) error

	// UpdatePaymentStatus persists a payment-status change without
	// touching the lifecycle status.
	UpdatePaymentStatus(ctx context.Context, a *Appointment) error

	// BookedTimes returns the slot times occupied by active appointments
	// for a clinic and date, feeding the slot allocator's advisory view.
	BookedTimes(ctx context.Context, clinicID types.ID, date types.Date) ([]types.TimeOfDay, error)

	List(ctx context.Context, filter ListFilter) ([]Appointment, int, error)
}

// ListFilter defines filters for listing appointments
type ListFilter struct {
	ClinicID  *types.ID   `json:"clinic_id,omitempty"`
	PatientID *types.ID   `json:"patient_id,omitempty"`
	DoctorID  *types.ID   `json:"doctor_id,omitempty"`
	Date      *types.Date `json:"date,omitempty"`
	Status    *Status     `json:"status,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}
