package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory domain.Repository used in tests and
// when the service runs without a database. It enforces the same
// single-active-booking-per-slot and compare-and-swap semantics as the
// PostgreSQL implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[types.ID]*domain.Appointment
}

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[types.ID]*domain.Appointment),
	}
}

func slotKey(clinicID types.ID, date types.Date, t types.TimeOfDay) string {
	return fmt.Sprintf("%s|%s|%s", clinicID, date, t)
}

// Create persists a new appointment, rejecting slot conflicts
func (r *MemoryRepository) Create(_ context.Context, a *domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey(a.ClinicID, a.AppointmentDate, a.AppointmentTime)
	for _, existing := range r.appointments {
		if existing.Status.IsActive() &&
			slotKey(existing.ClinicID, existing.AppointmentDate, existing.AppointmentTime) == key {
			return errors.Conflict("slot is already booked for this clinic and time")
		}
	}

	stored := *a
	r.appointments[a.ID] = &stored

	return nil
}

// FindByID retrieves an appointment by ID
func (r *MemoryRepository) FindByID(_ context.Context, id types.ID) (*domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", id.String())
	}

	copied := *a
	return &copied, nil
}

// UpdateStatus applies a transition only if the stored status still
// matches expected
func (r *MemoryRepository) UpdateStatus(_ context.Context, a *domain.Appointment, expected domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.appointments[a.ID]
	if !ok {
		return errors.NotFound("appointment", a.ID.String())
	}

	if stored.Status != expected {
		return errors.InvalidTransition(string(stored.Status), string(a.Status))
	}

	copied := *a
	r.appointments[a.ID] = &copied

	return nil
}

// UpdatePaymentStatus persists a payment-status change
func (r *MemoryRepository) UpdatePaymentStatus(_ context.Context, a *domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.appointments[a.ID]
	if !ok {
		return errors.NotFound("appointment", a.ID.String())
	}

	stored.PaymentStatus = a.PaymentStatus
	stored.UpdatedAt = a.UpdatedAt

	return nil
}

// BookedTimes returns slot times occupied by active appointments
func (r *MemoryRepository) BookedTimes(_ context.Context, clinicID types.ID, date types.Date) ([]types.TimeOfDay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var times []types.TimeOfDay
	for _, a := range r.appointments {
		if a.ClinicID == clinicID && a.AppointmentDate == date && a.Status.IsActive() {
			times = append(times, a.AppointmentTime)
		}
	}

	return times, nil
}

// List lists appointments with filters
func (r *MemoryRepository) List(_ context.Context, filter domain.ListFilter) ([]domain.Appointment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Appointment
	for _, a := range r.appointments {
		if filter.ClinicID != nil && a.ClinicID != *filter.ClinicID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *filter.DoctorID) {
			continue
		}
		if filter.Date != nil && a.AppointmentDate != *filter.Date {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		matched = append(matched, *a)
	}

	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

// Verify interface implementation
var _ domain.Repository = (*MemoryRepository)(nil)
