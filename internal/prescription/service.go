package prescription

import (
	"context"
	"time"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Service creates and retrieves prescriptions
type Service struct {
	repo Repository
}

// NewService creates a new prescription service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateForAppointment creates the prescription attached to a completed
// appointment. The caller guarantees the appointment has reached
// completion; a failure here never reverses it.
func (s *Service) CreateForAppointment(
	ctx context.Context,
	appointmentID, doctorID, patientID types.ID,
	diagnosis string,
	medications []string,
	instructions string,
) (*Prescription, error) {
	details := map[string]string{}
	if diagnosis == "" {
		details["diagnosis"] = "diagnosis is required"
	}
	if len(medications) == 0 {
		details["medications"] = "medications are required"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid prescription", details)
	}

	p := &Prescription{
		ID:            types.NewID(),
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		Diagnosis:     diagnosis,
		Medications:   medications,
		Instructions:  instructions,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// GetByAppointment retrieves the prescription for an appointment
func (s *Service) GetByAppointment(ctx context.Context, appointmentID types.ID) (*Prescription, error) {
	return s.repo.FindByAppointment(ctx, appointmentID)
}
