package prescription

import (
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

// Prescription is the follow-up record a doctor attaches to a completed
// appointment. At most one per appointment; creation is best-effort and
// retryable without affecting the appointment itself.
type Prescription struct {
	ID            types.ID  `json:"id"`
	AppointmentID types.ID  `json:"appointment_id"`
	DoctorID      types.ID  `json:"doctor_id"`
	PatientID     types.ID  `json:"patient_id"`
	Diagnosis     string    `json:"diagnosis"`
	Medications   []string  `json:"medications"`
	Instructions  string    `json:"instructions,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreatePrescriptionRequest is the request to retry prescription creation
type CreatePrescriptionRequest struct {
	Diagnosis    string   `json:"diagnosis"`
	Medications  []string `json:"medications"`
	Instructions string   `json:"instructions,omitempty"`
}
