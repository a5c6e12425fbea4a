package clinic

import (
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

// Clinic represents a registered clinic
type Clinic struct {
	ID              types.ID      `json:"id"`
	Name            string        `json:"name"`
	Address         types.Address `json:"address"`
	Phone           string        `json:"phone"`
	Email           string        `json:"email"`
	ConsultationFee float64       `json:"consultation_fee"`
	Active          bool          `json:"active"`

	// One entry per weekday the clinic is open; a missing weekday means closed.
	OperatingHours []OperatingHours `json:"operating_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OperatingHours defines the open/close window for one weekday
type OperatingHours struct {
	ClinicID types.ID        `json:"clinic_id"`
	Weekday  time.Weekday    `json:"weekday"`
	OpensAt  types.TimeOfDay `json:"opens_at"`
	ClosesAt types.TimeOfDay `json:"closes_at"`
}

// HoursFor returns the operating hours for a weekday, or false if closed
func (c *Clinic) HoursFor(day time.Weekday) (OperatingHours, bool) {
	for _, h := range c.OperatingHours {
		if h.Weekday == day {
			return h, true
		}
	}
	return OperatingHours{}, false
}

// Doctor represents a doctor practicing at a clinic
type Doctor struct {
	ID             types.ID  `json:"id"`
	ClinicID       types.ID  `json:"clinic_id"`
	FullName       string    `json:"full_name"`
	Specialization string    `json:"specialization"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateClinicRequest is the request to register a clinic
type CreateClinicRequest struct {
	Name            string           `json:"name" validate:"required,min=2,max=255"`
	Address         types.Address    `json:"address"`
	Phone           string           `json:"phone"`
	Email           string           `json:"email"`
	ConsultationFee float64          `json:"consultation_fee"`
	OperatingHours  []OperatingHours `json:"operating_hours"`
}

// UpdateClinicRequest is the request to update a clinic
type UpdateClinicRequest struct {
	Name            *string          `json:"name,omitempty"`
	Address         *types.Address   `json:"address,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	Email           *string          `json:"email,omitempty"`
	ConsultationFee *float64         `json:"consultation_fee,omitempty"`
	Active          *bool            `json:"active,omitempty"`
	OperatingHours  []OperatingHours `json:"operating_hours,omitempty"`
}

// CreateDoctorRequest is the request to add a doctor to a clinic
type CreateDoctorRequest struct {
	ClinicID       types.ID `json:"clinic_id"`
	FullName       string   `json:"full_name" validate:"required,min=1,max=255"`
	Specialization string   `json:"specialization"`
}

// ListClinicsFilter defines filters for listing clinics
type ListClinicsFilter struct {
	Active *bool  `json:"active,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
