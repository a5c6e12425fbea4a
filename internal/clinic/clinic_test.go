package clinic

import (
	"testing"
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

func TestClinicCreation(t *testing.T) {
	clinic := Clinic{
		ID:   types.NewID(),
		Name: "Cebu Family Health Clinic",
		Address: types.Address{
			Street:     "Osmena Blvd 412",
			City:       "Cebu City",
			PostalCode: "6000",
			Country:    "PH",
		},
		Phone:           "+63 32 255 1234",
		Email:           "frontdesk@cebufamilyhealth.ph",
		ConsultationFee: 500,
		Active:          true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if clinic.ID.IsZero() {
		t.Error("Clinic ID should not be zero")
	}

	if clinic.Name != "Cebu Family Health Clinic" {
		t.Errorf("Expected name 'Cebu Family Health Clinic', got '%s'", clinic.Name)
	}

	if clinic.ConsultationFee != 500 {
		t.Errorf("Expected consultation fee 500, got %v", clinic.ConsultationFee)
	}

	if clinic.Address.Country != "PH" {
		t.Errorf("Expected country 'PH', got '%s'", clinic.Address.Country)
	}
}

func TestHoursFor(t *testing.T) {
	clinicID := types.NewID()
	clinic := Clinic{
		ID: clinicID,
		OperatingHours: []OperatingHours{
			{ClinicID: clinicID, Weekday: time.Monday, OpensAt: "08:00", ClosesAt: "18:00"},
			{ClinicID: clinicID, Weekday: time.Wednesday, OpensAt: "09:00", ClosesAt: "17:00"},
		},
	}

	tests := []struct {
		name    string
		day     time.Weekday
		open    bool
		opensAt types.TimeOfDay
	}{
		{"monday open", time.Monday, true, "08:00"},
		{"wednesday open", time.Wednesday, true, "09:00"},
		{"sunday closed", time.Sunday, false, ""},
		{"tuesday closed", time.Tuesday, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours, ok := clinic.HoursFor(tt.day)
			if ok != tt.open {
				t.Fatalf("Expected open=%v for %s, got %v", tt.open, tt.day, ok)
			}
			if ok && hours.OpensAt != tt.opensAt {
				t.Errorf("Expected opens_at '%s', got '%s'", tt.opensAt, hours.OpensAt)
			}
		})
	}
}

func TestDoctorCreation(t *testing.T) {
	clinicID := types.NewID()

	doctor := Doctor{
		ID:             types.NewID(),
		ClinicID:       clinicID,
		FullName:       "Dr. Maria Santos",
		Specialization: "General Medicine",
		Active:         true,
		CreatedAt:      time.Now(),
	}

	if doctor.ID.IsZero() {
		t.Error("Doctor ID should not be zero")
	}

	if doctor.ClinicID != clinicID {
		t.Error("Clinic ID mismatch")
	}

	if doctor.Specialization != "General Medicine" {
		t.Errorf("Expected specialization 'General Medicine', got '%s'", doctor.Specialization)
	}
}

func TestUpdateClinicRequest(t *testing.T) {
	newName := "Renamed Clinic"
	newFee := 650.0
	inactive := false

	req := UpdateClinicRequest{
		Name:            &newName,
		ConsultationFee: &newFee,
		Active:          &inactive,
	}

	if req.Name == nil || *req.Name != newName {
		t.Error("Name should be set correctly")
	}

	if req.ConsultationFee == nil || *req.ConsultationFee != 650.0 {
		t.Error("Consultation fee should be set correctly")
	}

	if req.Active == nil || *req.Active {
		t.Error("Active should be false")
	}
}

func TestListClinicsFilter(t *testing.T) {
	active := true

	filter := ListClinicsFilter{
		Active: &active,
		Search: "Cebu",
		Limit:  10,
		Offset: 0,
	}

	if filter.Active == nil || !*filter.Active {
		t.Error("Active filter should be set correctly")
	}

	if filter.Search != "Cebu" {
		t.Errorf("Expected search 'Cebu', got '%s'", filter.Search)
	}

	if filter.Limit != 10 {
		t.Errorf("Expected limit 10, got %d", filter.Limit)
	}
}
