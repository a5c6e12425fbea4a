package prescription

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

func TestCreateForAppointment(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	appointmentID := types.NewID()
	p, err := svc.CreateForAppointment(
		ctx, appointmentID, types.NewID(), types.NewID(),
		"acute bronchitis", []string{"salbutamol inhaler"}, "two puffs as needed",
	)
	if err != nil {
		t.Fatalf("CreateForAppointment() error: %v", err)
	}
	if p.ID.IsZero() {
		t.Error("expected a generated prescription ID")
	}

	got, err := svc.GetByAppointment(ctx, appointmentID)
	if err != nil {
		t.Fatalf("GetByAppointment() error: %v", err)
	}
	if got.Diagnosis != "acute bronchitis" {
		t.Errorf("diagnosis = %q", got.Diagnosis)
	}
}

func TestCreateForAppointmentValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	tests := []struct {
		name        string
		diagnosis   string
		medications []string
	}{
		{"missing diagnosis", "", []string{"paracetamol"}},
		{"missing medications", "influenza", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateForAppointment(
				ctx, types.NewID(), types.NewID(), types.NewID(),
				tt.diagnosis, tt.medications, "",
			)
			if !stderrors.Is(err, errors.ErrValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestCreateForAppointmentOnlyOnce(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	appointmentID := types.NewID()

	if _, err := svc.CreateForAppointment(
		ctx, appointmentID, types.NewID(), types.NewID(),
		"gastritis", []string{"omeprazole 20mg"}, "once daily before breakfast",
	); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.CreateForAppointment(
		ctx, appointmentID, types.NewID(), types.NewID(),
		"gastritis", []string{"omeprazole 20mg"}, "once daily before breakfast",
	)
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("second create: got %v, want conflict", err)
	}
}

func TestGetByAppointmentNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	_, err := svc.GetByAppointment(context.Background(), types.NewID())
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}
