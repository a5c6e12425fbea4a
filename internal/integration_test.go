package internal

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/appointment/infrastructure"
	"github.com/igabaycare/platform/internal/booking"
	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/payment"
	"github.com/igabaycare/platform/internal/prescription"
	"github.com/igabaycare/platform/internal/scheduling"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

type clinicDirectory struct {
	clinics map[types.ID]*clinic.Clinic
}

func (d *clinicDirectory) GetClinic(ctx context.Context, id types.ID) (*clinic.Clinic, error) {
	c, ok := d.clinics[id]
	if !ok {
		return nil, errors.NotFound("clinic", id.String())
	}
	return c, nil
}

type stack struct {
	booking       *booking.Service
	payments      *payment.Service
	appointments  *infrastructure.MemoryRepository
	prescriptions *prescription.Service
	provider      *payment.MockProvider
	clinicID      types.ID
}

func newStack(t *testing.T) *stack {
	t.Helper()

	clinicID := types.NewID()
	clinics := &clinicDirectory{clinics: map[types.ID]*clinic.Clinic{
		clinicID: {
			ID:              clinicID,
			Name:            "Cebu Family Health Clinic",
			ConsultationFee: 500,
			Active:          true,
			OperatingHours: []clinic.OperatingHours{
				{ClinicID: clinicID, Weekday: 1, OpensAt: "08:00", ClosesAt: "18:00"},
			},
		},
	}}

	appointments := infrastructure.NewMemoryRepository()
	allocator := scheduling.NewAllocator(clinics, appointments)

	provider := payment.NewMockProvider("mockpay")
	registry := payment.NewRegistry()
	registry.Register(provider)

	payments := payment.NewService(
		payment.NewMemoryRepository(appointments),
		appointments, clinics, registry, nil, nil,
		config.PaymentConfig{
			DefaultProvider:        "mockpay",
			ProviderTimeoutSeconds: 2,
			BookingFee:             50,
			ProcessingFeeRate:      0.025,
			Currency:               "PHP",
		},
	)

	return &stack{
		booking:       booking.NewService(allocator, appointments, payments, nil, nil),
		payments:      payments,
		appointments:  appointments,
		prescriptions: prescription.NewService(prescription.NewMemoryRepository()),
		provider:      provider,
		clinicID:      clinicID,
	}
}

// TestFullBookingWorkflow drives one appointment from booking through
// payment, assignment, the visit itself, and the prescription.
func TestFullBookingWorkflow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	patientID := types.NewID()
	doctorID := types.NewID()

	// 1. Book a slot, starting payment in the same request.
	result, err := s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       patientID,
		AppointmentDate: "2024-01-15",
		AppointmentTime: "09:30",
		Type:            domain.TypeConsultation,
		PaymentMethod:   "gcash",
	})
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	a := result.Appointment
	if a.Status != domain.StatusPending {
		t.Fatalf("new appointment status = %s, want pending", a.Status)
	}
	if result.Transaction == nil {
		t.Fatal("expected a pending transaction")
	}

	// 2. A second booking for the same slot loses.
	_, err = s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: "2024-01-15",
		AppointmentTime: "09:30",
		Type:            domain.TypeConsultation,
	})
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Fatalf("double booking: got %v, want conflict", err)
	}

	// 3. The provider confirms payment.
	_, confirmed, err := s.payments.ConfirmPayment(ctx, payment.ConfirmPaymentRequest{
		TransactionID: result.Transaction.ID,
		Outcome:       "success",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}
	if confirmed.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("payment status = %s, want paid", confirmed.PaymentStatus)
	}

	// 4. The clinic assigns a doctor, the doctor confirms and runs the visit.
	a, err = s.appointments.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}

	steps := []struct {
		name     string
		apply    func(*domain.Appointment) error
		expected domain.Status
	}{
		{"assign", func(x *domain.Appointment) error { return x.AssignDoctor(doctorID) }, domain.StatusAssigned},
		{"confirm", func(x *domain.Appointment) error { return x.Confirm() }, domain.StatusConfirmed},
		{"start", func(x *domain.Appointment) error { return x.Start() }, domain.StatusInProgress},
		{"complete", func(x *domain.Appointment) error { return x.Complete("routine check, all clear") }, domain.StatusCompleted},
	}
	for _, step := range steps {
		prev := a.Status
		if err := step.apply(a); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if a.Status != step.expected {
			t.Fatalf("%s: status = %s, want %s", step.name, a.Status, step.expected)
		}
		if err := s.appointments.UpdateStatus(ctx, a, prev); err != nil {
			t.Fatalf("%s: UpdateStatus() error: %v", step.name, err)
		}
	}

	// 5. The prescription follows completion.
	p, err := s.prescriptions.CreateForAppointment(
		ctx, a.ID, doctorID, patientID,
		"acute pharyngitis", []string{"amoxicillin 500mg"}, "one capsule three times daily",
	)
	if err != nil {
		t.Fatalf("CreateForAppointment() error: %v", err)
	}
	if p.AppointmentID != a.ID {
		t.Errorf("prescription appointment = %s, want %s", p.AppointmentID, a.ID)
	}

	// 6. A completed appointment still occupies its slot.
	booked, err := s.appointments.BookedTimes(ctx, s.clinicID, "2024-01-15")
	if err != nil {
		t.Fatalf("BookedTimes() error: %v", err)
	}
	found := false
	for _, tm := range booked {
		if tm == "09:30" {
			found = true
		}
	}
	if !found {
		t.Error("completed appointment should still occupy its slot")
	}
}

// TestCancellationWithRefundWorkflow books, pays, and cancels; the
// cancellation succeeds only with a durable refund.
func TestCancellationWithRefundWorkflow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	result, err := s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: "2024-01-15",
		AppointmentTime: "14:30",
		Type:            domain.TypeCheckup,
		PaymentMethod:   "card",
	})
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if _, _, err := s.payments.ConfirmPayment(ctx, payment.ConfirmPaymentRequest{
		TransactionID: result.Transaction.ID,
		Outcome:       "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	cancelled, err := s.booking.Cancel(ctx, result.Appointment.ID, "schedule conflict")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	if cancelled.Appointment.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Appointment.Status)
	}
	if cancelled.Appointment.PaymentStatus != domain.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", cancelled.Appointment.PaymentStatus)
	}
	if cancelled.Transaction == nil || cancelled.Transaction.TotalAmount != -562.5 {
		t.Errorf("refund transaction = %+v, want total -562.5", cancelled.Transaction)
	}

	// The freed slot is bookable again.
	if _, err := s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: "2024-01-15",
		AppointmentTime: "14:30",
		Type:            domain.TypeConsultation,
	}); err != nil {
		t.Errorf("rebooking freed slot failed: %v", err)
	}
}

// TestDeclineReleasesNothing verifies a declined appointment keeps its
// doctor on record and frees the slot for new bookings.
func TestDeclineWorkflow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	doctorID := types.NewID()

	result, err := s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: "2024-01-15",
		AppointmentTime: "10:00",
		Type:            domain.TypeConsultation,
	})
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	a := result.Appointment

	prev := a.Status
	if err := a.AssignDoctor(doctorID); err != nil {
		t.Fatalf("AssignDoctor() error: %v", err)
	}
	if err := s.appointments.UpdateStatus(ctx, a, prev); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	prev = a.Status
	if err := a.Decline("doctor is on leave"); err != nil {
		t.Fatalf("Decline() error: %v", err)
	}
	if err := s.appointments.UpdateStatus(ctx, a, prev); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	stored, err := s.appointments.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if stored.DoctorID == nil || *stored.DoctorID != doctorID {
		t.Error("declined appointment must keep its doctor for the audit trail")
	}

	// Declined appointments do not occupy the slot.
	if _, err := s.booking.Book(ctx, booking.BookRequest{
		ClinicID:        s.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: "2024-01-15",
		AppointmentTime: "10:00",
		Type:            domain.TypeConsultation,
	}); err != nil {
		t.Errorf("booking a declined slot failed: %v", err)
	}
}
