package booking

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/appointment/infrastructure"
	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/payment"
	"github.com/igabaycare/platform/internal/scheduling"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

const monday = types.Date("2024-01-15")

type fakeClinics struct {
	clinics map[types.ID]*clinic.Clinic
}

func (f *fakeClinics) GetClinic(ctx context.Context, id types.ID) (*clinic.Clinic, error) {
	c, ok := f.clinics[id]
	if !ok {
		return nil, errors.NotFound("clinic", id.String())
	}
	return c, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notification.TemplateKind
}

func (n *recordingNotifier) Dispatch(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

type bookingFixture struct {
	service      *Service
	appointments *infrastructure.MemoryRepository
	payments     *payment.Service
	provider     *payment.MockProvider
	clinicID     types.ID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	clinicID := types.NewID()
	clinics := &fakeClinics{clinics: map[types.ID]*clinic.Clinic{
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

	payCfg := config.PaymentConfig{
		DefaultProvider:        "mockpay",
		ProviderTimeoutSeconds: 2,
		BookingFee:             50,
		ProcessingFeeRate:      0.025,
		Currency:               "PHP",
	}
	payments := payment.NewService(
		payment.NewMemoryRepository(appointments),
		appointments, clinics, registry, &recordingNotifier{}, nil, payCfg,
	)

	return &bookingFixture{
		service:      NewService(allocator, appointments, payments, nil, &recordingNotifier{}),
		appointments: appointments,
		payments:     payments,
		provider:     provider,
		clinicID:     clinicID,
	}
}

func (f *bookingFixture) bookRequest(slot types.TimeOfDay) BookRequest {
	return BookRequest{
		ClinicID:        f.clinicID,
		PatientID:       types.NewID(),
		AppointmentDate: monday,
		AppointmentTime: slot,
		Type:            appointment.TypeConsultation,
	}
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newBookingFixture(t)

	result, err := f.service.Book(context.Background(), f.bookRequest("09:30"))
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	a := result.Appointment
	if a.Status != appointment.StatusPending {
		t.Errorf("status = %q, want pending", a.Status)
	}
	if a.PaymentStatus != appointment.PaymentUnpaid {
		t.Errorf("payment status = %q, want unpaid", a.PaymentStatus)
	}
	if result.Transaction != nil {
		t.Error("no payment method given, no transaction expected")
	}

	stored, err := f.appointments.FindByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if stored.AppointmentTime != "09:30" {
		t.Errorf("stored slot = %q, want 09:30", stored.AppointmentTime)
	}
}

func TestBookInitiatesPaymentWhenMethodGiven(t *testing.T) {
	f := newBookingFixture(t)

	req := f.bookRequest("10:00")
	req.PaymentMethod = "gcash"

	result, err := f.service.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if result.Transaction == nil {
		t.Fatal("expected a transaction")
	}
	if result.Transaction.Status != payment.TransactionPending {
		t.Errorf("transaction status = %q, want pending", result.Transaction.Status)
	}
	if result.Transaction.TotalAmount != 562.5 {
		t.Errorf("total = %v, want 562.5", result.Transaction.TotalAmount)
	}
	if result.PaymentError != "" {
		t.Errorf("unexpected payment error: %s", result.PaymentError)
	}
}

func TestBookChargeFailureDoesNotLoseBooking(t *testing.T) {
	f := newBookingFixture(t)
	f.provider.FailCharge(true)

	req := f.bookRequest("10:30")
	req.PaymentMethod = "gcash"

	result, err := f.service.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if result.PaymentError == "" {
		t.Error("expected a payment error")
	}

	stored, err := f.appointments.FindByID(context.Background(), result.Appointment.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if stored.Status != appointment.StatusPending {
		t.Errorf("status = %q, want pending despite charge failure", stored.Status)
	}
	if stored.PaymentStatus != appointment.PaymentFailed {
		t.Errorf("payment status = %q, want failed", stored.PaymentStatus)
	}
}

func TestBookRejectsLunchHourSlot(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Book(context.Background(), f.bookRequest("12:00"))
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict for lunch-hour slot, got %v", err)
	}
}

func TestBookRejectsOccupiedSlot(t *testing.T) {
	f := newBookingFixture(t)

	if _, err := f.service.Book(context.Background(), f.bookRequest("09:00")); err != nil {
		t.Fatalf("first Book() error: %v", err)
	}

	_, err := f.service.Book(context.Background(), f.bookRequest("09:00"))
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict for occupied slot, got %v", err)
	}
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	f := newBookingFixture(t)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.Book(context.Background(), f.bookRequest("15:00"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		if !stderrors.Is(err, errors.ErrConflict) {
			t.Errorf("loser got %v, want conflict", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestCancelWithoutPaymentIsImmediate(t *testing.T) {
	f := newBookingFixture(t)

	result, err := f.service.Book(context.Background(), f.bookRequest("11:00"))
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	cancelled, err := f.service.Cancel(context.Background(), result.Appointment.ID, "change of plans")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if cancelled.Appointment.Status != appointment.StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Appointment.Status)
	}
	if cancelled.Transaction != nil {
		t.Error("no refund expected without a completed payment")
	}

	// The slot frees up again.
	if _, err := f.service.Book(context.Background(), f.bookRequest("11:00")); err != nil {
		t.Errorf("rebooking freed slot failed: %v", err)
	}
}

func TestCancelWithCompletedPaymentRefunds(t *testing.T) {
	f := newBookingFixture(t)

	req := f.bookRequest("14:00")
	req.PaymentMethod = "gcash"
	result, err := f.service.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if _, _, err := f.payments.ConfirmPayment(context.Background(), payment.ConfirmPaymentRequest{
		TransactionID: result.Transaction.ID,
		Outcome:       "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	cancelled, err := f.service.Cancel(context.Background(), result.Appointment.ID, "emergency")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	if cancelled.Transaction == nil {
		t.Fatal("expected a refund transaction")
	}
	if cancelled.Transaction.TotalAmount != -562.5 {
		t.Errorf("refund total = %v, want -562.5", cancelled.Transaction.TotalAmount)
	}
	if cancelled.Appointment.Status != appointment.StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Appointment.Status)
	}
	if cancelled.Appointment.PaymentStatus != appointment.PaymentRefunded {
		t.Errorf("payment status = %q, want refunded", cancelled.Appointment.PaymentStatus)
	}
}

func TestCancelFailedRefundLeavesAppointmentUnchanged(t *testing.T) {
	f := newBookingFixture(t)

	req := f.bookRequest("16:00")
	req.PaymentMethod = "gcash"
	result, err := f.service.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if _, _, err := f.payments.ConfirmPayment(context.Background(), payment.ConfirmPaymentRequest{
		TransactionID: result.Transaction.ID,
		Outcome:       "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	f.provider.FailRefund(true)

	_, err = f.service.Cancel(context.Background(), result.Appointment.ID, "emergency")
	if err == nil {
		t.Fatal("expected cancellation to fail when the refund did not settle")
	}

	stored, findErr := f.appointments.FindByID(context.Background(), result.Appointment.ID)
	if findErr != nil {
		t.Fatalf("FindByID() error: %v", findErr)
	}
	if stored.Status == appointment.StatusCancelled {
		t.Error("appointment must not be cancelled without a durable refund")
	}
	if stored.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("payment status = %q, want paid", stored.PaymentStatus)
	}
}
