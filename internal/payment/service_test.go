package payment

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/appointment/infrastructure"
	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

type fakeClinics struct {
	fee float64
}

func (f *fakeClinics) GetClinic(ctx context.Context, id types.ID) (*clinic.Clinic, error) {
	return &clinic.Clinic{ID: id, Name: "Cebu Family Health Clinic", ConsultationFee: f.fee}, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	kinds map[notification.TemplateKind]int
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{kinds: make(map[notification.TemplateKind]int)}
}

func (n *countingNotifier) Dispatch(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds[kind]++
	return nil
}

func (n *countingNotifier) count(kind notification.TemplateKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.kinds[kind]
}

type paymentFixture struct {
	service      *Service
	appointments *infrastructure.MemoryRepository
	provider     *MockProvider
	notifier     *countingNotifier
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	appointments := infrastructure.NewMemoryRepository()
	repo := NewMemoryRepository(appointments)
	provider := NewMockProvider("mockpay")
	registry := NewRegistry()
	registry.Register(provider)
	notifier := newCountingNotifier()

	cfg := config.PaymentConfig{
		DefaultProvider:        "mockpay",
		ProviderTimeoutSeconds: 2,
		BookingFee:             50,
		ProcessingFeeRate:      0.025,
		Currency:               "PHP",
	}

	return &paymentFixture{
		service:      NewService(repo, appointments, &fakeClinics{fee: 500}, registry, notifier, nil, cfg),
		appointments: appointments,
		provider:     provider,
		notifier:     notifier,
	}
}

func (f *paymentFixture) createAppointment(t *testing.T) *appointment.Appointment {
	t.Helper()

	a, err := appointment.NewAppointment(
		types.NewID(), types.NewID(),
		types.Date("2024-01-15"), types.TimeOfDay("09:30"),
		appointment.TypeConsultation, "",
	)
	if err != nil {
		t.Fatalf("NewAppointment() error: %v", err)
	}
	a.DomainEvents()
	if err := f.appointments.Create(context.Background(), a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return a
}

func (f *paymentFixture) initiate(t *testing.T, a *appointment.Appointment) *Transaction {
	t.Helper()

	tx, err := f.service.InitiatePayment(context.Background(), InitiatePaymentRequest{
		AppointmentID: a.ID,
		PaymentMethod: "gcash",
	})
	if err != nil {
		t.Fatalf("InitiatePayment() error: %v", err)
	}
	return tx
}

func TestInitiatePaymentComputesFees(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)

	tx := f.initiate(t, a)

	if tx.ConsultationFee != 500 {
		t.Errorf("consultation fee = %v, want 500", tx.ConsultationFee)
	}
	if tx.BookingFee != 50 {
		t.Errorf("booking fee = %v, want 50", tx.BookingFee)
	}
	if tx.ProcessingFee != 12.5 {
		t.Errorf("processing fee = %v, want 12.5", tx.ProcessingFee)
	}
	if tx.TotalAmount != 562.5 {
		t.Errorf("total = %v, want 562.5", tx.TotalAmount)
	}
	if tx.Currency != "PHP" {
		t.Errorf("currency = %q, want PHP", tx.Currency)
	}
	if tx.Status != TransactionPending {
		t.Errorf("status = %q, want pending", tx.Status)
	}
	if tx.ExternalPaymentID == "" {
		t.Error("expected provider reference on the transaction")
	}
}

func TestConfirmPaymentSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	got, gotA, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID,
		Outcome:       "success",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	if got.Status != TransactionCompleted {
		t.Errorf("transaction status = %q, want completed", got.Status)
	}
	if got.PaymentDate == nil || got.ConfirmationDate == nil {
		t.Error("expected payment and confirmation dates stamped")
	}
	if gotA.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("appointment payment status = %q, want paid", gotA.PaymentStatus)
	}
	if gotA.Status != appointment.StatusPending {
		t.Errorf("lifecycle status = %q, want pending (payment does not advance lifecycle)", gotA.Status)
	}

	stored, err := f.appointments.FindByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if stored.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("persisted payment status = %q, want paid", stored.PaymentStatus)
	}

	if n := f.notifier.count(notification.TemplatePaymentReceipt); n != 1 {
		t.Errorf("receipt notifications = %d, want 1", n)
	}
	if n := f.notifier.count(notification.TemplateAppointmentReminder); n != 1 {
		t.Errorf("reminder notifications = %d, want 1", n)
	}
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	req := ConfirmPaymentRequest{TransactionID: tx.ID, Outcome: "success"}
	if _, _, err := f.service.ConfirmPayment(context.Background(), req); err != nil {
		t.Fatalf("first ConfirmPayment() error: %v", err)
	}

	got, gotA, err := f.service.ConfirmPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("second ConfirmPayment() error: %v", err)
	}
	if got.Status != TransactionCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if gotA.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("payment status = %q, want paid", gotA.PaymentStatus)
	}

	if n := f.notifier.count(notification.TemplatePaymentReceipt); n != 1 {
		t.Errorf("receipt notifications after replay = %d, want 1", n)
	}
}

func TestConfirmPaymentFailureLeavesLifecycleUntouched(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	got, gotA, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID,
		Outcome:       "failed",
		FailureReason: "card declined",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	if got.Status != TransactionFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.FailureReason != "card declined" {
		t.Errorf("failure reason = %q", got.FailureReason)
	}
	if gotA.PaymentStatus != appointment.PaymentFailed {
		t.Errorf("payment status = %q, want failed", gotA.PaymentStatus)
	}
	if gotA.Status != appointment.StatusPending {
		t.Errorf("lifecycle status = %q, want pending (failed payment must not cancel)", gotA.Status)
	}

	// A failed payment leaves the appointment payable again.
	retry := f.initiate(t, a)
	if retry.Status != TransactionPending {
		t.Errorf("retry status = %q, want pending", retry.Status)
	}
}

func TestConfirmPaymentAmbiguousOutcomeReconciles(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	f.provider.SetChargeStatus(tx.ExternalPaymentID, TransactionCompleted)

	got, gotA, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID,
		Outcome:       "unknown",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}
	if got.Status != TransactionCompleted {
		t.Errorf("status = %q, want completed after reconciliation", got.Status)
	}
	if gotA.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("payment status = %q, want paid", gotA.PaymentStatus)
	}
}

func TestConfirmPaymentProviderOutageFallsBackToPersistedStatus(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	f.provider.FailVerify(true)

	got, _, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID,
		Outcome:       "unknown",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}
	if got.Status != TransactionPending {
		t.Errorf("status = %q, want last persisted status (pending)", got.Status)
	}
}

func TestProcessRefundRoundTrip(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	if _, _, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID, Outcome: "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	refund, err := f.service.ProcessRefund(context.Background(), RefundRequest{
		AppointmentID: a.ID,
		Reason:        "patient cancelled",
	})
	if err != nil {
		t.Fatalf("ProcessRefund() error: %v", err)
	}

	if refund.TotalAmount != -562.5 {
		t.Errorf("refund total = %v, want -562.5", refund.TotalAmount)
	}
	if refund.ConsultationFee != -500 || refund.BookingFee != -50 || refund.ProcessingFee != -12.5 {
		t.Errorf("refund fees not negated: %+v", refund)
	}
	if refund.RefundOf == nil || *refund.RefundOf != tx.ID {
		t.Error("refund must reference the original transaction")
	}
	if refund.PaymentProvider != tx.PaymentProvider {
		t.Errorf("refund provider = %q, want %q", refund.PaymentProvider, tx.PaymentProvider)
	}

	original, err := f.service.repo.FindByID(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if original.Status != TransactionRefunded {
		t.Errorf("original status = %q, want refunded", original.Status)
	}

	stored, err := f.appointments.FindByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if stored.Status != appointment.StatusCancelled {
		t.Errorf("appointment status = %q, want cancelled", stored.Status)
	}
	if stored.PaymentStatus != appointment.PaymentRefunded {
		t.Errorf("payment status = %q, want refunded", stored.PaymentStatus)
	}

	if n := f.notifier.count(notification.TemplatePaymentRefunded); n != 1 {
		t.Errorf("refund notifications = %d, want 1", n)
	}
}

func TestProcessRefundRequiresCompletedPayment(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	f.initiate(t, a)

	_, err := f.service.ProcessRefund(context.Background(), RefundRequest{AppointmentID: a.ID})
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict for pending charge, got %v", err)
	}
}

func TestProcessRefundTwiceFails(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	if _, _, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID, Outcome: "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}
	if _, err := f.service.ProcessRefund(context.Background(), RefundRequest{AppointmentID: a.ID}); err != nil {
		t.Fatalf("first ProcessRefund() error: %v", err)
	}

	_, err := f.service.ProcessRefund(context.Background(), RefundRequest{AppointmentID: a.ID})
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict for second refund, got %v", err)
	}
	if f.provider.RefundCalls() != 1 {
		t.Errorf("provider refund calls = %d, want 1", f.provider.RefundCalls())
	}
}

func TestProcessRefundUnsupportedProvider(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)

	// Seed a completed charge taken by a provider that is no longer
	// registered, e.g. a decommissioned legacy terminal.
	now := time.Now()
	tx := &Transaction{
		ID:              types.NewID(),
		AppointmentID:   a.ID,
		ConsultationFee: 500,
		BookingFee:      50,
		ProcessingFee:   12.5,
		TotalAmount:     562.5,
		Currency:        "PHP",
		PaymentMethod:   "card",
		PaymentProvider: "legacy-terminal",
		Status:          TransactionCompleted,
		PaymentDate:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.service.repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, err := f.service.ProcessRefund(context.Background(), RefundRequest{AppointmentID: a.ID})
	if !stderrors.Is(err, errors.ErrProviderUnavailable) {
		t.Errorf("expected provider unavailable, got %v", err)
	}

	stored, findErr := f.appointments.FindByID(context.Background(), a.ID)
	if findErr != nil {
		t.Fatalf("FindByID() error: %v", findErr)
	}
	if stored.Status == appointment.StatusCancelled {
		t.Error("appointment must not be cancelled by a rejected refund")
	}
}

func TestFailedRefundLeavesAppointmentUnchanged(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	if _, _, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID, Outcome: "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	f.provider.FailRefund(true)

	_, err := f.service.ProcessRefund(context.Background(), RefundRequest{AppointmentID: a.ID})
	if err == nil {
		t.Fatal("expected refund failure")
	}

	stored, findErr := f.appointments.FindByID(context.Background(), a.ID)
	if findErr != nil {
		t.Fatalf("FindByID() error: %v", findErr)
	}
	if stored.Status == appointment.StatusCancelled {
		t.Error("appointment must not be cancelled when the refund did not settle")
	}
	if stored.PaymentStatus != appointment.PaymentPaid {
		t.Errorf("payment status = %q, want paid", stored.PaymentStatus)
	}

	original, findErr := f.service.repo.FindByID(context.Background(), tx.ID)
	if findErr != nil {
		t.Fatalf("FindByID() error: %v", findErr)
	}
	if original.Status != TransactionCompleted {
		t.Errorf("original status = %q, want completed", original.Status)
	}
}

func TestInitiatePaymentRejectsPaidAppointment(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)
	tx := f.initiate(t, a)

	if _, _, err := f.service.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		TransactionID: tx.ID, Outcome: "success",
	}); err != nil {
		t.Fatalf("ConfirmPayment() error: %v", err)
	}

	_, err := f.service.InitiatePayment(context.Background(), InitiatePaymentRequest{
		AppointmentID: a.ID,
		PaymentMethod: "gcash",
	})
	if !stderrors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict for paid appointment, got %v", err)
	}
}

func TestInitiatePaymentUnsupportedProvider(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.createAppointment(t)

	_, err := f.service.InitiatePayment(context.Background(), InitiatePaymentRequest{
		AppointmentID: a.ID,
		PaymentMethod: "gcash",
		Provider:      "carrier-billing",
	})
	if !stderrors.Is(err, errors.ErrProviderUnavailable) {
		t.Errorf("expected provider unavailable, got %v", err)
	}
}
