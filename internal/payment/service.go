package payment

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/events"
	"github.com/igabaycare/platform/internal/shared/metrics"
	"github.com/igabaycare/platform/internal/shared/types"
)

// ClinicDirectory resolves the consultation fee for a clinic.
type ClinicDirectory interface {
	GetClinic(ctx context.Context, id types.ID) (*clinic.Clinic, error)
}

// Notifier delivers lifecycle notifications. Delivery is best effort and
// never fails a settlement.
type Notifier interface {
	Dispatch(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) error
}

// Service drives charges and refunds against the appointment ledger.
// Every transaction write that changes an appointment's payment state
// goes through the repository's atomic settle operations.
type Service struct {
	repo         Repository
	appointments appointment.Repository
	clinics      ClinicDirectory
	registry     *Registry
	notifier     Notifier
	bus          events.EventBus
	cfg          config.PaymentConfig
}

// NewService creates a payment service.
func NewService(
	repo Repository,
	appointments appointment.Repository,
	clinics ClinicDirectory,
	registry *Registry,
	notifier Notifier,
	bus events.EventBus,
	cfg config.PaymentConfig,
) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		clinics:      clinics,
		registry:     registry,
		notifier:     notifier,
		bus:          bus,
		cfg:          cfg,
	}
}

// ComputeFees builds the charge breakdown for a consultation fee. The
// processing fee is rounded to centavos.
func (s *Service) ComputeFees(consultationFee float64) FeeBreakdown {
	processing := math.Round(consultationFee*s.cfg.ProcessingFeeRate*100) / 100
	return FeeBreakdown{
		ConsultationFee: consultationFee,
		BookingFee:      s.cfg.BookingFee,
		ProcessingFee:   processing,
		TotalAmount:     consultationFee + s.cfg.BookingFee + processing,
		Currency:        s.cfg.Currency,
	}
}

// InitiatePayment creates a pending transaction for the appointment and
// submits the charge to the provider. A failed submission leaves the
// transaction failed and the appointment payable again.
func (s *Service) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*Transaction, error) {
	a, err := s.appointments.FindByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if a.PaymentStatus == appointment.PaymentPaid {
		return nil, errors.Conflict("appointment is already paid")
	}
	if a.Status.IsTerminal() {
		return nil, errors.Conflict("appointment is no longer payable")
	}
	if req.PaymentMethod == "" {
		return nil, errors.Validation("payment method is required", map[string]string{"payment_method": "required"})
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = s.cfg.DefaultProvider
	}
	provider, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	cl, err := s.clinics.GetClinic(ctx, a.ClinicID)
	if err != nil {
		return nil, err
	}
	fees := s.ComputeFees(cl.ConsultationFee)

	now := time.Now()
	tx := &Transaction{
		ID:              types.NewID(),
		AppointmentID:   a.ID,
		ConsultationFee: fees.ConsultationFee,
		BookingFee:      fees.BookingFee,
		ProcessingFee:   fees.ProcessingFee,
		TotalAmount:     fees.TotalAmount,
		Currency:        fees.Currency,
		PaymentMethod:   req.PaymentMethod,
		PaymentProvider: providerName,
		Status:          TransactionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	callCtx, cancel := s.providerContext(ctx)
	externalID, chargeErr := provider.Charge(callCtx, tx)
	cancel()

	if chargeErr != nil {
		tx.Status = TransactionFailed
		tx.FailureReason = chargeErr.Error()
		tx.UpdatedAt = time.Now()
		a.MarkPaymentFailed()
		if err := s.repo.Settle(ctx, tx, a); err != nil {
			return nil, err
		}
		metrics.RecordPaymentSettled(providerName, "failed")
		return tx, chargeErr
	}

	tx.ExternalPaymentID = externalID
	tx.UpdatedAt = time.Now()
	if err := s.repo.Settle(ctx, tx, a); err != nil {
		return nil, err
	}

	return tx, nil
}

// ConfirmPayment applies a provider outcome to a transaction and the
// appointment's payment status as one atomic unit. Calling it again for an
// already completed transaction is a no-op success: no second appointment
// mutation, no duplicate notifications.
func (s *Service) ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*Transaction, *appointment.Appointment, error) {
	tx, err := s.repo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, nil, err
	}

	a, err := s.appointments.FindByID(ctx, tx.AppointmentID)
	if err != nil {
		return nil, nil, err
	}

	if tx.Status == TransactionCompleted {
		return tx, a, nil
	}
	if tx.Status == TransactionRefunded {
		return nil, nil, errors.Conflict("transaction has been refunded")
	}

	switch req.Outcome {
	case "success":
		return s.settleSuccess(ctx, tx, a, req.ExternalPaymentID)
	case "failed":
		return s.settleFailure(ctx, tx, a, req.FailureReason)
	default:
		return s.reconcile(ctx, tx, a)
	}
}

func (s *Service) settleSuccess(ctx context.Context, tx *Transaction, a *appointment.Appointment, externalID string) (*Transaction, *appointment.Appointment, error) {
	now := time.Now()
	tx.Status = TransactionCompleted
	tx.PaymentDate = &now
	tx.ConfirmationDate = &now
	tx.UpdatedAt = now
	if externalID != "" {
		tx.ExternalPaymentID = externalID
	}

	a.MarkPaid()

	if err := s.repo.Settle(ctx, tx, a); err != nil {
		return nil, nil, err
	}

	metrics.RecordPaymentSettled(tx.PaymentProvider, "completed")
	s.publishEvents(ctx, a)
	s.notify(ctx, a.PatientID, "patient", notification.TemplatePaymentReceipt, a.ID, map[string]any{
		"transaction_id": tx.ID,
		"total_amount":   tx.TotalAmount,
		"currency":       tx.Currency,
	})
	s.notify(ctx, a.PatientID, "patient", notification.TemplateAppointmentReminder, a.ID, map[string]any{
		"appointment_date": a.AppointmentDate,
		"appointment_time": a.AppointmentTime,
	})

	return tx, a, nil
}

func (s *Service) settleFailure(ctx context.Context, tx *Transaction, a *appointment.Appointment, reason string) (*Transaction, *appointment.Appointment, error) {
	if reason == "" {
		reason = "payment declined by provider"
	}

	tx.Status = TransactionFailed
	tx.FailureReason = reason
	tx.UpdatedAt = time.Now()

	// A failed payment never cancels the appointment; it stays payable.
	a.MarkPaymentFailed()

	if err := s.repo.Settle(ctx, tx, a); err != nil {
		return nil, nil, err
	}

	metrics.RecordPaymentSettled(tx.PaymentProvider, "failed")
	s.publishEvents(ctx, a)
	s.notify(ctx, a.PatientID, "patient", notification.TemplatePaymentFailed, a.ID, map[string]any{
		"transaction_id": tx.ID,
		"failure_reason": reason,
	})

	return tx, a, nil
}

// reconcile handles an ambiguous outcome by asking the provider for the
// charge status. When the provider is unreachable the last persisted
// status stands; a provider outage is never surfaced as a hard failure.
func (s *Service) reconcile(ctx context.Context, tx *Transaction, a *appointment.Appointment) (*Transaction, *appointment.Appointment, error) {
	provider, err := s.registry.Get(tx.PaymentProvider)
	if err != nil {
		return tx, a, nil
	}

	callCtx, cancel := s.providerContext(ctx)
	status, err := provider.VerifyCharge(callCtx, tx.ExternalPaymentID)
	cancel()
	if err != nil {
		return tx, a, nil
	}

	switch status {
	case TransactionCompleted:
		return s.settleSuccess(ctx, tx, a, tx.ExternalPaymentID)
	case TransactionFailed:
		return s.settleFailure(ctx, tx, a, "payment declined by provider")
	default:
		return tx, a, nil
	}
}

// ProcessRefund creates a compensating transaction for the appointment's
// completed charge, cancels the appointment, and records all of it
// atomically. The refund goes through the provider that took the charge.
func (s *Service) ProcessRefund(ctx context.Context, req RefundRequest) (*Transaction, error) {
	original, err := s.repo.LatestCharge(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if original.Status != TransactionCompleted {
		return nil, errors.Conflict("no completed payment to refund")
	}

	provider, err := s.registry.Get(original.PaymentProvider)
	if err != nil {
		return nil, err
	}

	a, err := s.appointments.FindByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	expected := a.Status
	if err := a.Cancel(); err != nil {
		return nil, err
	}
	a.MarkRefunded()

	now := time.Now()
	refund := &Transaction{
		ID:              types.NewID(),
		AppointmentID:   original.AppointmentID,
		ConsultationFee: -original.ConsultationFee,
		BookingFee:      -original.BookingFee,
		ProcessingFee:   -original.ProcessingFee,
		TotalAmount:     -original.TotalAmount,
		Currency:        original.Currency,
		PaymentMethod:   original.PaymentMethod,
		PaymentProvider: original.PaymentProvider,
		Status:          TransactionCompleted,
		RefundOf:        &original.ID,
		PaymentDate:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	callCtx, cancel := s.providerContext(ctx)
	err = provider.Refund(callCtx, original, refund)
	cancel()
	if err != nil {
		return nil, err
	}

	if err := s.repo.SettleRefund(ctx, original, refund, a, expected); err != nil {
		return nil, err
	}

	metrics.RecordRefund(original.PaymentProvider)
	s.publishEvents(ctx, a)
	s.notify(ctx, a.PatientID, "patient", notification.TemplatePaymentRefunded, a.ID, map[string]any{
		"transaction_id": refund.ID,
		"total_amount":   refund.TotalAmount,
		"reason":         req.Reason,
	})

	return refund, nil
}

// HasCompletedPayment reports whether the appointment has a completed,
// unrefunded charge. The booking cancellation path uses it to decide
// between an immediate cancel and the refund path.
func (s *Service) HasCompletedPayment(ctx context.Context, appointmentID types.ID) (bool, error) {
	tx, err := s.repo.LatestCharge(ctx, appointmentID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return tx.Status == TransactionCompleted, nil
}

// ListTransactions returns all transactions for an appointment.
func (s *Service) ListTransactions(ctx context.Context, appointmentID types.ID) ([]Transaction, error) {
	return s.repo.FindByAppointment(ctx, appointmentID)
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.cfg.ProviderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) publishEvents(ctx context.Context, a *appointment.Appointment) {
	if s.bus == nil {
		return
	}

	for _, e := range a.DomainEvents() {
		event := events.NewEvent(e.Type, "payment", map[string]any{
			"appointment_id": a.ID,
			"payment_status": a.PaymentStatus,
			"data":           e.Data,
		}).WithActor(a.PatientID, "patient", a.ClinicID)

		s.bus.Publish(ctx, event)
	}
}

func (s *Service) notify(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Dispatch(ctx, userID, userType, kind, appointmentID, payload)
}
