package booking

import (
	"context"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/payment"
	"github.com/igabaycare/platform/internal/scheduling"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/events"
	"github.com/igabaycare/platform/internal/shared/metrics"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Notifier delivers booking notifications, best effort.
type Notifier interface {
	Dispatch(ctx context.Context, userID types.ID, userType string, kind notification.TemplateKind, appointmentID types.ID, payload map[string]any) error
}

// BookRequest creates an appointment and optionally starts its payment.
type BookRequest struct {
	ClinicID        types.ID                    `json:"clinic_id"`
	PatientID       types.ID                    `json:"patient_id"`
	AppointmentDate types.Date                  `json:"appointment_date"`
	AppointmentTime types.TimeOfDay             `json:"appointment_time"`
	Type            appointment.AppointmentType `json:"appointment_type"`
	PatientNotes    string                      `json:"patient_notes,omitempty"`
	// PaymentMethod starts payment in the same request when set.
	PaymentMethod string `json:"payment_method,omitempty"`
}

// BookResult is the outcome of a booking request. Transaction is nil when
// no payment was initiated; PaymentError carries a charge submission
// failure that did not prevent the booking itself.
type BookResult struct {
	Appointment  *appointment.Appointment `json:"appointment"`
	Transaction  *payment.Transaction     `json:"transaction,omitempty"`
	PaymentError string                   `json:"payment_error,omitempty"`
}

// Service ties the slot allocator, the appointment ledger, and the
// payment subsystem into the booking and cancellation flows.
type Service struct {
	allocator    *scheduling.Allocator
	appointments appointment.Repository
	payments     *payment.Service
	bus          events.EventBus
	notifier     Notifier
}

// NewService creates a booking service.
func NewService(
	allocator *scheduling.Allocator,
	appointments appointment.Repository,
	payments *payment.Service,
	bus events.EventBus,
	notifier Notifier,
) *Service {
	return &Service{
		allocator:    allocator,
		appointments: appointments,
		payments:     payments,
		bus:          bus,
		notifier:     notifier,
	}
}

// Book validates the requested slot against the allocator, creates the
// appointment in pending state, and initiates payment when a payment
// method was supplied. The allocator check is advisory: the ledger's
// uniqueness constraint is the serialization point, so a concurrent
// booking for the same slot loses with ErrConflict and must re-query
// fresh slots.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	slots, err := s.allocator.GetAvailableSlots(ctx, req.ClinicID, req.AppointmentDate)
	if err != nil {
		return nil, err
	}

	available := false
	for _, slot := range slots {
		if slot.Time == req.AppointmentTime {
			available = slot.Available
			break
		}
	}
	if !available {
		return nil, errors.Conflict("requested slot is not available")
	}

	a, err := appointment.NewAppointment(
		req.ClinicID, req.PatientID,
		req.AppointmentDate, req.AppointmentTime,
		req.Type, req.PatientNotes,
	)
	if err != nil {
		return nil, err
	}

	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, a)

	result := &BookResult{Appointment: a}

	if req.PaymentMethod != "" {
		tx, payErr := s.payments.InitiatePayment(ctx, payment.InitiatePaymentRequest{
			AppointmentID: a.ID,
			PaymentMethod: req.PaymentMethod,
		})
		result.Transaction = tx
		if payErr != nil {
			// The booking stands; the patient retries payment later.
			result.PaymentError = payErr.Error()
		}
	}

	return result, nil
}

// Cancel cancels an appointment. Without a completed payment the cancel
// is immediate. With one, the refund is processed synchronously and the
// caller only sees success after the refund transaction is durably
// recorded; a failed refund leaves the appointment as it was.
func (s *Service) Cancel(ctx context.Context, appointmentID types.ID, reason string) (*BookResult, error) {
	a, err := s.appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	paid, err := s.payments.HasCompletedPayment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if paid {
		refund, err := s.payments.ProcessRefund(ctx, payment.RefundRequest{
			AppointmentID: appointmentID,
			Reason:        reason,
		})
		if err != nil {
			return nil, err
		}

		a, err = s.appointments.FindByID(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		return &BookResult{Appointment: a, Transaction: refund}, nil
	}

	expected := a.Status
	if err := a.Cancel(); err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, a, expected); err != nil {
		return nil, err
	}

	metrics.RecordStatusChange(string(expected), string(a.Status))
	s.publishEvents(ctx, a)
	s.notify(ctx, a.PatientID, "patient", notification.TemplateAppointmentCancelled, a.ID, map[string]any{
		"reason": reason,
	})

	return &BookResult{Appointment: a}, nil
}

func (s *Service) publishEvents(ctx context.Context, a *appointment.Appointment) {
	if s.bus == nil {
		return
	}

	for _, e := range a.DomainEvents() {
		event := events.NewEvent(e.Type, "booking", map[string]any{
			"appointment_id": a.ID,
			"status":         a.Status,
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
