package payment

import (
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

// TransactionStatus is the settlement state of a single transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Transaction is one charge or refund against an appointment. A refund is
// a second transaction with every fee field negated and RefundOf pointing
// at the original; the original moves to refunded.
type Transaction struct {
	ID            types.ID `json:"id"`
	AppointmentID types.ID `json:"appointment_id"`

	ConsultationFee float64 `json:"consultation_fee"`
	BookingFee      float64 `json:"booking_fee"`
	ProcessingFee   float64 `json:"processing_fee"`
	// TotalAmount is signed: positive for charges, negative for refunds.
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`

	PaymentMethod     string            `json:"payment_method"`
	PaymentProvider   string            `json:"payment_provider"`
	ExternalPaymentID string            `json:"external_payment_id,omitempty"`
	Status            TransactionStatus `json:"status"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	RefundOf          *types.ID         `json:"refund_of,omitempty"`

	PaymentDate      *time.Time `json:"payment_date,omitempty"`
	ConfirmationDate *time.Time `json:"confirmation_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InitiatePaymentRequest starts a charge for an appointment.
type InitiatePaymentRequest struct {
	AppointmentID types.ID `json:"appointment_id"`
	PaymentMethod string   `json:"payment_method"`
	// Provider overrides the configured default when set.
	Provider string `json:"provider,omitempty"`
}

// ConfirmPaymentRequest reports a provider outcome for a transaction.
// Outcome is "success" or "failed"; webhooks and the client callback both
// land here.
type ConfirmPaymentRequest struct {
	TransactionID types.ID `json:"transaction_id"`
	Outcome       string   `json:"outcome"`
	// ExternalPaymentID is the provider's reference for the charge.
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

// RefundRequest asks for a compensating refund of an appointment's
// completed charge.
type RefundRequest struct {
	AppointmentID types.ID `json:"appointment_id"`
	Reason        string   `json:"reason"`
}

// FeeBreakdown is the computed charge for one appointment.
type FeeBreakdown struct {
	ConsultationFee float64 `json:"consultation_fee"`
	BookingFee      float64 `json:"booking_fee"`
	ProcessingFee   float64 `json:"processing_fee"`
	TotalAmount     float64 `json:"total_amount"`
	Currency        string  `json:"currency"`
}
