package notification

import (
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// Priority orders notifications for delivery.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is the delivery status of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// TemplateKind identifies one of the booking lifecycle message templates.
type TemplateKind string

const (
	TemplateDoctorAssigned       TemplateKind = "doctor_assigned"
	TemplateAppointmentConfirmed TemplateKind = "appointment_confirmed"
	TemplateAppointmentDeclined  TemplateKind = "appointment_declined"
	TemplateVisitCompleted       TemplateKind = "visit_completed"
	TemplatePaymentReceipt       TemplateKind = "payment_receipt"
	TemplatePaymentFailed        TemplateKind = "payment_failed"
	TemplatePaymentRefunded      TemplateKind = "payment_refunded"
	TemplateAppointmentCancelled TemplateKind = "appointment_cancelled"
	TemplateAppointmentReminder  TemplateKind = "appointment_reminder"
)

// Template pairs a subject line with a body for a template kind.
type Template struct {
	Kind     TemplateKind
	Channel  Channel
	Priority Priority
	Subject  string
	Body     string
}

// templates is the built-in catalog. Bodies reference payload keys with
// %s-style anchors resolved by renderBody.
var templates = map[TemplateKind]Template{
	TemplateDoctorAssigned: {
		Kind:     TemplateDoctorAssigned,
		Channel:  ChannelPush,
		Priority: PriorityHigh,
		Subject:  "New appointment assigned to you",
		Body:     "An appointment has been assigned to you. Please confirm or decline it from your schedule.",
	},
	TemplateAppointmentConfirmed: {
		Kind:     TemplateAppointmentConfirmed,
		Channel:  ChannelPush,
		Priority: PriorityNormal,
		Subject:  "Your appointment is confirmed",
		Body:     "Your doctor has confirmed your appointment. See you at the clinic.",
	},
	TemplateAppointmentDeclined: {
		Kind:     TemplateAppointmentDeclined,
		Channel:  ChannelPush,
		Priority: PriorityHigh,
		Subject:  "Your appointment was declined",
		Body:     "The assigned doctor declined your appointment. The clinic will reassign or contact you shortly.",
	},
	TemplateVisitCompleted: {
		Kind:     TemplateVisitCompleted,
		Channel:  ChannelPush,
		Priority: PriorityNormal,
		Subject:  "Visit completed",
		Body:     "Your visit is complete. Your prescription is available in the app. Please rate your experience.",
	},
	TemplatePaymentReceipt: {
		Kind:     TemplatePaymentReceipt,
		Channel:  ChannelEmail,
		Priority: PriorityNormal,
		Subject:  "Payment received",
		Body:     "We received your payment for the upcoming appointment. Thank you.",
	},
	TemplatePaymentFailed: {
		Kind:     TemplatePaymentFailed,
		Channel:  ChannelPush,
		Priority: PriorityHigh,
		Subject:  "Payment failed",
		Body:     "Your payment could not be processed. Please retry from the appointment page.",
	},
	TemplatePaymentRefunded: {
		Kind:     TemplatePaymentRefunded,
		Channel:  ChannelEmail,
		Priority: PriorityNormal,
		Subject:  "Payment refunded",
		Body:     "Your payment has been refunded. Depending on your provider it may take a few days to appear.",
	},
	TemplateAppointmentCancelled: {
		Kind:     TemplateAppointmentCancelled,
		Channel:  ChannelPush,
		Priority: PriorityNormal,
		Subject:  "Appointment cancelled",
		Body:     "Your appointment has been cancelled.",
	},
	TemplateAppointmentReminder: {
		Kind:     TemplateAppointmentReminder,
		Channel:  ChannelSMS,
		Priority: PriorityNormal,
		Subject:  "Appointment reminder",
		Body:     "Reminder: you have an appointment tomorrow. Reply to the clinic if you need to reschedule.",
	},
}

// TemplateFor returns the catalog entry for a kind. Unknown kinds get a
// generic in-app fallback rather than an error.
func TemplateFor(kind TemplateKind) Template {
	if t, ok := templates[kind]; ok {
		return t
	}
	return Template{
		Kind:     kind,
		Channel:  ChannelInApp,
		Priority: PriorityNormal,
		Subject:  string(kind),
		Body:     string(kind),
	}
}

// Notification is a single message queued for delivery.
type Notification struct {
	ID       string   `json:"id"`
	Kind     TemplateKind `json:"kind"`
	Channel  Channel  `json:"channel"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	RecipientID   types.ID `json:"recipient_id"`
	RecipientType string   `json:"recipient_type"` // patient, doctor, clinic
	AppointmentID types.ID `json:"appointment_id"`

	// Contact details resolved from the recipient record.
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`

	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryReceipt is a provider's delivery confirmation.
type DeliveryReceipt struct {
	NotificationID string    `json:"notification_id"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider"`
	ProviderID     string    `json:"provider_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Stats aggregates delivery counters for the service.
type Stats struct {
	TotalSent      int64                  `json:"total_sent"`
	TotalDelivered int64                  `json:"total_delivered"`
	TotalFailed    int64                  `json:"total_failed"`
	TotalRead      int64                  `json:"total_read"`
	ByKind         map[TemplateKind]int64 `json:"by_kind"`
	ByChannel      map[Channel]int64      `json:"by_channel"`
	DeliveryRate   float64                `json:"delivery_rate"`
}
