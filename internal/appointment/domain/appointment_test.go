package domain

import (
	stderrors "errors"
	"testing"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

func newTestAppointment(t *testing.T) *Appointment {
	t.Helper()

	a, err := NewAppointment(
		types.NewID(), types.NewID(),
		"2024-01-15", "09:30",
		TypeConsultation,
		"recurring headaches",
	)
	if err != nil {
		t.Fatalf("NewAppointment failed: %v", err)
	}
	return a
}

func TestNewAppointment(t *testing.T) {
	a := newTestAppointment(t)

	if a.ID.IsZero() {
		t.Error("Appointment ID should not be zero")
	}
	if a.Status != StatusPending {
		t.Errorf("Expected status pending, got '%s'", a.Status)
	}
	if a.PaymentStatus != PaymentUnpaid {
		t.Errorf("Expected payment status unpaid, got '%s'", a.PaymentStatus)
	}
	if a.DoctorID != nil {
		t.Error("New appointment should have no doctor")
	}
	if a.DurationMinutes != 30 {
		t.Errorf("Expected 30-minute duration, got %d", a.DurationMinutes)
	}

	events := a.DomainEvents()
	if len(events) != 1 || events[0].Type != "appointment.created" {
		t.Errorf("Expected a single appointment.created event, got %v", events)
	}
}

func TestNewAppointmentValidation(t *testing.T) {
	tests := []struct {
		name      string
		clinicID  types.ID
		patientID types.ID
		date      types.Date
		slot      types.TimeOfDay
		aptType   AppointmentType
	}{
		{"missing clinic", types.ID(""), types.NewID(), "2024-01-15", "09:00", TypeConsultation},
		{"missing patient", types.NewID(), types.ID(""), "2024-01-15", "09:00", TypeConsultation},
		{"missing date", types.NewID(), types.NewID(), "", "09:00", TypeConsultation},
		{"missing time", types.NewID(), types.NewID(), "2024-01-15", "", TypeConsultation},
		{"missing type", types.NewID(), types.NewID(), "2024-01-15", "09:00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAppointment(tt.clinicID, tt.patientID, tt.date, tt.slot, tt.aptType, "")
			if !stderrors.Is(err, errors.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestAssignConfirmStartComplete(t *testing.T) {
	a := newTestAppointment(t)
	doctorID := types.NewID()

	if err := a.AssignDoctor(doctorID); err != nil {
		t.Fatalf("AssignDoctor failed: %v", err)
	}
	if a.Status != StatusAssigned {
		t.Errorf("Expected status assigned, got '%s'", a.Status)
	}
	if a.DoctorID == nil || *a.DoctorID != doctorID {
		t.Error("Doctor ID should be set on assignment")
	}
	if a.AssignedAt == nil {
		t.Error("assigned_at should be stamped")
	}

	if err := a.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if a.Status != StatusConfirmed || a.ConfirmedAt == nil {
		t.Error("Confirm should set status and confirmed_at")
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if a.Status != StatusInProgress || a.StartedAt == nil {
		t.Error("Start should set status and started_at")
	}

	if err := a.Complete("prescribed rest and hydration"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if a.Status != StatusCompleted || a.CompletedAt == nil {
		t.Error("Complete should set status and completed_at")
	}
	if a.DoctorNotes != "prescribed rest and hydration" {
		t.Errorf("Doctor notes not recorded: '%s'", a.DoctorNotes)
	}

	// Timestamp ordering follows the transition order.
	if a.CompletedAt.Before(*a.StartedAt) || a.StartedAt.Before(*a.ConfirmedAt) || a.ConfirmedAt.Before(*a.AssignedAt) {
		t.Error("Transition timestamps should be monotonically non-decreasing")
	}
}

func TestDeclineIsTerminal(t *testing.T) {
	a := newTestAppointment(t)
	doctorID := types.NewID()

	if err := a.AssignDoctor(doctorID); err != nil {
		t.Fatalf("AssignDoctor failed: %v", err)
	}

	if err := a.Decline("fully booked"); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}

	if a.Status != StatusDeclined {
		t.Errorf("Expected status declined, got '%s'", a.Status)
	}
	if a.DeclineReason != "fully booked" {
		t.Errorf("Expected decline reason recorded, got '%s'", a.DeclineReason)
	}
	if a.DoctorID == nil || *a.DoctorID != doctorID {
		t.Error("Doctor ID should be retained after decline for the audit trail")
	}

	if err := a.Confirm(); !stderrors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Confirm after decline should fail with ErrInvalidTransition, got %v", err)
	}
	if a.Status != StatusDeclined {
		t.Error("Failed transition must leave status unchanged")
	}
}

func TestDeclineRequiresReason(t *testing.T) {
	a := newTestAppointment(t)
	if err := a.AssignDoctor(types.NewID()); err != nil {
		t.Fatalf("AssignDoctor failed: %v", err)
	}

	err := a.Decline("")
	if !stderrors.Is(err, errors.ErrValidation) {
		t.Errorf("Decline without reason should be a validation error, got %v", err)
	}
	if a.Status != StatusAssigned {
		t.Error("Rejected decline must not change status")
	}
}

func TestInvalidTransitions(t *testing.T) {
	doctorID := types.NewID()

	// Build an appointment in each state, try every illegal transition.
	makeIn := func(t *testing.T, status Status) *Appointment {
		t.Helper()
		a := newTestAppointment(t)
		switch status {
		case StatusPending:
		case StatusAssigned:
			a.AssignDoctor(doctorID)
		case StatusConfirmed:
			a.AssignDoctor(doctorID)
			a.Confirm()
		case StatusDeclined:
			a.AssignDoctor(doctorID)
			a.Decline("unavailable")
		case StatusInProgress:
			a.AssignDoctor(doctorID)
			a.Confirm()
			a.Start()
		case StatusCompleted:
			a.AssignDoctor(doctorID)
			a.Confirm()
			a.Start()
			a.Complete("done")
		case StatusCancelled:
			a.Cancel()
		}
		return a
	}

	tests := []struct {
		name       string
		from       Status
		transition func(*Appointment) error
	}{
		{"confirm pending", StatusPending, func(a *Appointment) error { return a.Confirm() }},
		{"start pending", StatusPending, func(a *Appointment) error { return a.Start() }},
		{"complete pending", StatusPending, func(a *Appointment) error { return a.Complete("n") }},
		{"decline pending", StatusPending, func(a *Appointment) error { return a.Decline("r") }},
		{"assign assigned", StatusAssigned, func(a *Appointment) error { return a.AssignDoctor(types.NewID()) }},
		{"start assigned", StatusAssigned, func(a *Appointment) error { return a.Start() }},
		{"assign confirmed", StatusConfirmed, func(a *Appointment) error { return a.AssignDoctor(types.NewID()) }},
		{"decline confirmed", StatusConfirmed, func(a *Appointment) error { return a.Decline("r") }},
		{"complete confirmed", StatusConfirmed, func(a *Appointment) error { return a.Complete("n") }},
		{"cancel in_progress", StatusInProgress, func(a *Appointment) error { return a.Cancel() }},
		{"confirm in_progress", StatusInProgress, func(a *Appointment) error { return a.Confirm() }},
		{"cancel declined", StatusDeclined, func(a *Appointment) error { return a.Cancel() }},
		{"assign declined", StatusDeclined, func(a *Appointment) error { return a.AssignDoctor(types.NewID()) }},
		{"cancel completed", StatusCompleted, func(a *Appointment) error { return a.Cancel() }},
		{"start completed", StatusCompleted, func(a *Appointment) error { return a.Start() }},
		{"cancel cancelled", StatusCancelled, func(a *Appointment) error { return a.Cancel() }},
		{"assign cancelled", StatusCancelled, func(a *Appointment) error { return a.AssignDoctor(types.NewID()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeIn(t, tt.from)
			before := a.Status

			err := tt.transition(a)
			if !stderrors.Is(err, errors.ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition from %s, got %v", tt.from, err)
			}
			if a.Status != before {
				t.Errorf("Failed transition changed status from %s to %s", before, a.Status)
			}
		})
	}
}

func TestCancelFromBookableStates(t *testing.T) {
	doctorID := types.NewID()

	tests := []struct {
		name  string
		setup func(*Appointment)
	}{
		{"pending", func(a *Appointment) {}},
		{"assigned", func(a *Appointment) { a.AssignDoctor(doctorID) }},
		{"confirmed", func(a *Appointment) { a.AssignDoctor(doctorID); a.Confirm() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAppointment(t)
			tt.setup(a)

			if err := a.Cancel(); err != nil {
				t.Fatalf("Cancel from %s failed: %v", tt.name, err)
			}
			if a.Status != StatusCancelled || a.CancelledAt == nil {
				t.Error("Cancel should set status and cancelled_at")
			}
		})
	}
}

func TestPaymentStatusOrthogonalToLifecycle(t *testing.T) {
	a := newTestAppointment(t)

	a.MarkPaymentFailed()
	if a.Status != StatusPending {
		t.Error("Failed payment must not alter lifecycle status")
	}
	if a.PaymentStatus != PaymentFailed {
		t.Errorf("Expected payment status failed, got '%s'", a.PaymentStatus)
	}

	a.MarkPaid()
	if a.PaymentStatus != PaymentPaid {
		t.Errorf("Expected payment status paid, got '%s'", a.PaymentStatus)
	}
	if a.Status != StatusPending {
		t.Error("Paid must not alter lifecycle status")
	}
}

func TestMarkPaidIdempotent(t *testing.T) {
	a := newTestAppointment(t)
	a.DomainEvents() // drain creation event

	a.MarkPaid()
	first := a.DomainEvents()
	if len(first) != 1 {
		t.Fatalf("Expected one payment event, got %d", len(first))
	}

	a.MarkPaid()
	second := a.DomainEvents()
	if len(second) != 0 {
		t.Errorf("Second MarkPaid should raise no events, got %d", len(second))
	}
}

func TestDomainEventsDrained(t *testing.T) {
	a := newTestAppointment(t)
	a.AssignDoctor(types.NewID())

	events := a.DomainEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	if len(a.DomainEvents()) != 0 {
		t.Error("Events should be cleared after draining")
	}
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		active   bool
	}{
		{StatusPending, false, true},
		{StatusAssigned, false, true},
		{StatusConfirmed, false, true},
		{StatusDeclined, true, false},
		{StatusInProgress, false, true},
		{StatusCompleted, true, true},
		{StatusCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if tt.status.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal(%s): expected %v", tt.status, tt.terminal)
			}
			if tt.status.IsActive() != tt.active {
				t.Errorf("IsActive(%s): expected %v", tt.status, tt.active)
			}
		})
	}
}
