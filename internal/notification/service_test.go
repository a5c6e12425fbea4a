package notification

import (
	"context"
	"testing"
	"time"

	"github.com/igabaycare/platform/internal/shared/types"
)

func newTestService(t *testing.T, push, sms, email Provider) *Service {
	t.Helper()

	cfg := ServiceConfig{
		Workers:       2,
		BufferSize:    16,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	}
	svc := NewService(push, sms, email, cfg)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Stop(); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	})
	return svc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchDeliversViaTemplateChannel(t *testing.T) {
	push := NewMockProvider("mock_push")
	email := NewMockProvider("mock_email")
	svc := newTestService(t, push, NewMockProvider("mock_sms"), email)

	patientID := types.NewID()
	appointmentID := types.NewID()

	err := svc.Dispatch(context.Background(), patientID, "patient", TemplateAppointmentConfirmed, appointmentID, map[string]any{
		"appointment_date": "2024-01-15",
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	waitFor(t, func() bool { return push.SentCountFor(TemplateAppointmentConfirmed) == 1 })

	sent := push.SentNotifications()
	if len(sent) != 1 {
		t.Fatalf("expected 1 push notification, got %d", len(sent))
	}
	n := sent[0]
	if n.RecipientID != patientID || n.RecipientType != "patient" {
		t.Errorf("unexpected recipient %s (%s)", n.RecipientID, n.RecipientType)
	}
	if n.AppointmentID != appointmentID {
		t.Errorf("unexpected appointment %s", n.AppointmentID)
	}
	if n.Subject == "" || n.Body == "" {
		t.Error("template was not rendered")
	}
	if len(email.SentNotifications()) != 0 {
		t.Error("confirmation should not go to the email channel")
	}
}

func TestPaymentReceiptGoesToEmail(t *testing.T) {
	push := NewMockProvider("mock_push")
	email := NewMockProvider("mock_email")
	svc := newTestService(t, push, NewMockProvider("mock_sms"), email)

	err := svc.Dispatch(context.Background(), types.NewID(), "patient", TemplatePaymentReceipt, types.NewID(), nil)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	waitFor(t, func() bool { return email.SentCountFor(TemplatePaymentReceipt) == 1 })

	if len(push.SentNotifications()) != 0 {
		t.Error("receipt should not go to the push channel")
	}
}

func TestDeliveryRetriesThenFails(t *testing.T) {
	push := NewMockProvider("mock_push")
	push.SetFailOnSend(true)
	svc := newTestService(t, push, NewMockProvider("mock_sms"), NewMockProvider("mock_email"))

	err := svc.Dispatch(context.Background(), types.NewID(), "doctor", TemplateDoctorAssigned, types.NewID(), nil)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	waitFor(t, func() bool { return svc.GetStats().TotalFailed == 1 })

	stats := svc.GetStats()
	if stats.TotalDelivered != 0 {
		t.Errorf("expected 0 delivered, got %d", stats.TotalDelivered)
	}
	if stats.ByKind[TemplateDoctorAssigned] != 1 {
		t.Errorf("expected failure recorded under kind, got %d", stats.ByKind[TemplateDoctorAssigned])
	}
}

func TestUnknownKindFallsBackToInApp(t *testing.T) {
	tmpl := TemplateFor(TemplateKind("does_not_exist"))
	if tmpl.Channel != ChannelInApp {
		t.Errorf("expected in_app fallback, got %s", tmpl.Channel)
	}
}

func TestMarkAsRead(t *testing.T) {
	push := NewMockProvider("mock_push")
	svc := newTestService(t, push, NewMockProvider("mock_sms"), NewMockProvider("mock_email"))

	if err := svc.Dispatch(context.Background(), types.NewID(), "patient", TemplateVisitCompleted, types.NewID(), nil); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	waitFor(t, func() bool { return push.SentCountFor(TemplateVisitCompleted) == 1 })

	sent := push.SentNotifications()
	if err := svc.MarkAsRead(sent[0].ID); err != nil {
		t.Fatalf("MarkAsRead() error: %v", err)
	}

	n, ok := svc.GetNotification(sent[0].ID)
	if !ok {
		t.Fatal("notification not found after read")
	}
	if n.Status != StatusRead || n.ReadAt == nil {
		t.Errorf("expected read status, got %s", n.Status)
	}
}
