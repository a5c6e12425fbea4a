package notification

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is an in-memory provider used in tests and local runs.
// One instance serves a single channel.
type MockProvider struct {
	name       string
	mu         sync.RWMutex
	sent       map[string]*Notification
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockProvider creates a mock provider with the given channel name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		sent: make(map[string]*Notification),
	}
}

// Send records the notification in memory.
func (p *MockProvider) Send(ctx context.Context, notification *Notification) error {
	if p.sendDelay > 0 {
		time.Sleep(p.sendDelay)
	}

	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent[notification.ID] = notification

	return nil
}

// GetDeliveryStatus returns a delivered receipt for anything Send accepted.
func (p *MockProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.sent[notificationID]; ok {
		return &DeliveryReceipt{
			NotificationID: notificationID,
			Status:         StatusDelivered,
			Timestamp:      time.Now(),
			Provider:       p.name,
		}, nil
	}

	return nil, fmt.Errorf("notification not found")
}

// SetFailOnSend makes subsequent Send calls fail.
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// SetSendDelay adds an artificial delay to Send.
func (p *MockProvider) SetSendDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendDelay = delay
}

// SentNotifications returns everything Send accepted.
func (p *MockProvider) SentNotifications() []*Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Notification, 0, len(p.sent))
	for _, n := range p.sent {
		result = append(result, n)
	}
	return result
}

// SentCountFor counts accepted notifications for one template kind.
// Used by tests asserting no duplicate sends.
func (p *MockProvider) SentCountFor(kind TemplateKind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, n := range p.sent {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

// ConsoleProvider prints notifications to stdout, for development.
type ConsoleProvider struct {
	prefix string
}

// NewConsoleProvider creates a console logging provider.
func NewConsoleProvider(prefix string) *ConsoleProvider {
	return &ConsoleProvider{prefix: prefix}
}

// Send logs the notification to the console.
func (p *ConsoleProvider) Send(ctx context.Context, notification *Notification) error {
	fmt.Printf("\n[%s NOTIFICATION]\n", p.prefix)
	fmt.Printf("  ID:          %s\n", notification.ID)
	fmt.Printf("  Kind:        %s\n", notification.Kind)
	fmt.Printf("  Recipient:   %s (%s)\n", notification.RecipientID, notification.RecipientType)
	fmt.Printf("  Appointment: %s\n", notification.AppointmentID)
	fmt.Printf("  Subject:     %s\n", notification.Subject)
	fmt.Printf("  Body:\n%s\n", notification.Body)
	fmt.Println()
	return nil
}

// GetDeliveryStatus always reports delivered.
func (p *ConsoleProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	return &DeliveryReceipt{
		NotificationID: notificationID,
		Status:         StatusDelivered,
		Timestamp:      time.Now(),
		Provider:       "console",
	}, nil
}

var (
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*ConsoleProvider)(nil)
)
