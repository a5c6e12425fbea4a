package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/platform/internal/shared/metrics"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Provider delivers a notification over one channel.
type Provider interface {
	Send(ctx context.Context, notification *Notification) error
	GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error)
}

// ServiceConfig holds service configuration.
type ServiceConfig struct {
	Workers        int
	BufferSize     int
	RetryAttempts  int
	RetryDelay     time.Duration
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       4,
		BufferSize:    1000,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
	}
}

// Service renders booking lifecycle templates and delivers them through
// channel providers with a small worker pool. Delivery is best effort:
// booking operations never fail because a message could not be sent.
type Service struct {
	pushProvider  Provider
	smsProvider   Provider
	emailProvider Provider

	mu      sync.RWMutex
	pending map[string]*Notification
	stats   *Stats

	notifCh chan *Notification
	workers int

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	config ServiceConfig
}

// NewService creates a new notification service.
func NewService(pushProvider, smsProvider, emailProvider Provider, config ServiceConfig) *Service {
	return &Service{
		pushProvider:  pushProvider,
		smsProvider:   smsProvider,
		emailProvider: emailProvider,
		pending:       make(map[string]*Notification),
		stats:         &Stats{},
		notifCh:       make(chan *Notification, config.BufferSize),
		workers:       config.Workers,
		stopCh:        make(chan struct{}),
		config:        config,
	}
}

// Start starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop stops the worker pool and waits for in-flight deliveries.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Dispatch renders the template for kind and queues the message for the
// recipient. It returns an error only when the queue is full; delivery
// failures are retried by the workers and never surfaced to the caller.
func (s *Service) Dispatch(ctx context.Context, userID types.ID, userType string, kind TemplateKind, appointmentID types.ID, payload map[string]any) error {
	tmpl := TemplateFor(kind)

	notif := &Notification{
		ID:            uuid.New().String(),
		Kind:          kind,
		Channel:       tmpl.Channel,
		Priority:      tmpl.Priority,
		Status:        StatusPending,
		RecipientID:   userID,
		RecipientType: userType,
		AppointmentID: appointmentID,
		Subject:       tmpl.Subject,
		Body:          tmpl.Body,
		Data:          payload,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	return s.enqueue(notif)
}

// SendNotification queues a pre-built notification. Used by callers that
// bypass the template catalog, e.g. the reminder scheduler.
func (s *Service) SendNotification(ctx context.Context, notif *Notification) error {
	if notif.ID == "" {
		notif.ID = uuid.New().String()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}
	notif.UpdatedAt = time.Now()
	notif.Status = StatusPending

	return s.enqueue(notif)
}

func (s *Service) enqueue(notif *Notification) error {
	s.mu.Lock()
	s.pending[notif.ID] = notif
	s.mu.Unlock()

	select {
	case s.notifCh <- notif:
		return nil
	default:
		metrics.RecordNotification(string(notif.Kind), "dropped")
		return fmt.Errorf("notification buffer full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case notif := <-s.notifCh:
			s.processNotification(ctx, notif)
		}
	}
}

func (s *Service) processNotification(ctx context.Context, notif *Notification) {
	var err error

	switch notif.Channel {
	case ChannelPush:
		if s.pushProvider != nil {
			err = s.pushProvider.Send(ctx, notif)
		} else {
			err = fmt.Errorf("push provider not configured")
		}
	case ChannelSMS:
		if s.smsProvider != nil {
			err = s.smsProvider.Send(ctx, notif)
		} else {
			err = fmt.Errorf("sms provider not configured")
		}
	case ChannelEmail:
		if s.emailProvider != nil {
			err = s.emailProvider.Send(ctx, notif)
		} else {
			err = fmt.Errorf("email provider not configured")
		}
	case ChannelInApp:
		// In-app notifications are just stored.
		err = nil
	default:
		err = fmt.Errorf("unknown notification channel: %s", notif.Channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		notif.ErrorMessage = err.Error()
		notif.RetryCount++
		now := time.Now()
		notif.LastRetryAt = &now

		if notif.RetryCount >= s.config.RetryAttempts {
			notif.Status = StatusFailed
			s.updateStats(notif, false)
			metrics.RecordNotification(string(notif.Kind), "failed")
		} else {
			// Re-queue for retry after a delay.
			go func() {
				time.Sleep(s.config.RetryDelay)
				select {
				case s.notifCh <- notif:
				default:
				}
			}()
		}
	} else {
		now := time.Now()
		notif.SentAt = &now
		notif.Status = StatusSent
		s.updateStats(notif, true)
		metrics.RecordNotification(string(notif.Kind), "sent")
	}

	notif.UpdatedAt = time.Now()
}

func (s *Service) updateStats(notif *Notification, success bool) {
	if s.stats.ByKind == nil {
		s.stats.ByKind = make(map[TemplateKind]int64)
	}
	if s.stats.ByChannel == nil {
		s.stats.ByChannel = make(map[Channel]int64)
	}

	s.stats.TotalSent++
	s.stats.ByKind[notif.Kind]++
	s.stats.ByChannel[notif.Channel]++

	if success {
		s.stats.TotalDelivered++
	} else {
		s.stats.TotalFailed++
	}

	if s.stats.TotalSent > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalDelivered) / float64(s.stats.TotalSent)
	}
}

// GetNotification returns a queued or delivered notification by ID.
func (s *Service) GetNotification(id string) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.pending[id]
	return n, ok
}

// MarkAsRead marks a notification as read.
func (s *Service) MarkAsRead(notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notif, ok := s.pending[notificationID]
	if !ok {
		return fmt.Errorf("notification not found: %s", notificationID)
	}

	now := time.Now()
	notif.ReadAt = &now
	notif.Status = StatusRead
	notif.UpdatedAt = now

	s.stats.TotalRead++

	return nil
}

// GetStats returns a snapshot of delivery statistics.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.stats
}
