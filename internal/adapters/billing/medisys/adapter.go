// Package medisys mirrors settled payment transactions into the clinic
// group's legacy Medisys billing database so its end-of-day reconciliation
// keeps working while the platform owns the ledger of record.
package medisys

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/igabaycare/platform/internal/payment"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/events"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Adapter writes a copy of every settled transaction into the legacy
// billing tables. Mirroring is best effort: the platform's own ledger is
// authoritative, and the mirror retries from the event stream on restart.
type Adapter struct {
	db           *sql.DB
	cfg          config.LegacyBillingConfig
	transactions payment.Repository
	bus          events.EventBus

	mirrorCh chan types.ID

	running bool
	mu      sync.RWMutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

const mirrorTable = "dbo.PlatformTransactions"

// New creates a Medisys billing mirror.
func New(cfg config.LegacyBillingConfig, transactions payment.Repository, bus events.EventBus) *Adapter {
	return &Adapter{
		cfg:          cfg,
		transactions: transactions,
		bus:          bus,
		mirrorCh:     make(chan types.ID, 256),
	}
}

// Start opens the MSSQL connection, subscribes to settlement events, and
// starts the mirror worker.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host,
		a.cfg.Port,
		a.cfg.Database,
		a.cfg.User,
		a.cfg.Password,
	)
	if a.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open legacy billing database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping legacy billing database: %w", err)
	}

	a.db = db
	a.running = true

	workerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.worker(workerCtx)

	if a.bus != nil {
		if err := a.bus.Subscribe(workerCtx, "appointment.payment", "medisys-billing", a.handleEvent); err != nil {
			log.Printf("medisys: event subscription failed, mirror will only receive direct submissions: %v", err)
		}
	}

	return nil
}

// Stop stops the worker and closes the connection.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks legacy database connectivity.
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}
	return a.db.PingContext(ctx)
}

// IsConnected reports whether the adapter holds a live connection.
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

// MirrorAppointment queues the appointment's transactions for mirroring.
func (a *Adapter) MirrorAppointment(appointmentID types.ID) {
	select {
	case a.mirrorCh <- appointmentID:
	default:
		log.Printf("medisys: mirror queue full, dropping appointment %s", appointmentID)
	}
}

// handleEvent queues mirroring for payment settlement events.
func (a *Adapter) handleEvent(ctx context.Context, event events.Event) error {
	if !strings.HasPrefix(event.Type, "appointment.payment") {
		return nil
	}

	data, ok := event.Data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["appointment_id"].(string)
	if !ok {
		return nil
	}
	id, err := types.ParseID(raw)
	if err != nil {
		return nil
	}

	a.MirrorAppointment(id)
	return nil
}

func (a *Adapter) worker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case appointmentID := <-a.mirrorCh:
			if err := a.mirrorTransactions(ctx, appointmentID); err != nil {
				log.Printf("medisys: mirror failed for appointment %s: %v", appointmentID, err)
			}
		}
	}
}

// mirrorTransactions upserts every transaction of the appointment into
// the legacy table. The upsert keys on the platform transaction ID so
// replayed events stay idempotent.
func (a *Adapter) mirrorTransactions(ctx context.Context, appointmentID types.ID) error {
	txs, err := a.transactions.FindByAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}

	for i := range txs {
		if err := a.upsert(ctx, &txs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) upsert(ctx context.Context, tx *payment.Transaction) error {
	query := fmt.Sprintf(`
		MERGE %s AS target
		USING (SELECT @id AS TransactionID) AS source
		ON target.TransactionID = source.TransactionID
		WHEN MATCHED THEN
			UPDATE SET Status = @status, TotalAmount = @total, UpdatedAt = @updated
		WHEN NOT MATCHED THEN
			INSERT (TransactionID, AppointmentID, ConsultationFee, BookingFee,
				ProcessingFee, TotalAmount, Currency, PaymentMethod,
				PaymentProvider, ExternalPaymentID, Status, RefundOf,
				CreatedAt, UpdatedAt)
			VALUES (@id, @appointment, @consultation, @booking,
				@processing, @total, @currency, @method,
				@provider, @external, @status, @refundof,
				@created, @updated);
	`, mirrorTable)

	var refundOf any
	if tx.RefundOf != nil {
		refundOf = tx.RefundOf.String()
	}

	_, err := a.db.ExecContext(ctx, query,
		sql.Named("id", tx.ID.String()),
		sql.Named("appointment", tx.AppointmentID.String()),
		sql.Named("consultation", tx.ConsultationFee),
		sql.Named("booking", tx.BookingFee),
		sql.Named("processing", tx.ProcessingFee),
		sql.Named("total", tx.TotalAmount),
		sql.Named("currency", tx.Currency),
		sql.Named("method", tx.PaymentMethod),
		sql.Named("provider", tx.PaymentProvider),
		sql.Named("external", tx.ExternalPaymentID),
		sql.Named("status", string(tx.Status)),
		sql.Named("refundof", refundOf),
		sql.Named("created", tx.CreatedAt),
		sql.Named("updated", tx.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}
