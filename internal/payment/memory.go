package payment

import (
	"context"
	"sort"
	"sync"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
// It delegates the appointment side of settle operations to the given
// appointment repository and rolls its own writes back when that side
// fails, mimicking the atomicity of the PostgreSQL implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[types.ID]*Transaction
	appointments appointment.Repository
}

// NewMemoryRepository creates an empty in-memory transaction repository.
func NewMemoryRepository(appointments appointment.Repository) *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[types.ID]*Transaction),
		appointments: appointments,
	}
}

// Create stores a new transaction.
func (r *MemoryRepository) Create(ctx context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transactions[tx.ID]; ok {
		return errors.Conflict("transaction already exists")
	}

	stored := *tx
	r.transactions[tx.ID] = &stored
	return nil
}

// FindByID loads a transaction by ID.
func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.transactions[id]
	if !ok {
		return nil, errors.NotFound("transaction", id.String())
	}

	tx := *stored
	return &tx, nil
}

// FindByAppointment returns all transactions for an appointment, newest first.
func (r *MemoryRepository) FindByAppointment(ctx context.Context, appointmentID types.ID) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var txs []Transaction
	for _, stored := range r.transactions {
		if stored.AppointmentID == appointmentID {
			txs = append(txs, *stored)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

// LatestCharge returns the most recent non-refund transaction.
func (r *MemoryRepository) LatestCharge(ctx context.Context, appointmentID types.ID) (*Transaction, error) {
	txs, err := r.FindByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	for i := range txs {
		if txs[i].RefundOf == nil {
			tx := txs[i]
			return &tx, nil
		}
	}
	return nil, errors.NotFound("transaction", appointmentID.String())
}

// Settle writes the transaction outcome and the appointment payment status.
func (r *MemoryRepository) Settle(ctx context.Context, tx *Transaction, a *appointment.Appointment) error {
	r.mu.Lock()
	prev, ok := r.transactions[tx.ID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("transaction", tx.ID.String())
	}
	prevCopy := *prev
	stored := *tx
	r.transactions[tx.ID] = &stored
	r.mu.Unlock()

	if err := r.appointments.UpdatePaymentStatus(ctx, a); err != nil {
		r.mu.Lock()
		r.transactions[tx.ID] = &prevCopy
		r.mu.Unlock()
		return err
	}
	return nil
}

// SettleRefund records the refund, flips the original, and cancels the
// appointment with a compare-and-swap on expected.
func (r *MemoryRepository) SettleRefund(ctx context.Context, original, refund *Transaction, a *appointment.Appointment, expected appointment.Status) error {
	r.mu.Lock()
	prev, ok := r.transactions[original.ID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("transaction", original.ID.String())
	}
	prevCopy := *prev

	refundCopy := *refund
	r.transactions[refund.ID] = &refundCopy

	updated := prevCopy
	updated.Status = TransactionRefunded
	updated.UpdatedAt = refund.UpdatedAt
	r.transactions[original.ID] = &updated
	r.mu.Unlock()

	if err := r.appointments.UpdateStatus(ctx, a, expected); err != nil {
		r.mu.Lock()
		delete(r.transactions, refund.ID)
		r.transactions[original.ID] = &prevCopy
		r.mu.Unlock()
		return err
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
