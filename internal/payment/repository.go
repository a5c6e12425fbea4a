package payment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appointment "github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Repository persists transactions. Settle operations that also touch the
// appointment row are applied atomically so a completed payment with no
// matching appointment update is never observable.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error

	FindByID(ctx context.Context, id types.ID) (*Transaction, error)

	// FindByAppointment returns all transactions for an appointment,
	// newest first, refunds included.
	FindByAppointment(ctx context.Context, appointmentID types.ID) ([]Transaction, error)

	// LatestCharge returns the most recent non-refund transaction for
	// the appointment.
	LatestCharge(ctx context.Context, appointmentID types.ID) (*Transaction, error)

	// Settle writes the transaction outcome and the appointment's
	// payment status in one atomic unit.
	Settle(ctx context.Context, tx *Transaction, a *appointment.Appointment) error

	// SettleRefund durably records the refund transaction, moves the
	// original to refunded, and applies the appointment's cancellation
	// in one atomic unit. The appointment write is a compare-and-swap
	// on expected, matching the ledger's transition semantics.
	SettleRefund(ctx context.Context, original, refund *Transaction, a *appointment.Appointment, expected appointment.Status) error
}

const transactionColumns = `id, appointment_id, consultation_fee, booking_fee, processing_fee,
	total_amount, currency, payment_method, payment_provider, external_payment_id,
	status, failure_reason, refund_of, payment_date, confirmation_date,
	created_at, updated_at`

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL-backed transaction repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists a new transaction.
func (r *PostgresRepository) Create(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO billing.transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		tx.ID, tx.AppointmentID, tx.ConsultationFee, tx.BookingFee, tx.ProcessingFee,
		tx.TotalAmount, tx.Currency, tx.PaymentMethod, tx.PaymentProvider, tx.ExternalPaymentID,
		tx.Status, tx.FailureReason, tx.RefundOf, tx.PaymentDate, tx.ConfirmationDate,
		tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// FindByID loads a transaction by ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM billing.transactions WHERE id = $1`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("transaction", id.String())
		}
		return nil, errors.Wrap(err, "failed to load transaction")
	}
	return tx, nil
}

// FindByAppointment returns all transactions for an appointment, newest first.
func (r *PostgresRepository) FindByAppointment(ctx context.Context, appointmentID types.ID) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM billing.transactions WHERE appointment_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan transaction")
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// LatestCharge returns the most recent non-refund transaction for an appointment.
func (r *PostgresRepository) LatestCharge(ctx context.Context, appointmentID types.ID) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM billing.transactions
		WHERE appointment_id = $1 AND refund_of IS NULL
		ORDER BY created_at DESC LIMIT 1`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, appointmentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("transaction", appointmentID.String())
		}
		return nil, errors.Wrap(err, "failed to load charge")
	}
	return tx, nil
}

// Settle writes the transaction outcome and the appointment's payment
// status in a single database transaction.
func (r *PostgresRepository) Settle(ctx context.Context, tx *Transaction, a *appointment.Appointment) error {
	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin settlement")
	}
	defer dbtx.Rollback(ctx)

	result, err := dbtx.Exec(ctx, `
		UPDATE billing.transactions
		SET status = $2, external_payment_id = $3, failure_reason = $4,
			payment_date = $5, confirmation_date = $6, updated_at = $7
		WHERE id = $1`,
		tx.ID, tx.Status, tx.ExternalPaymentID, tx.FailureReason,
		tx.PaymentDate, tx.ConfirmationDate, tx.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("transaction", tx.ID.String())
	}

	result, err = dbtx.Exec(ctx, `
		UPDATE booking.appointments SET payment_status = $2, updated_at = $3
		WHERE id = $1`,
		a.ID, a.PaymentStatus, a.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update appointment payment status")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", a.ID.String())
	}

	return dbtx.Commit(ctx)
}

// SettleRefund records the refund, flips the original to refunded, and
// cancels the appointment in a single database transaction.
func (r *PostgresRepository) SettleRefund(ctx context.Context, original, refund *Transaction, a *appointment.Appointment, expected appointment.Status) error {
	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin refund settlement")
	}
	defer dbtx.Rollback(ctx)

	_, err = dbtx.Exec(ctx, `
		INSERT INTO billing.transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		refund.ID, refund.AppointmentID, refund.ConsultationFee, refund.BookingFee, refund.ProcessingFee,
		refund.TotalAmount, refund.Currency, refund.PaymentMethod, refund.PaymentProvider, refund.ExternalPaymentID,
		refund.Status, refund.FailureReason, refund.RefundOf, refund.PaymentDate, refund.ConfirmationDate,
		refund.CreatedAt, refund.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to record refund")
	}

	result, err := dbtx.Exec(ctx, `
		UPDATE billing.transactions SET status = $2, updated_at = $3 WHERE id = $1`,
		original.ID, TransactionRefunded, refund.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update original transaction")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("transaction", original.ID.String())
	}

	result, err = dbtx.Exec(ctx, `
		UPDATE booking.appointments
		SET status = $3, payment_status = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $1 AND status = $2`,
		a.ID, expected, a.Status, a.PaymentStatus, a.CancelledAt, a.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to cancel appointment")
	}
	if result.RowsAffected() == 0 {
		return errors.InvalidTransition(string(expected), string(a.Status))
	}

	return dbtx.Commit(ctx)
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var tx Transaction
	err := row.Scan(
		&tx.ID, &tx.AppointmentID, &tx.ConsultationFee, &tx.BookingFee, &tx.ProcessingFee,
		&tx.TotalAmount, &tx.Currency, &tx.PaymentMethod, &tx.PaymentProvider, &tx.ExternalPaymentID,
		&tx.Status, &tx.FailureReason, &tx.RefundOf, &tx.PaymentDate, &tx.ConfirmationDate,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

var _ Repository = (*PostgresRepository)(nil)
