package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igabaycare/platform/internal/appointment/domain"
	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/metrics"
	"github.com/igabaycare/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL.
// Slot exclusivity rests on the partial unique index over
// (clinic_id, appointment_date, appointment_time) for active statuses.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `
	id, clinic_id, patient_id, doctor_id,
	appointment_date, appointment_time, duration_minutes, appointment_type,
	status, payment_status,
	patient_notes, clinic_notes, doctor_notes, decline_reason,
	created_at, assigned_at, confirmed_at, declined_at,
	started_at, completed_at, cancelled_at, updated_at`

// Create persists a new appointment
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Appointment) error {
	query := `
		INSERT INTO booking.appointments (
			id, clinic_id, patient_id, doctor_id,
			appointment_date, appointment_time, duration_minutes, appointment_type,
			status, payment_status,
			patient_notes, clinic_notes, doctor_notes, decline_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.ClinicID, a.PatientID, a.DoctorID,
		a.AppointmentDate, a.AppointmentTime, a.DurationMinutes, a.Type,
		a.Status, a.PaymentStatus,
		a.PatientNotes, a.ClinicNotes, a.DoctorNotes, a.DeclineReason,
		a.CreatedAt, a.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			metrics.RecordBookingConflict()
			return errors.Conflict("slot is already booked for this clinic and time")
		}
		return errors.Wrap(err, "failed to create appointment")
	}

	metrics.RecordAppointmentCreated(string(a.Type), a.ClinicID.String())

	return nil
}

// FindByID retrieves an appointment by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM booking.appointments WHERE id = $1`, appointmentColumns)

	a := &domain.Appointment{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ClinicID, &a.PatientID, &a.DoctorID,
		&a.AppointmentDate, &a.AppointmentTime, &a.DurationMinutes, &a.Type,
		&a.Status, &a.PaymentStatus,
		&a.PatientNotes, &a.ClinicNotes, &a.DoctorNotes, &a.DeclineReason,
		&a.CreatedAt, &a.AssignedAt, &a.ConfirmedAt, &a.DeclinedAt,
		&a.StartedAt, &a.CompletedAt, &a.CancelledAt, &a.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find appointment")
	}

	return a, nil
}

// UpdateStatus persists a lifecycle transition guarded by a
// compare-and-swap on the previous status, so concurrent transition
// requests against the same appointment serialize to one winner.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, a *domain.Appointment, expected domain.Status) error {
	query := `
		UPDATE booking.appointments SET
			status = $3, doctor_id = $4,
			doctor_notes = $5, decline_reason = $6, clinic_notes = $7,
			assigned_at = $8, confirmed_at = $9, declined_at = $10,
			started_at = $11, completed_at = $12, cancelled_at = $13,
			updated_at = $14
		WHERE id = $1 AND status = $2`

	result, err := r.pool.Exec(ctx, query,
		a.ID, expected,
		a.Status, a.DoctorID,
		a.DoctorNotes, a.DeclineReason, a.ClinicNotes,
		a.AssignedAt, a.ConfirmedAt, a.DeclinedAt,
		a.StartedAt, a.CompletedAt, a.CancelledAt,
		a.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update appointment status")
	}

	if result.RowsAffected() == 0 {
		// Lost the race or the row is gone: report which.
		current, findErr := r.FindByID(ctx, a.ID)
		if findErr != nil {
			return findErr
		}
		return errors.InvalidTransition(string(current.Status), string(a.Status))
	}

	metrics.RecordStatusChange(string(expected), string(a.Status))

	return nil
}

// UpdatePaymentStatus persists a payment-status change
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, a *domain.Appointment) error {
	query := `
		UPDATE booking.appointments SET payment_status = $2, updated_at = $3
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, a.ID, a.PaymentStatus, a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update payment status")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", a.ID.String())
	}

	return nil
}

// BookedTimes returns slot times occupied by active appointments
func (r *PostgresRepository) BookedTimes(ctx context.Context, clinicID types.ID, date types.Date) ([]types.TimeOfDay, error) {
	query := `
		SELECT appointment_time
		FROM booking.appointments
		WHERE clinic_id = $1 AND appointment_date = $2
		  AND status NOT IN ('cancelled', 'declined')
		ORDER BY appointment_time`

	rows, err := r.pool.Query(ctx, query, clinicID, date)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query booked times")
	}
	defer rows.Close()

	var times []types.TimeOfDay
	for rows.Next() {
		var t types.TimeOfDay
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "failed to scan booked time")
		}
		times = append(times, t)
	}

	return times, nil
}

// List lists appointments with filters
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Appointment, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ClinicID != nil {
		conditions = append(conditions, fmt.Sprintf("clinic_id = $%d", argNum))
		args = append(args, *filter.ClinicID)
		argNum++
	}

	if filter.PatientID != nil {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argNum))
		args = append(args, *filter.PatientID)
		argNum++
	}

	if filter.DoctorID != nil {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", argNum))
		args = append(args, *filter.DoctorID)
		argNum++
	}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("appointment_date = $%d", argNum))
		args = append(args, *filter.Date)
		argNum++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM booking.appointments %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count appointments")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM booking.appointments
		%s
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT $%d OFFSET $%d`, appointmentColumns, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list appointments")
	}
	defer rows.Close()

	var appointments []domain.Appointment
	for rows.Next() {
		var a domain.Appointment
		err := rows.Scan(
			&a.ID, &a.ClinicID, &a.PatientID, &a.DoctorID,
			&a.AppointmentDate, &a.AppointmentTime, &a.DurationMinutes, &a.Type,
			&a.Status, &a.PaymentStatus,
			&a.PatientNotes, &a.ClinicNotes, &a.DoctorNotes, &a.DeclineReason,
			&a.CreatedAt, &a.AssignedAt, &a.ConfirmedAt, &a.DeclinedAt,
			&a.StartedAt, &a.CompletedAt, &a.CancelledAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan appointment")
		}
		appointments = append(appointments, a)
	}

	return appointments, total, nil
}

// Verify interface implementation
var _ domain.Repository = (*PostgresRepository)(nil)
