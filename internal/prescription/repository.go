package prescription

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Repository defines the interface for prescription persistence
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	FindByAppointment(ctx context.Context, appointmentID types.ID) (*Prescription, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists a prescription
func (r *PostgresRepository) Create(ctx context.Context, p *Prescription) error {
	query := `
		INSERT INTO booking.prescriptions (
			id, appointment_id, doctor_id, patient_id,
			diagnosis, medications, instructions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.AppointmentID, p.DoctorID, p.PatientID,
		p.Diagnosis, p.Medications, p.Instructions, p.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("prescription already exists for this appointment")
		}
		return errors.Wrap(err, "failed to create prescription")
	}

	return nil
}

// FindByAppointment retrieves the prescription for an appointment
func (r *PostgresRepository) FindByAppointment(ctx context.Context, appointmentID types.ID) (*Prescription, error) {
	query := `
		SELECT id, appointment_id, doctor_id, patient_id,
			diagnosis, medications, instructions, created_at
		FROM booking.prescriptions
		WHERE appointment_id = $1`

	p := &Prescription{}
	err := r.pool.QueryRow(ctx, query, appointmentID).Scan(
		&p.ID, &p.AppointmentID, &p.DoctorID, &p.PatientID,
		&p.Diagnosis, &p.Medications, &p.Instructions, &p.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("prescription", appointmentID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find prescription")
	}

	return p, nil
}

// MemoryRepository is an in-memory Repository for tests and DB-less runs
type MemoryRepository struct {
	mu            sync.RWMutex
	byAppointment map[types.ID]*Prescription
}

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byAppointment: make(map[types.ID]*Prescription)}
}

// Create persists a prescription
func (r *MemoryRepository) Create(_ context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAppointment[p.AppointmentID]; ok {
		return errors.Conflict("prescription already exists for this appointment")
	}

	copied := *p
	r.byAppointment[p.AppointmentID] = &copied

	return nil
}

// FindByAppointment retrieves the prescription for an appointment
func (r *MemoryRepository) FindByAppointment(_ context.Context, appointmentID types.ID) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byAppointment[appointmentID]
	if !ok {
		return nil, errors.NotFound("prescription", appointmentID.String())
	}

	copied := *p
	return &copied, nil
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
