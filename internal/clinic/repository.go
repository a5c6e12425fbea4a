package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Repository provides database operations for clinics and doctors
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new clinic repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Clinic Operations ---

// CreateClinic creates a new clinic with its operating hours
func (r *Repository) CreateClinic(ctx context.Context, clinic *Clinic) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO clinics.clinics (
			id, name, street, city, postal_code, country,
			phone, email, consultation_fee, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.Exec(ctx, query,
		clinic.ID, clinic.Name,
		clinic.Address.Street, clinic.Address.City, clinic.Address.PostalCode, clinic.Address.Country,
		clinic.Phone, clinic.Email, clinic.ConsultationFee, clinic.Active,
		clinic.CreatedAt, clinic.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("clinic already exists")
		}
		return errors.Wrap(err, "failed to create clinic")
	}

	for _, h := range clinic.OperatingHours {
		if err := r.insertHours(ctx, tx, clinic.ID, h); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// GetClinic retrieves a clinic by ID, including operating hours
func (r *Repository) GetClinic(ctx context.Context, id types.ID) (*Clinic, error) {
	query := `
		SELECT id, name, street, city, postal_code, country,
			phone, email, consultation_fee, active,
			created_at, updated_at
		FROM clinics.clinics
		WHERE id = $1`

	clinic := &Clinic{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&clinic.ID, &clinic.Name,
		&clinic.Address.Street, &clinic.Address.City, &clinic.Address.PostalCode, &clinic.Address.Country,
		&clinic.Phone, &clinic.Email, &clinic.ConsultationFee, &clinic.Active,
		&clinic.CreatedAt, &clinic.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("clinic", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get clinic")
	}

	hours, err := r.GetOperatingHours(ctx, id)
	if err != nil {
		return nil, err
	}
	clinic.OperatingHours = hours

	return clinic, nil
}

// GetOperatingHours retrieves the weekly operating hours for a clinic
func (r *Repository) GetOperatingHours(ctx context.Context, clinicID types.ID) ([]OperatingHours, error) {
	query := `
		SELECT clinic_id, weekday, opens_at, closes_at
		FROM clinics.operating_hours
		WHERE clinic_id = $1
		ORDER BY weekday`

	rows, err := r.pool.Query(ctx, query, clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get operating hours")
	}
	defer rows.Close()

	var hours []OperatingHours
	for rows.Next() {
		var h OperatingHours
		var weekday int
		if err := rows.Scan(&h.ClinicID, &weekday, &h.OpensAt, &h.ClosesAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan operating hours")
		}
		h.Weekday = time.Weekday(weekday)
		hours = append(hours, h)
	}

	return hours, nil
}

// UpdateClinic updates a clinic and replaces its operating hours
func (r *Repository) UpdateClinic(ctx context.Context, clinic *Clinic) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE clinics.clinics SET
			name = $2, street = $3, city = $4, postal_code = $5, country = $6,
			phone = $7, email = $8, consultation_fee = $9, active = $10,
			updated_at = $11
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		clinic.ID, clinic.Name,
		clinic.Address.Street, clinic.Address.City, clinic.Address.PostalCode, clinic.Address.Country,
		clinic.Phone, clinic.Email, clinic.ConsultationFee, clinic.Active,
		clinic.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update clinic")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("clinic", clinic.ID.String())
	}

	if _, err := tx.Exec(ctx, `DELETE FROM clinics.operating_hours WHERE clinic_id = $1`, clinic.ID); err != nil {
		return errors.Wrap(err, "failed to clear operating hours")
	}

	for _, h := range clinic.OperatingHours {
		if err := r.insertHours(ctx, tx, clinic.ID, h); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

func (r *Repository) insertHours(ctx context.Context, tx pgx.Tx, clinicID types.ID, h OperatingHours) error {
	query := `
		INSERT INTO clinics.operating_hours (clinic_id, weekday, opens_at, closes_at)
		VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, clinicID, int(h.Weekday), h.OpensAt, h.ClosesAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert operating hours")
	}

	return nil
}

// ListClinics lists clinics with optional filters
func (r *Repository) ListClinics(ctx context.Context, filter ListClinicsFilter) ([]Clinic, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", argNum))
		args = append(args, *filter.Active)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR city ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM clinics.clinics %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count clinics")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, name, street, city, postal_code, country,
			phone, email, consultation_fee, active,
			created_at, updated_at
		FROM clinics.clinics
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list clinics")
	}
	defer rows.Close()

	var clinics []Clinic
	for rows.Next() {
		var clinic Clinic
		err := rows.Scan(
			&clinic.ID, &clinic.Name,
			&clinic.Address.Street, &clinic.Address.City, &clinic.Address.PostalCode, &clinic.Address.Country,
			&clinic.Phone, &clinic.Email, &clinic.ConsultationFee, &clinic.Active,
			&clinic.CreatedAt, &clinic.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan clinic")
		}
		clinics = append(clinics, clinic)
	}

	return clinics, total, nil
}

// --- Doctor Operations ---

// CreateDoctor adds a doctor to a clinic
func (r *Repository) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	query := `
		INSERT INTO clinics.doctors (id, clinic_id, full_name, specialization, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		doctor.ID, doctor.ClinicID, doctor.FullName, doctor.Specialization, doctor.Active, doctor.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return errors.NotFound("clinic", doctor.ClinicID.String())
		}
		return errors.Wrap(err, "failed to create doctor")
	}

	return nil
}

// GetDoctor retrieves a doctor by ID
func (r *Repository) GetDoctor(ctx context.Context, id types.ID) (*Doctor, error) {
	query := `
		SELECT id, clinic_id, full_name, specialization, active, created_at
		FROM clinics.doctors
		WHERE id = $1`

	doctor := &Doctor{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&doctor.ID, &doctor.ClinicID, &doctor.FullName, &doctor.Specialization, &doctor.Active, &doctor.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("doctor", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get doctor")
	}

	return doctor, nil
}

// ListDoctors lists the doctors of a clinic
func (r *Repository) ListDoctors(ctx context.Context, clinicID types.ID) ([]Doctor, error) {
	query := `
		SELECT id, clinic_id, full_name, specialization, active, created_at
		FROM clinics.doctors
		WHERE clinic_id = $1
		ORDER BY full_name`

	rows, err := r.pool.Query(ctx, query, clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list doctors")
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var doctor Doctor
		err := rows.Scan(
			&doctor.ID, &doctor.ClinicID, &doctor.FullName, &doctor.Specialization, &doctor.Active, &doctor.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan doctor")
		}
		doctors = append(doctors, doctor)
	}

	return doctors, nil
}
