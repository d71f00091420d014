package readmodel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// PostgresRepository is a durable projection for deployments where the worker
// or reporting tools need the read model to survive restarts.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (AppointmentRow, bool, error) {
	var row AppointmentRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, patient_id, doctor_id, issue, date, time, priority, status
		 FROM appointment_rows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return AppointmentRow{}, false, nil
	}
	if err != nil {
		return AppointmentRow{}, false, fmt.Errorf("failed to get appointment row: %w", err)
	}
	return row, true, nil
}

func (r *PostgresRepository) Save(ctx context.Context, row AppointmentRow) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointment_rows (id, patient_id, doctor_id, issue, date, time, priority, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   doctor_id = EXCLUDED.doctor_id,
		   date = EXCLUDED.date,
		   time = EXCLUDED.time,
		   priority = EXCLUDED.priority,
		   status = EXCLUDED.status`,
		row.ID, row.PatientID, row.DoctorID, row.Issue, row.Date, row.Time, row.Priority, row.Status)
	if err != nil {
		return fmt.Errorf("failed to save appointment row: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByDoctorAndDate(ctx context.Context, doctorID, date string) ([]AppointmentRow, error) {
	rows := []AppointmentRow{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, patient_id, doctor_id, issue, date, time, priority, status
		 FROM appointment_rows
		 WHERE doctor_id = $1 AND date = $2
		 ORDER BY time, id`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments for doctor-day: %w", err)
	}
	return rows, nil
}

func (r *PostgresRepository) FindByPatient(ctx context.Context, patientID string) ([]AppointmentRow, error) {
	rows := []AppointmentRow{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, patient_id, doctor_id, issue, date, time, priority, status
		 FROM appointment_rows
		 WHERE patient_id = $1
		 ORDER BY date, time, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments for patient: %w", err)
	}
	return rows, nil
}

// FindOverdueScheduled returns scheduled appointments whose start time is
// before the cutoff. Used by the missed-appointment worker.
func (r *PostgresRepository) FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]AppointmentRow, error) {
	rows := []AppointmentRow{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, patient_id, doctor_id, issue, date, time, priority, status
		 FROM appointment_rows
		 WHERE status = $1 AND (date < $2 OR (date = $2 AND time < $3))
		 ORDER BY date, time, id`,
		model.AppointmentStatusScheduled, cutoff.Format(model.DateLayout), model.TimeOfDayFrom(cutoff).String())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue appointments: %w", err)
	}
	return rows, nil
}
