// Package readmodel maintains the appointment-rows projection: a flat,
// query-friendly view of the appointment aggregate's event stream. It is
// eventually consistent with the aggregate and never written to directly.
package readmodel

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// AppointmentRow is one projected appointment summary.
type AppointmentRow struct {
	ID        string                  `db:"id" json:"id"`
	PatientID string                  `db:"patient_id" json:"patient_id"`
	DoctorID  string                  `db:"doctor_id" json:"doctor_id"`
	Issue     string                  `db:"issue" json:"issue"`
	Date      string                  `db:"date" json:"date"`
	Time      string                  `db:"time" json:"time"`
	Priority  string                  `db:"priority" json:"priority,omitempty"`
	Status    model.AppointmentStatus `db:"status" json:"status"`
}

// Reader is the query side consumed by sagas, handlers and the worker.
type Reader interface {
	FindByDoctorAndDate(ctx context.Context, doctorID, date string) ([]AppointmentRow, error)
	FindByPatient(ctx context.Context, patientID string) ([]AppointmentRow, error)
}

// Repository is a Reader the projector can also write to.
type Repository interface {
	Reader
	Get(ctx context.Context, id string) (AppointmentRow, bool, error)
	Save(ctx context.Context, row AppointmentRow) error
	FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]AppointmentRow, error)
}
