package readmodel

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// MemoryRepository is the in-process projection used by the API server and in
// tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]AppointmentRow
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]AppointmentRow)}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (AppointmentRow, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	return row, ok, nil
}

func (r *MemoryRepository) Save(ctx context.Context, row AppointmentRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return nil
}

func (r *MemoryRepository) FindByDoctorAndDate(ctx context.Context, doctorID, date string) ([]AppointmentRow, error) {
	return r.filter(func(row AppointmentRow) bool {
		return row.DoctorID == doctorID && row.Date == date
	}), nil
}

func (r *MemoryRepository) FindByPatient(ctx context.Context, patientID string) ([]AppointmentRow, error) {
	return r.filter(func(row AppointmentRow) bool {
		return row.PatientID == patientID
	}), nil
}

// FindOverdueScheduled returns scheduled appointments starting before the cutoff.
func (r *MemoryRepository) FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]AppointmentRow, error) {
	date := cutoff.Format(model.DateLayout)
	tod := model.TimeOfDayFrom(cutoff).String()
	return r.filter(func(row AppointmentRow) bool {
		if row.Status != model.AppointmentStatusScheduled {
			return false
		}
		return row.Date < date || (row.Date == date && row.Time < tod)
	}), nil
}

func (r *MemoryRepository) filter(keep func(AppointmentRow) bool) []AppointmentRow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]AppointmentRow, 0)
	for _, row := range r.rows {
		if keep(row) {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date < matched[j].Date
		}
		if matched[i].Time != matched[j].Time {
			return matched[i].Time < matched[j].Time
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}
