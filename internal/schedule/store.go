package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Store holds one Schedule per (doctor, date). Commands against the same
// schedule id are serialized by a per-entry mutex; different doctor-days never
// contend. Every mutation either installs a fully re-validated new state or
// leaves the prior state untouched.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	metrics *metrics.Metrics
}

type entry struct {
	mu       sync.Mutex
	schedule model.Schedule
}

func NewStore(m *metrics.Metrics) *Store {
	return &Store{
		entries: make(map[string]*entry),
		metrics: m,
	}
}

func (s *Store) entry(id model.ScheduleID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id.String()]
	return e, ok
}

func (s *Store) record(command string, err error) error {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.EntityCommands.WithLabelValues("schedule", command, status).Inc()
	return err
}

// command runs fn under the entry's lock; fn returns the replacement state.
func (s *Store) command(id model.ScheduleID, name string, fn func(model.Schedule) (model.Schedule, error)) error {
	e, ok := s.entry(id)
	if !ok {
		return s.record(name, model.ErrScheduleNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := fn(e.schedule)
	if err != nil {
		return s.record(name, err)
	}
	e.schedule = next
	return s.record(name, nil)
}

// Create initializes the doctor-day with working hours and no slots.
func (s *Store) Create(ctx context.Context, id model.ScheduleID, wh model.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id.String()]; ok {
		return s.record("create", model.ErrScheduleExists)
	}
	s.entries[id.String()] = &entry{schedule: model.NewSchedule(id, wh)}
	return s.record("create", nil)
}

func (s *Store) ScheduleAppointment(ctx context.Context, id model.ScheduleID, start model.TimeOfDay, duration time.Duration, appointmentID string) error {
	return s.command(id, "schedule_appointment", func(sched model.Schedule) (model.Schedule, error) {
		return sched.ScheduleAppointment(start, duration, appointmentID)
	})
}

func (s *Store) CancelAppointmentByStartTime(ctx context.Context, id model.ScheduleID, start model.TimeOfDay) error {
	return s.command(id, "cancel_appointment", func(sched model.Schedule) (model.Schedule, error) {
		return sched.RemoveSlotByStartTime(start)
	})
}

func (s *Store) BlockDay(ctx context.Context, id model.ScheduleID) error {
	return s.command(id, "block_day", func(sched model.Schedule) (model.Schedule, error) {
		return sched.Block(), nil
	})
}

func (s *Store) CancelDay(ctx context.Context, id model.ScheduleID) error {
	return s.command(id, "cancel_day", func(sched model.Schedule) (model.Schedule, error) {
		return sched.Cancel(), nil
	})
}

func (s *Store) ReactivateDay(ctx context.Context, id model.ScheduleID) error {
	return s.command(id, "reactivate_day", func(sched model.Schedule) (model.Schedule, error) {
		return sched.Reactivate(), nil
	})
}

// Get returns a copy of the current state; ok is false if the day was never
// created.
func (s *Store) Get(ctx context.Context, id model.ScheduleID) (model.Schedule, bool) {
	e, ok := s.entry(id)
	if !ok {
		return model.Schedule{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sched := e.schedule
	sched.Slots = append([]model.TimeSlot(nil), e.schedule.Slots...)
	return sched, true
}
