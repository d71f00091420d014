package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Listener receives every appended event, synchronously and in per-appointment
// order. Used to feed the read-model projector and the message broker.
type Listener func(Event)

// Store is the event-sourced appointment aggregate. Commands against the same
// appointment id are serialized by a per-stream mutex; different appointments
// are fully independent.
type Store struct {
	mu        sync.RWMutex
	streams   map[string]*stream
	listeners []Listener
	metrics   *metrics.Metrics
}

type stream struct {
	mu     sync.Mutex
	events []Event
}

func NewStore(m *metrics.Metrics, listeners ...Listener) *Store {
	return &Store{
		streams:   make(map[string]*stream),
		listeners: listeners,
		metrics:   m,
	}
}

func (s *Store) stream(id string, create bool) *stream {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	if ok || !create {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[id]; ok {
		return st
	}
	st = &stream{}
	s.streams[id] = st
	return st
}

// command runs fn under the stream's lock. fn validates the folded state and
// returns the single event to append, or an error; exactly one of the two.
func (s *Store) command(id, name string, fn func(state model.Appointment, exists bool) (Event, error)) error {
	st := s.stream(id, true)
	st.mu.Lock()

	state := fold(st.events)
	ev, err := fn(state, len(st.events) > 0)
	if err != nil {
		st.mu.Unlock()
		s.metrics.EntityCommands.WithLabelValues("appointment", name, "error").Inc()
		return err
	}

	ev.AppointmentID = id
	ev.At = time.Now()
	st.events = append(st.events, ev)
	listeners := s.listeners
	st.mu.Unlock()

	s.metrics.EntityCommands.WithLabelValues("appointment", name, "success").Inc()
	for _, l := range listeners {
		l(ev)
	}
	return nil
}

// Create starts a new appointment in PENDING.
func (s *Store) Create(ctx context.Context, id string, dateTime time.Time, doctorID, patientID, issue string) error {
	return s.command(id, "create", func(_ model.Appointment, exists bool) (Event, error) {
		if exists {
			return Event{}, model.ErrAppointmentExists
		}
		return Event{
			Type:      EventCreated,
			DateTime:  dateTime,
			DoctorID:  doctorID,
			PatientID: patientID,
			Issue:     issue,
		}, nil
	})
}

func (s *Store) Schedule(ctx context.Context, id string) error {
	return s.command(id, "schedule", func(state model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		if state.Status != model.AppointmentStatusPending {
			return Event{}, model.ErrNotSchedulable
		}
		return Event{Type: EventScheduled}, nil
	})
}

func (s *Store) Cancel(ctx context.Context, id string) error {
	return s.command(id, "cancel", func(state model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		if !state.CanCancel() {
			return Event{}, model.ErrNotCancellable
		}
		return Event{Type: EventCancelled}, nil
	})
}

func (s *Store) Complete(ctx context.Context, id string) error {
	return s.command(id, "complete", func(state model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		if state.Status != model.AppointmentStatusScheduled {
			return Event{}, model.ErrNotCompletable
		}
		return Event{Type: EventCompleted}, nil
	})
}

func (s *Store) MarkAsMissed(ctx context.Context, id string) error {
	return s.command(id, "mark_as_missed", func(state model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		if state.Status != model.AppointmentStatusPending && state.Status != model.AppointmentStatusScheduled {
			return Event{}, model.ErrNotMissable
		}
		return Event{Type: EventMissed}, nil
	})
}

// Reschedule replaces the appointment's doctor and time; the status is kept.
func (s *Store) Reschedule(ctx context.Context, id string, newDateTime time.Time, newDoctorID string) error {
	return s.command(id, "reschedule", func(state model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		if !state.CanReschedule() {
			return Event{}, model.ErrNotReschedulable
		}
		return Event{Type: EventRescheduled, DateTime: newDateTime, DoctorID: newDoctorID}, nil
	})
}

func (s *Store) AddNotes(ctx context.Context, id, notes string) error {
	return s.command(id, "add_notes", func(_ model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		return Event{Type: EventNotesAdded, Notes: notes}, nil
	})
}

func (s *Store) AddPrescription(ctx context.Context, id, prescription string) error {
	return s.command(id, "add_prescription", func(_ model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		return Event{Type: EventPrescriptionAdded, Prescription: prescription}, nil
	})
}

func (s *Store) AddPriority(ctx context.Context, id, priority string) error {
	return s.command(id, "add_priority", func(_ model.Appointment, exists bool) (Event, error) {
		if !exists {
			return Event{}, model.ErrAppointmentNotFound
		}
		return Event{Type: EventPriorityAdded, Priority: priority}, nil
	})
}

// Get folds and returns the current state; ok is false if the appointment was
// never created.
func (s *Store) Get(ctx context.Context, id string) (model.Appointment, bool) {
	st := s.stream(id, false)
	if st == nil {
		return model.Appointment{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.events) == 0 {
		return model.Appointment{}, false
	}
	return fold(st.events), true
}
