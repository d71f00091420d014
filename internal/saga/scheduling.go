package saga

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// DefaultBookingDuration is used when a booking request carries no duration.
const DefaultBookingDuration = 30 * time.Minute

const (
	schedulingStepCreate     = "create_appointment"
	schedulingStepReserve    = "reserve_slot"
	schedulingStepConfirm    = "confirm_appointment"
	schedulingStepCompensate = "cancel_appointment"
)

// SchedulingStatus names every state a booking passes through. Scheduled,
// Cancelled and Failed are terminal.
type SchedulingStatus string

const (
	SchedulingStatusInitial            SchedulingStatus = "initial"
	SchedulingStatusAppointmentCreated SchedulingStatus = "appointment_created"
	SchedulingStatusSlotScheduled      SchedulingStatus = "time_slot_scheduled"
	SchedulingStatusScheduled          SchedulingStatus = "appointment_scheduled"
	SchedulingStatusCancelled          SchedulingStatus = "appointment_cancelled"
	SchedulingStatusFailed             SchedulingStatus = "failed"
)

// SchedulingState tracks one booking attempt across the appointment and
// schedule aggregates.
type SchedulingState struct {
	AppointmentID string           `json:"appointment_id"`
	DoctorID      string           `json:"doctor_id"`
	PatientID     string           `json:"patient_id"`
	DateTime      time.Time        `json:"date_time"`
	Duration      time.Duration    `json:"duration"`
	Issue         string           `json:"issue"`
	Status        SchedulingStatus `json:"status"`
	Reason        string           `json:"reason,omitempty"`
}

// SchedulingSaga books an appointment: it creates the appointment in pending,
// reserves a slot on the doctor's day, and confirms. If the reservation is
// rejected or keeps failing, the pending appointment is cancelled instead.
type SchedulingSaga struct {
	engine       *Engine[SchedulingState]
	appointments *appointment.Store
	schedules    *schedule.Store
}

func NewSchedulingSaga(appointments *appointment.Store, schedules *schedule.Store, lg *logger.Logger, m *metrics.Metrics) *SchedulingSaga {
	s := &SchedulingSaga{
		appointments: appointments,
		schedules:    schedules,
	}

	failed := func(st SchedulingState) SchedulingState {
		st.Status = SchedulingStatusFailed
		return st
	}
	s.engine = NewEngine("scheduling", Policy{Timeout: 10 * time.Second, MaxAttempts: 1}, failed, lg, m)

	s.engine.Handle(schedulingStepCreate, s.create)
	s.engine.HandleWithPolicy(schedulingStepReserve, Policy{
		Timeout:     40 * time.Second,
		MaxAttempts: 2,
		FailoverTo:  schedulingStepCompensate,
	}, s.reserve)
	s.engine.Handle(schedulingStepConfirm, s.confirm)
	s.engine.Handle(schedulingStepCompensate, s.compensate)
	return s
}

// Start admits a booking under the appointment id. Duration defaults to
// DefaultBookingDuration when zero.
func (s *SchedulingSaga) Start(st SchedulingState) error {
	if st.Duration == 0 {
		st.Duration = DefaultBookingDuration
	}
	st.Status = SchedulingStatusInitial
	return s.engine.Start(st.AppointmentID, st, schedulingStepCreate)
}

func (s *SchedulingSaga) State(id string) (SchedulingState, bool) { return s.engine.State(id) }

func (s *SchedulingSaga) Wait(ctx context.Context, id string) error { return s.engine.Wait(ctx, id) }

// Finished reports whether the booking reached one of its terminal states.
func (s *SchedulingSaga) Finished(id string) bool {
	st, ok := s.engine.State(id)
	if !ok {
		return false
	}
	switch st.Status {
	case SchedulingStatusScheduled, SchedulingStatusCancelled, SchedulingStatusFailed:
		return true
	}
	return false
}

func (s *SchedulingSaga) create(ctx context.Context, st SchedulingState) (SchedulingState, string, error) {
	err := s.appointments.Create(ctx, st.AppointmentID, st.DateTime, st.DoctorID, st.PatientID, st.Issue)
	if err != nil {
		if errors.Is(err, model.ErrAppointmentExists) {
			st.Reason = err.Error()
			st.Status = SchedulingStatusFailed
			return st, "", nil
		}
		return st, "", err
	}
	st.Status = SchedulingStatusAppointmentCreated
	return st, schedulingStepReserve, nil
}

func (s *SchedulingSaga) reserve(ctx context.Context, st SchedulingState) (SchedulingState, string, error) {
	id := model.NewScheduleID(st.DoctorID, st.DateTime)
	err := s.schedules.ScheduleAppointment(ctx, id, model.TimeOfDayFrom(st.DateTime), st.Duration, st.AppointmentID)
	if err != nil {
		if isBookingRejection(err) {
			// The calendar said no. Compensate immediately, retrying
			// would produce the same answer.
			st.Reason = err.Error()
			return st, schedulingStepCompensate, nil
		}
		return st, "", err
	}
	st.Status = SchedulingStatusSlotScheduled
	return st, schedulingStepConfirm, nil
}

func (s *SchedulingSaga) confirm(ctx context.Context, st SchedulingState) (SchedulingState, string, error) {
	if err := s.appointments.Schedule(ctx, st.AppointmentID); err != nil {
		return st, "", err
	}
	st.Status = SchedulingStatusScheduled
	return st, "", nil
}

func (s *SchedulingSaga) compensate(ctx context.Context, st SchedulingState) (SchedulingState, string, error) {
	if err := s.appointments.Cancel(ctx, st.AppointmentID); err != nil {
		return st, "", err
	}
	st.Status = SchedulingStatusCancelled
	if st.Reason == "" {
		st.Reason = "slot reservation failed"
	}
	return st, "", nil
}

// isBookingRejection reports whether the calendar rejected the slot for a
// business reason, as opposed to an infrastructure failure worth retrying.
func isBookingRejection(err error) bool {
	for _, sentinel := range []error{
		model.ErrScheduleNotFound,
		model.ErrScheduleNotActive,
		model.ErrOutsideWorkingHours,
		model.ErrSlotOverlap,
		model.ErrSlotTooShort,
		model.ErrInvalidTimeRange,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
