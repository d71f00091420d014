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

const (
	reschedulingStepLoad       = "load_appointment"
	reschedulingStepReserveNew = "reserve_new_slot"
	reschedulingStepMove       = "move_appointment"
	reschedulingStepReleaseOld = "release_old_slot"
	reschedulingStepRollback   = "rollback_new_slot"
)

// ReschedulingStatus names every state a reschedule passes through.
// OldSlotRemoved and Failed are terminal.
type ReschedulingStatus string

const (
	ReschedulingStatusInitial        ReschedulingStatus = "initial"
	ReschedulingStatusNewSlotCreated ReschedulingStatus = "new_time_slot_created"
	ReschedulingStatusMoved          ReschedulingStatus = "appointment_rescheduled"
	ReschedulingStatusOldSlotRemoved ReschedulingStatus = "old_time_slot_removed"
	ReschedulingStatusFailed         ReschedulingStatus = "failed"
)

// ReschedulingState tracks a move of one appointment to a new doctor or time.
// The old coordinates are filled from the appointment during the first step.
type ReschedulingState struct {
	AppointmentID string             `json:"appointment_id"`
	NewDoctorID   string             `json:"new_doctor_id"`
	NewDateTime   time.Time          `json:"new_date_time"`
	Duration      time.Duration      `json:"duration"`
	OldDoctorID   string             `json:"old_doctor_id,omitempty"`
	OldDateTime   time.Time          `json:"old_date_time,omitempty"`
	Status        ReschedulingStatus `json:"status"`
	Reason        string             `json:"reason,omitempty"`
}

// ReschedulingSaga moves an appointment: reserve the new slot first, then
// repoint the appointment, then release the old slot. If the appointment
// cannot be repointed the freshly reserved slot is rolled back, leaving both
// calendars as they were. A release that keeps failing fails the saga rather
// than reporting a clean move over a still-occupied old slot.
type ReschedulingSaga struct {
	engine       *Engine[ReschedulingState]
	appointments *appointment.Store
	schedules    *schedule.Store
}

func NewReschedulingSaga(appointments *appointment.Store, schedules *schedule.Store, lg *logger.Logger, m *metrics.Metrics) *ReschedulingSaga {
	s := &ReschedulingSaga{
		appointments: appointments,
		schedules:    schedules,
	}

	failed := func(st ReschedulingState) ReschedulingState {
		st.Status = ReschedulingStatusFailed
		return st
	}
	s.engine = NewEngine("rescheduling", Policy{Timeout: 10 * time.Second, MaxAttempts: 1}, failed, lg, m)

	s.engine.Handle(reschedulingStepLoad, s.load)
	s.engine.HandleWithPolicy(reschedulingStepReserveNew, Policy{
		Timeout:     40 * time.Second,
		MaxAttempts: 2,
	}, s.reserveNew)
	s.engine.Handle(reschedulingStepMove, s.move)
	s.engine.HandleWithPolicy(reschedulingStepReleaseOld, Policy{
		Timeout:     40 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  100 * time.Millisecond,
		// One more round of attempts on the same step before giving up.
		FailoverTo: reschedulingStepReleaseOld,
	}, s.releaseOld)
	s.engine.Handle(reschedulingStepRollback, s.rollback)
	return s
}

// Start admits a reschedule under the given saga id. Duration defaults to
// DefaultBookingDuration when zero.
func (s *ReschedulingSaga) Start(id string, st ReschedulingState) error {
	if st.Duration == 0 {
		st.Duration = DefaultBookingDuration
	}
	st.Status = ReschedulingStatusInitial
	return s.engine.Start(id, st, reschedulingStepLoad)
}

func (s *ReschedulingSaga) State(id string) (ReschedulingState, bool) { return s.engine.State(id) }

func (s *ReschedulingSaga) Wait(ctx context.Context, id string) error { return s.engine.Wait(ctx, id) }

// Finished reports whether the reschedule reached one of its terminal states.
func (s *ReschedulingSaga) Finished(id string) bool {
	st, ok := s.engine.State(id)
	if !ok {
		return false
	}
	return st.Status == ReschedulingStatusOldSlotRemoved || st.Status == ReschedulingStatusFailed
}

func (s *ReschedulingSaga) load(ctx context.Context, st ReschedulingState) (ReschedulingState, string, error) {
	appt, ok := s.appointments.Get(ctx, st.AppointmentID)
	if !ok {
		st.Status = ReschedulingStatusFailed
		st.Reason = model.ErrAppointmentNotFound.Error()
		return st, "", nil
	}
	if !appt.CanReschedule() {
		st.Status = ReschedulingStatusFailed
		st.Reason = model.ErrNotReschedulable.Error()
		return st, "", nil
	}
	st.OldDoctorID = appt.DoctorID
	st.OldDateTime = appt.DateTime
	if st.OldDoctorID == st.NewDoctorID && st.OldDateTime.Equal(st.NewDateTime) {
		// Already where it should be. Nothing to reserve or release.
		st.Status = ReschedulingStatusOldSlotRemoved
		return st, "", nil
	}
	return st, reschedulingStepReserveNew, nil
}

func (s *ReschedulingSaga) reserveNew(ctx context.Context, st ReschedulingState) (ReschedulingState, string, error) {
	id := model.NewScheduleID(st.NewDoctorID, st.NewDateTime)
	err := s.schedules.ScheduleAppointment(ctx, id, model.TimeOfDayFrom(st.NewDateTime), st.Duration, st.AppointmentID)
	if err != nil {
		if isBookingRejection(err) {
			// Nothing reserved, nothing moved. Fail in place.
			st.Status = ReschedulingStatusFailed
			st.Reason = err.Error()
			return st, "", nil
		}
		return st, "", err
	}
	st.Status = ReschedulingStatusNewSlotCreated
	return st, reschedulingStepMove, nil
}

func (s *ReschedulingSaga) move(ctx context.Context, st ReschedulingState) (ReschedulingState, string, error) {
	err := s.appointments.Reschedule(ctx, st.AppointmentID, st.NewDateTime, st.NewDoctorID)
	if err != nil {
		st.Reason = err.Error()
		return st, reschedulingStepRollback, nil
	}
	st.Status = ReschedulingStatusMoved
	return st, reschedulingStepReleaseOld, nil
}

// releaseOld frees the previous slot. Every failure, including a missing slot
// or day, goes to the step's retry and failover policy.
func (s *ReschedulingSaga) releaseOld(ctx context.Context, st ReschedulingState) (ReschedulingState, string, error) {
	id := model.NewScheduleID(st.OldDoctorID, st.OldDateTime)
	if err := s.schedules.CancelAppointmentByStartTime(ctx, id, model.TimeOfDayFrom(st.OldDateTime)); err != nil {
		return st, "", err
	}
	st.Status = ReschedulingStatusOldSlotRemoved
	return st, "", nil
}

// rollback is best effort; a slot that is already gone is as good as released.
func (s *ReschedulingSaga) rollback(ctx context.Context, st ReschedulingState) (ReschedulingState, string, error) {
	id := model.NewScheduleID(st.NewDoctorID, st.NewDateTime)
	err := s.schedules.CancelAppointmentByStartTime(ctx, id, model.TimeOfDayFrom(st.NewDateTime))
	if err != nil && !errors.Is(err, model.ErrSlotNotFound) && !errors.Is(err, model.ErrScheduleNotFound) {
		return st, "", err
	}
	st.Status = ReschedulingStatusFailed
	return st, "", nil
}
