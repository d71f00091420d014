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
	cancellationStepLoad    = "load_appointment"
	cancellationStepCancel  = "cancel_appointment"
	cancellationStepRelease = "release_slot"
)

// CancellationStatus names every state a cancellation passes through.
// SlotDeleted and Failed are terminal; a saga that found nothing to cancel
// stays at Initial and never reports finished.
type CancellationStatus string

const (
	CancellationStatusInitial     CancellationStatus = "initial"
	CancellationStatusCancelled   CancellationStatus = "appointment_cancelled"
	CancellationStatusSlotDeleted CancellationStatus = "time_slot_deleted"
	CancellationStatusFailed      CancellationStatus = "failed"
)

// CancellationState tracks the cancellation of one appointment. DoctorID and
// DateTime are filled from the appointment itself during the first step.
type CancellationState struct {
	AppointmentID string             `json:"appointment_id"`
	DoctorID      string             `json:"doctor_id"`
	DateTime      time.Time          `json:"date_time"`
	Status        CancellationStatus `json:"status"`
	Reason        string             `json:"reason,omitempty"`
}

// CancellationSaga cancels one appointment: it marks the appointment
// cancelled first, then frees the calendar slot. The order is deliberate; the
// appointment is the source of truth, and a freed slot must never belong to
// an appointment that is still live. An appointment that does not exist or
// cannot be cancelled ends the saga without touching anything.
type CancellationSaga struct {
	engine       *Engine[CancellationState]
	appointments *appointment.Store
	schedules    *schedule.Store
}

func NewCancellationSaga(appointments *appointment.Store, schedules *schedule.Store, lg *logger.Logger, m *metrics.Metrics) *CancellationSaga {
	s := &CancellationSaga{
		appointments: appointments,
		schedules:    schedules,
	}

	failed := func(st CancellationState) CancellationState {
		st.Status = CancellationStatusFailed
		return st
	}
	s.engine = NewEngine("cancellation", Policy{Timeout: 10 * time.Second, MaxAttempts: 1}, failed, lg, m)

	s.engine.Handle(cancellationStepLoad, s.load)
	s.engine.Handle(cancellationStepCancel, s.cancel)
	s.engine.HandleWithPolicy(cancellationStepRelease, Policy{
		Timeout:     40 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  100 * time.Millisecond,
		// One more round of attempts on the same step before giving up.
		FailoverTo: cancellationStepRelease,
	}, s.release)
	return s
}

// Start admits a cancellation under the given saga id. Separate ids let a
// day-wide cancellation run after an earlier single cancellation of the same
// appointment.
func (s *CancellationSaga) Start(id, appointmentID string) error {
	st := CancellationState{AppointmentID: appointmentID, Status: CancellationStatusInitial}
	return s.engine.Start(id, st, cancellationStepLoad)
}

func (s *CancellationSaga) State(id string) (CancellationState, bool) { return s.engine.State(id) }

func (s *CancellationSaga) Wait(ctx context.Context, id string) error { return s.engine.Wait(ctx, id) }

// Finished reports whether the cancellation reached one of its terminal
// states. False for the silent no-op, which never left Initial.
func (s *CancellationSaga) Finished(id string) bool {
	st, ok := s.engine.State(id)
	if !ok {
		return false
	}
	return st.Status == CancellationStatusSlotDeleted || st.Status == CancellationStatusFailed
}

func (s *CancellationSaga) load(ctx context.Context, st CancellationState) (CancellationState, string, error) {
	appt, ok := s.appointments.Get(ctx, st.AppointmentID)
	if !ok || !appt.CanCancel() {
		// Nothing to cancel. End quietly without changing any aggregate.
		return st, "", nil
	}
	st.DoctorID = appt.DoctorID
	st.DateTime = appt.DateTime
	return st, cancellationStepCancel, nil
}

func (s *CancellationSaga) cancel(ctx context.Context, st CancellationState) (CancellationState, string, error) {
	err := s.appointments.Cancel(ctx, st.AppointmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotCancellable) || errors.Is(err, model.ErrAppointmentNotFound) {
			// Lost a race with another writer; the appointment is no
			// longer cancellable and no slot has been touched.
			st.Reason = err.Error()
			return st, "", nil
		}
		return st, "", err
	}
	st.Status = CancellationStatusCancelled
	return st, cancellationStepRelease, nil
}

// release frees the calendar slot. Every failure, including a missing slot or
// day, goes to the step's retry and failover policy.
func (s *CancellationSaga) release(ctx context.Context, st CancellationState) (CancellationState, string, error) {
	id := model.NewScheduleID(st.DoctorID, st.DateTime)
	if err := s.schedules.CancelAppointmentByStartTime(ctx, id, model.TimeOfDayFrom(st.DateTime)); err != nil {
		return st, "", err
	}
	st.Status = CancellationStatusSlotDeleted
	return st, "", nil
}
