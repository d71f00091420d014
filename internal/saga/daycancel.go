package saga

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/notification"
	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/internal/triage"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	dayCancelStepBlock    = "block_day"
	dayCancelStepAssess   = "assess_urgency"
	dayCancelStepCancel   = "cancel_appointments"
	dayCancelStepFinalize = "finalize_day"
)

// assessConcurrency bounds the urgency fan-out per day cancellation.
const assessConcurrency = 8

// DayCancellationStatus names every state a day cancellation passes through.
// Cancelled and Failed are terminal.
type DayCancellationStatus string

const (
	DayCancellationStatusInitial   DayCancellationStatus = "initial"
	DayCancellationStatusBlocked   DayCancellationStatus = "schedule_blocked"
	DayCancellationStatusCancelled DayCancellationStatus = "schedule_cancelled"
	DayCancellationStatusFailed    DayCancellationStatus = "failed"
)

// DayCancellationState tracks the cancellation of a whole doctor-day.
type DayCancellationState struct {
	DoctorID  string                `json:"doctor_id"`
	Date      string                `json:"date"`
	Cancelled []string              `json:"cancelled,omitempty"`
	Status    DayCancellationStatus `json:"status"`
	Reason    string                `json:"reason,omitempty"`
}

// DayCancellationSaga cancels every appointment of one doctor-day. It first
// blocks the day against new bookings, asks the triage assessor for an
// urgency label on every unlabelled appointment in parallel, then cancels the
// appointments one at a time, most urgent first, notifying each patient.
// Appointments whose assessment failed rank last but are still cancelled.
type DayCancellationSaga struct {
	engine        *Engine[DayCancellationState]
	appointments  *appointment.Store
	schedules     *schedule.Store
	rows          readmodel.Reader
	assessor      triage.Assessor
	cancellations *CancellationSaga
	notifier      notification.Notifier
	logger        *logger.Logger
}

func NewDayCancellationSaga(
	appointments *appointment.Store,
	schedules *schedule.Store,
	rows readmodel.Reader,
	assessor triage.Assessor,
	cancellations *CancellationSaga,
	notifier notification.Notifier,
	lg *logger.Logger,
	m *metrics.Metrics,
) *DayCancellationSaga {
	s := &DayCancellationSaga{
		appointments:  appointments,
		schedules:     schedules,
		rows:          rows,
		assessor:      assessor,
		cancellations: cancellations,
		notifier:      notifier,
		logger:        lg,
	}

	failed := func(st DayCancellationState) DayCancellationState {
		st.Status = DayCancellationStatusFailed
		return st
	}
	s.engine = NewEngine("day_cancellation", Policy{Timeout: 10 * time.Second, MaxAttempts: 1}, failed, lg, m)

	s.engine.Handle(dayCancelStepBlock, s.block)
	s.engine.HandleWithPolicy(dayCancelStepAssess, Policy{
		Timeout:     40 * time.Second,
		MaxAttempts: 2,
		// Unlabelled appointments rank last; cancellation proceeds anyway.
		FailoverTo: dayCancelStepCancel,
	}, s.assess)
	s.engine.HandleWithPolicy(dayCancelStepCancel, Policy{
		Timeout:     5 * time.Minute,
		MaxAttempts: 1,
		FailoverTo:  dayCancelStepFinalize,
	}, s.cancel)
	s.engine.Handle(dayCancelStepFinalize, s.finalize)
	return s
}

// Start admits a day cancellation under the given saga id.
func (s *DayCancellationSaga) Start(id, doctorID, date string) error {
	st := DayCancellationState{DoctorID: doctorID, Date: date, Status: DayCancellationStatusInitial}
	return s.engine.Start(id, st, dayCancelStepBlock)
}

func (s *DayCancellationSaga) State(id string) (DayCancellationState, bool) { return s.engine.State(id) }

func (s *DayCancellationSaga) Wait(ctx context.Context, id string) error { return s.engine.Wait(ctx, id) }

// Finished reports whether the day cancellation reached one of its terminal
// states.
func (s *DayCancellationSaga) Finished(id string) bool {
	st, ok := s.engine.State(id)
	if !ok {
		return false
	}
	return st.Status == DayCancellationStatusCancelled || st.Status == DayCancellationStatusFailed
}

func (s *DayCancellationSaga) block(ctx context.Context, st DayCancellationState) (DayCancellationState, string, error) {
	id := model.ScheduleID{DoctorID: st.DoctorID, Date: st.Date}
	if err := s.schedules.BlockDay(ctx, id); err != nil {
		st.Status = DayCancellationStatusFailed
		st.Reason = err.Error()
		return st, "", nil
	}
	st.Status = DayCancellationStatusBlocked
	return st, dayCancelStepAssess, nil
}

// assess labels every unlabelled appointment of the day with an urgency
// priority. The fan-out is bounded and shares the step's deadline; one failed
// assessment fails the step so the whole batch can be retried.
func (s *DayCancellationSaga) assess(ctx context.Context, st DayCancellationState) (DayCancellationState, string, error) {
	rows, err := s.rows.FindByDoctorAndDate(ctx, st.DoctorID, st.Date)
	if err != nil {
		return st, "", err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(assessConcurrency)
	for _, row := range rows {
		if row.Priority != "" || !isCancellable(row.Status) {
			continue
		}
		row := row
		g.Go(func() error {
			priority, err := s.assessor.Urgency(gctx, row.ID, row.Issue)
			if err != nil {
				return fmt.Errorf("assess appointment %s: %w", row.ID, err)
			}
			return s.appointments.AddPriority(gctx, row.ID, priority)
		})
	}
	if err := g.Wait(); err != nil {
		return st, "", err
	}
	return st, dayCancelStepCancel, nil
}

// cancel runs one cancellation saga per appointment, most urgent first, and
// waits for each before starting the next. Every patient whose appointment
// was cancelled is notified.
func (s *DayCancellationSaga) cancel(ctx context.Context, st DayCancellationState) (DayCancellationState, string, error) {
	rows, err := s.rows.FindByDoctorAndDate(ctx, st.DoctorID, st.Date)
	if err != nil {
		return st, "", err
	}

	pending := make([]readmodel.AppointmentRow, 0, len(rows))
	for _, row := range rows {
		if isCancellable(row.Status) {
			pending = append(pending, row)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		ri, rj := triage.Rank(pending[i].Priority), triage.Rank(pending[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return pending[i].Time < pending[j].Time
	})

	for _, row := range pending {
		childID := fmt.Sprintf("daycancel:%s:%s:%s", st.DoctorID, st.Date, row.ID)
		if err := s.cancellations.Start(childID, row.ID); err != nil {
			s.logger.Warn("cancellation already running", "appointment_id", row.ID, "saga_id", childID)
		}
		if err := s.cancellations.Wait(ctx, childID); err != nil {
			return st, "", err
		}

		child, _ := s.cancellations.State(childID)
		if child.Status != CancellationStatusSlotDeleted {
			s.logger.Warn("appointment not cancelled during day cancellation",
				"appointment_id", row.ID, "status", string(child.Status))
			continue
		}
		st.Cancelled = append(st.Cancelled, row.ID)
		if err := s.notifier.AppointmentCancelled(ctx, row); err != nil {
			s.logger.Error(err, "failed to notify patient", "appointment_id", row.ID)
		}
	}
	return st, dayCancelStepFinalize, nil
}

func (s *DayCancellationSaga) finalize(ctx context.Context, st DayCancellationState) (DayCancellationState, string, error) {
	id := model.ScheduleID{DoctorID: st.DoctorID, Date: st.Date}
	if err := s.schedules.CancelDay(ctx, id); err != nil {
		return st, "", err
	}
	st.Status = DayCancellationStatusCancelled
	return st, "", nil
}

func isCancellable(status model.AppointmentStatus) bool {
	return status == model.AppointmentStatusPending || status == model.AppointmentStatusScheduled
}
