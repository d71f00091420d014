package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
)

func newReschedulingSaga(t *testing.T) (*ReschedulingSaga, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewReschedulingSaga(env.appointments, env.schedules, env.logger, env.metrics), env
}

func TestReschedulingMovesAppointmentAcrossDoctors(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	env.createDay(t, "dr-wilson", "2026-09-02", "09:00", "17:00")

	oldAt := dayAt("2026-09-01", "10:00")
	newAt := dayAt("2026-09-02", "14:00")
	env.bookAppointment(t, "appt-1", "dr-house", "pat-1", "flu", oldAt)

	require.NoError(t, saga.Start("resched-1", ReschedulingState{
		AppointmentID: "appt-1",
		NewDoctorID:   "dr-wilson",
		NewDateTime:   newAt,
		Duration:      time.Hour,
	}))
	waitFor(t, saga, "resched-1")

	st, ok := saga.State("resched-1")
	require.True(t, ok)
	assert.Equal(t, ReschedulingStatusOldSlotRemoved, st.Status)
	assert.Equal(t, "dr-house", st.OldDoctorID)

	appt, _ := env.appointments.Get(context.Background(), "appt-1")
	assert.Equal(t, "dr-wilson", appt.DoctorID)
	assert.True(t, appt.DateTime.Equal(newAt))
	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)

	oldSched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", oldAt))
	assert.Empty(t, oldSched.Slots)
	newSched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-wilson", newAt))
	require.Len(t, newSched.Slots, 1)
	assert.Equal(t, "appt-1", newSched.Slots[0].AppointmentID)
	assert.Equal(t, "15:00", newSched.Slots[0].End.String())
}

func TestReschedulingFailsWhenNewSlotRejected(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	env.createDay(t, "dr-wilson", "2026-09-01", "09:00", "17:00")

	oldAt := dayAt("2026-09-01", "10:00")
	newAt := dayAt("2026-09-01", "14:00")
	env.bookAppointment(t, "appt-1", "dr-house", "pat-1", "flu", oldAt)
	env.bookAppointment(t, "appt-2", "dr-wilson", "pat-2", "cold", newAt)

	require.NoError(t, saga.Start("resched-clash", ReschedulingState{
		AppointmentID: "appt-1",
		NewDoctorID:   "dr-wilson",
		NewDateTime:   newAt,
	}))
	waitFor(t, saga, "resched-clash")

	st, _ := saga.State("resched-clash")
	assert.Equal(t, ReschedulingStatusFailed, st.Status)
	assert.Contains(t, st.Reason, model.ErrSlotOverlap.Error())

	// Both calendars and the appointment are untouched.
	appt, _ := env.appointments.Get(context.Background(), "appt-1")
	assert.Equal(t, "dr-house", appt.DoctorID)
	oldSched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", oldAt))
	assert.Len(t, oldSched.Slots, 1)
	newSched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-wilson", newAt))
	assert.Len(t, newSched.Slots, 1)
}

func TestReschedulingFailsForCancelledAppointment(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	at := dayAt("2026-09-01", "10:00")
	env.bookAppointment(t, "appt-gone", "dr-house", "pat-1", "flu", at)
	require.NoError(t, env.appointments.Cancel(context.Background(), "appt-gone"))

	require.NoError(t, saga.Start("resched-gone", ReschedulingState{
		AppointmentID: "appt-gone",
		NewDoctorID:   "dr-house",
		NewDateTime:   dayAt("2026-09-01", "12:00"),
	}))
	waitFor(t, saga, "resched-gone")

	st, _ := saga.State("resched-gone")
	assert.Equal(t, ReschedulingStatusFailed, st.Status)
	assert.Equal(t, model.ErrNotReschedulable.Error(), st.Reason)
}

func TestReschedulingSameSlotIsNoOp(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	at := dayAt("2026-09-01", "10:00")
	env.bookAppointment(t, "appt-same", "dr-house", "pat-1", "flu", at)

	require.NoError(t, saga.Start("resched-same", ReschedulingState{
		AppointmentID: "appt-same",
		NewDoctorID:   "dr-house",
		NewDateTime:   at,
	}))
	waitFor(t, saga, "resched-same")

	st, _ := saga.State("resched-same")
	assert.Equal(t, ReschedulingStatusOldSlotRemoved, st.Status)

	sched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", at))
	assert.Len(t, sched.Slots, 1)
}

func TestReschedulingWithinSameDay(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	oldAt := dayAt("2026-09-01", "10:00")
	newAt := dayAt("2026-09-01", "15:00")
	env.bookAppointment(t, "appt-move", "dr-house", "pat-1", "flu", oldAt)

	require.NoError(t, saga.Start("resched-sameday", ReschedulingState{
		AppointmentID: "appt-move",
		NewDoctorID:   "dr-house",
		NewDateTime:   newAt,
	}))
	waitFor(t, saga, "resched-sameday")

	st, _ := saga.State("resched-sameday")
	assert.Equal(t, ReschedulingStatusOldSlotRemoved, st.Status)

	sched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", oldAt))
	require.Len(t, sched.Slots, 1)
	assert.Equal(t, "15:00", sched.Slots[0].Start.String())
}

// An old slot removed behind the saga's back fails the saga after retries.
// The appointment has already moved and the new slot stays reserved.
func TestReschedulingFailsWhenOldSlotMissing(t *testing.T) {
	saga, env := newReschedulingSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	env.createDay(t, "dr-wilson", "2026-09-02", "09:00", "17:00")

	oldAt := dayAt("2026-09-01", "10:00")
	newAt := dayAt("2026-09-02", "14:00")
	env.bookAppointment(t, "appt-orphan", "dr-house", "pat-1", "flu", oldAt)

	oldID := model.NewScheduleID("dr-house", oldAt)
	require.NoError(t, env.schedules.CancelAppointmentByStartTime(context.Background(), oldID, model.TimeOfDayFrom(oldAt)))

	require.NoError(t, saga.Start("resched-orphan", ReschedulingState{
		AppointmentID: "appt-orphan",
		NewDoctorID:   "dr-wilson",
		NewDateTime:   newAt,
	}))
	waitFor(t, saga, "resched-orphan")

	st, _ := saga.State("resched-orphan")
	assert.Equal(t, ReschedulingStatusFailed, st.Status)
	assert.True(t, saga.Finished("resched-orphan"))

	appt, _ := env.appointments.Get(context.Background(), "appt-orphan")
	assert.Equal(t, "dr-wilson", appt.DoctorID)
	newSched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-wilson", newAt))
	require.Len(t, newSched.Slots, 1)
	assert.Equal(t, "appt-orphan", newSched.Slots[0].AppointmentID)
}
