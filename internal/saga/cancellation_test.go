package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
)

func newCancellationSaga(t *testing.T) (*CancellationSaga, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewCancellationSaga(env.appointments, env.schedules, env.logger, env.metrics), env
}

func TestCancellationCancelsThenFreesSlot(t *testing.T) {
	saga, env := newCancellationSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	at := dayAt("2026-09-01", "10:00")
	env.bookAppointment(t, "appt-1", "dr-house", "pat-1", "flu", at)

	require.NoError(t, saga.Start("cancel-1", "appt-1"))
	waitFor(t, saga, "cancel-1")

	st, ok := saga.State("cancel-1")
	require.True(t, ok)
	assert.Equal(t, CancellationStatusSlotDeleted, st.Status)
	assert.True(t, saga.Finished("cancel-1"))

	appt, _ := env.appointments.Get(context.Background(), "appt-1")
	assert.Equal(t, model.AppointmentStatusCancelled, appt.Status)

	sched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", at))
	assert.Empty(t, sched.Slots)
}

func TestCancellationIsSilentForUnknownAppointment(t *testing.T) {
	saga, _ := newCancellationSaga(t)

	require.NoError(t, saga.Start("cancel-missing", "appt-ghost"))
	waitFor(t, saga, "cancel-missing")

	st, ok := saga.State("cancel-missing")
	require.True(t, ok)
	assert.Equal(t, CancellationStatusInitial, st.Status)
	assert.False(t, saga.Finished("cancel-missing"))
}

func TestCancellationIsSilentForCompletedAppointment(t *testing.T) {
	saga, env := newCancellationSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	at := dayAt("2026-09-01", "10:00")
	env.bookAppointment(t, "appt-done", "dr-house", "pat-1", "flu", at)
	require.NoError(t, env.appointments.Complete(context.Background(), "appt-done"))

	require.NoError(t, saga.Start("cancel-done", "appt-done"))
	waitFor(t, saga, "cancel-done")

	st, _ := saga.State("cancel-done")
	assert.Equal(t, CancellationStatusInitial, st.Status)
	assert.False(t, saga.Finished("cancel-done"))

	// Nothing was touched.
	appt, _ := env.appointments.Get(context.Background(), "appt-done")
	assert.Equal(t, model.AppointmentStatusCompleted, appt.Status)
	sched, _ := env.schedules.Get(context.Background(), model.NewScheduleID("dr-house", at))
	assert.Len(t, sched.Slots, 1)
}

// A slot removed behind the saga's back fails the saga after retries, but only
// after the appointment itself has been cancelled.
func TestCancellationFailsWhenSlotMissing(t *testing.T) {
	saga, env := newCancellationSaga(t)
	env.createDay(t, "dr-house", "2026-09-01", "09:00", "17:00")
	at := dayAt("2026-09-01", "10:00")
	env.bookAppointment(t, "appt-orphan", "dr-house", "pat-1", "flu", at)

	id := model.NewScheduleID("dr-house", at)
	require.NoError(t, env.schedules.CancelAppointmentByStartTime(context.Background(), id, model.TimeOfDayFrom(at)))

	require.NoError(t, saga.Start("cancel-orphan", "appt-orphan"))
	waitFor(t, saga, "cancel-orphan")

	st, _ := saga.State("cancel-orphan")
	assert.Equal(t, CancellationStatusFailed, st.Status)
	assert.True(t, saga.Finished("cancel-orphan"))

	appt, _ := env.appointments.Get(context.Background(), "appt-orphan")
	assert.Equal(t, model.AppointmentStatusCancelled, appt.Status)
}
