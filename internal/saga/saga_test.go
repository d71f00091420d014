package saga

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const waitTimeout = 5 * time.Second

type testEnv struct {
	appointments *appointment.Store
	schedules    *schedule.Store
	repo         *readmodel.MemoryRepository
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	lg := logger.NewLogger(&logger.Config{
		Level:      logger.FatalLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	m := metrics.NewMetrics("clinic", "test", prometheus.NewRegistry())
	repo := readmodel.NewMemoryRepository()
	projector := readmodel.NewProjector(repo, lg)
	return &testEnv{
		appointments: appointment.NewStore(m, projector.Apply),
		schedules:    schedule.NewStore(m),
		repo:         repo,
		logger:       lg,
		metrics:      m,
	}
}

func (e *testEnv) createDay(t *testing.T, doctorID, date, start, end string) model.ScheduleID {
	t.Helper()
	from, err := model.ParseTimeOfDay(start)
	require.NoError(t, err)
	to, err := model.ParseTimeOfDay(end)
	require.NoError(t, err)
	wh, err := model.NewWorkingHours(from, to)
	require.NoError(t, err)

	id := model.ScheduleID{DoctorID: doctorID, Date: date}
	require.NoError(t, e.schedules.Create(context.Background(), id, wh))
	return id
}

// bookAppointment sets up a scheduled appointment with its calendar slot, the
// state the scheduling saga leaves behind on success.
func (e *testEnv) bookAppointment(t *testing.T, id, doctorID, patientID, issue string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.appointments.Create(ctx, id, at, doctorID, patientID, issue))
	require.NoError(t, e.appointments.Schedule(ctx, id))

	sid := model.NewScheduleID(doctorID, at)
	require.NoError(t, e.schedules.ScheduleAppointment(ctx, sid, model.TimeOfDayFrom(at), DefaultBookingDuration, id))
}

func waitFor(t *testing.T, eng interface {
	Wait(context.Context, string) error
}, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, eng.Wait(ctx, id))
}

func dayAt(date, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}
