package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/doctor"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/notification"
	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/saga"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/internal/triage"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

type testAPI struct {
	engine        *gin.Engine
	handler       *Handler
	appointments  *appointment.Store
	schedules     *schedule.Store
	scheduling    *saga.SchedulingSaga
	cancellations *saga.CancellationSaga
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.FatalLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	m := metrics.NewMetrics("clinic", "test", prometheus.NewRegistry())
	repo := readmodel.NewMemoryRepository()
	projector := readmodel.NewProjector(repo, lg)
	appointments := appointment.NewStore(m, projector.Apply)
	schedules := schedule.NewStore(m)

	scheduling := saga.NewSchedulingSaga(appointments, schedules, lg, m)
	cancellations := saga.NewCancellationSaga(appointments, schedules, lg, m)
	reschedules := saga.NewReschedulingSaga(appointments, schedules, lg, m)
	dayCancels := saga.NewDayCancellationSaga(appointments, schedules, repo,
		triage.NewKeywordAssessor(), cancellations, notification.NoopNotifier{}, lg, m)

	h := NewHandler(Config{
		Appointments:  appointments,
		Schedules:     schedules,
		Rows:          repo,
		Doctors:       doctor.NewRegistry(),
		Scheduling:    scheduling,
		Cancellations: cancellations,
		Reschedules:   reschedules,
		DayCancels:    dayCancels,
		JWT:           auth.NewJWTService("test-secret", time.Hour),
		APISecret:     "api-secret",
		Validator:     validator.New(),
		Logger:        lg,
	})

	engine := gin.New()
	api := engine.Group("/api/v1")
	h.RegisterAuthRoutes(api)
	h.RegisterDoctorRoutes(api)
	h.RegisterScheduleRoutes(api)
	h.RegisterAppointmentRoutes(api)

	return &testAPI{
		engine:        engine,
		handler:       h,
		appointments:  appointments,
		schedules:     schedules,
		scheduling:    scheduling,
		cancellations: cancellations,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createDay(t *testing.T, doctorID, date string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/schedules", gin.H{
		"doctor_id": doctorID, "date": date, "start": "09:00", "end": "17:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateScheduleValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"doctor_id": "dr-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{
		"doctor_id": "dr-1", "date": "2026-09-01", "start": "17:00", "end": "09:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	api.createDay(t, "dr-1", "2026-09-01")
	rec = api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{
		"doctor_id": "dr-1", "date": "2026-09-01", "start": "09:00", "end": "17:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookAppointmentFlow(t *testing.T) {
	api := newTestAPI(t)
	api.createDay(t, "dr-1", "2026-09-01")

	rec := api.do(t, http.MethodPost, "/api/v1/appointments", gin.H{
		"id":         "appt-1",
		"doctor_id":  "dr-1",
		"patient_id": "pat-1",
		"date_time":  "2026-09-01T10:00:00Z",
		"issue":      "flu",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, api.scheduling.Wait(ctx, "appt-1"))

	rec = api.do(t, http.MethodGet, "/api/v1/appointments/appt-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.AppointmentStatusScheduled, resp.Data.Status)

	rec = api.do(t, http.MethodGet, "/api/v1/appointments/appt-1/booking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var booking struct {
		Data saga.SchedulingState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	assert.Equal(t, saga.SchedulingStatusScheduled, booking.Data.Status)

	// Reusing the appointment id is rejected.
	rec = api.do(t, http.MethodPost, "/api/v1/appointments", gin.H{
		"id":         "appt-1",
		"doctor_id":  "dr-1",
		"patient_id": "pat-1",
		"date_time":  "2026-09-01T14:00:00Z",
		"issue":      "flu again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListAppointments(t *testing.T) {
	api := newTestAPI(t)
	api.createDay(t, "dr-1", "2026-09-01")

	rec := api.do(t, http.MethodPost, "/api/v1/appointments", gin.H{
		"id": "appt-1", "doctor_id": "dr-1", "patient_id": "pat-1",
		"date_time": "2026-09-01T10:00:00Z", "issue": "flu",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, api.scheduling.Wait(ctx, "appt-1"))

	rec = api.do(t, http.MethodGet, "/api/v1/appointments?doctor_id=dr-1&date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []readmodel.AppointmentRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "appt-1", resp.Data[0].ID)

	rec = api.do(t, http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownResources(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/appointments/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/schedules/dr-x/2026-09-01", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/cancellations/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/day-cancellations/ghost", nil).Code)
}

func TestCompleteAndMissedPreconditions(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.appointments.Create(context.Background(), "appt-1",
		time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), "dr-1", "pat-1", "flu"))

	// Pending appointments cannot be completed.
	rec := api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/complete", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	require.NoError(t, api.appointments.Schedule(context.Background(), "appt-1"))
	rec = api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/missed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnnotationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.appointments.Create(context.Background(), "appt-1",
		time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), "dr-1", "pat-1", "flu"))

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/notes",
		gin.H{"notes": "first visit"}).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/prescriptions",
		gin.H{"prescription": "ibuprofen"}).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/priority",
		gin.H{"priority": "high"}).Code)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/notes",
		gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/v1/appointments/ghost/notes",
		gin.H{"notes": "x"}).Code)

	appt, _ := api.appointments.Get(context.Background(), "appt-1")
	require.NotNil(t, appt.Notes)
	assert.Equal(t, "first visit", *appt.Notes)
	assert.Equal(t, []string{"ibuprofen"}, appt.Prescriptions)
}

func TestDoctorEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/doctors", gin.H{
		"name": "Gregory House", "email": "house@clinic.example", "specialities": []string{"diagnostics"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data model.Doctor `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = api.do(t, http.MethodGet, "/api/v1/doctors/"+created.Data.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/doctors/"+created.Data.ID, gin.H{
		"name": "Gregory House", "email": "house@clinic.example", "specialities": []string{"diagnostics", "nephrology"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/doctors?speciality=diagnostics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []model.Doctor `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	rec = api.do(t, http.MethodPost, "/api/v1/doctors", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/token", gin.H{
		"subject": "ops", "secret": "api-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data["access_token"])

	rec = api.do(t, http.MethodPost, "/api/v1/auth/token", gin.H{
		"subject": "ops", "secret": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancelAppointmentKeyedByAppointmentID(t *testing.T) {
	api := newTestAPI(t)
	api.createDay(t, "dr-1", "2026-09-01")

	rec := api.do(t, http.MethodPost, "/api/v1/appointments", gin.H{
		"id": "appt-1", "doctor_id": "dr-1", "patient_id": "pat-1",
		"date_time": "2026-09-01T10:00:00Z", "issue": "flu",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, api.scheduling.Wait(ctx, "appt-1"))

	rec = api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "appt-1", resp.Data["saga_id"])
	require.NoError(t, api.cancellations.Wait(ctx, "appt-1"))

	// A second cancel of the same appointment is rejected.
	rec = api.do(t, http.MethodPost, "/api/v1/appointments/appt-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/cancellations/appt-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Data saga.CancellationState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, saga.CancellationStatusSlotDeleted, st.Data.Status)
}

func TestCancelDayEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.createDay(t, "dr-1", "2026-09-01")

	rec := api.do(t, http.MethodPost, "/api/v1/schedules/dr-1/2026-09-01/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	sagaID := resp.Data["saga_id"]
	require.NotEmpty(t, sagaID)

	require.Eventually(t, func() bool {
		rec := api.do(t, http.MethodGet, "/api/v1/day-cancellations/"+sagaID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var st struct {
			Data saga.DayCancellationState `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			return false
		}
		return st.Data.Status == saga.DayCancellationStatusCancelled
	}, 5*time.Second, 20*time.Millisecond)
}
