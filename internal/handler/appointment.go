package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/saga"
)

type bookAppointmentRequest struct {
	ID              string    `json:"id"`
	DoctorID        string    `json:"doctor_id" validate:"required"`
	PatientID       string    `json:"patient_id" validate:"required"`
	DateTime        time.Time `json:"date_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=5"`
	Issue           string    `json:"issue" validate:"required"`
}

type rescheduleRequest struct {
	DoctorID        string    `json:"doctor_id" validate:"required"`
	DateTime        time.Time `json:"date_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=5"`
}

type annotationRequest struct {
	Notes        string `json:"notes"`
	Prescription string `json:"prescription"`
	Priority     string `json:"priority"`
}

func (h *Handler) RegisterAppointmentRoutes(rg *gin.RouterGroup) {
	appts := rg.Group("/appointments")
	{
		appts.POST("", h.BookAppointment)
		appts.GET("", h.ListAppointments)
		appts.GET("/:id", h.GetAppointment)
		appts.GET("/:id/booking", h.GetBooking)
		appts.POST("/:id/cancel", h.CancelAppointment)
		appts.POST("/:id/reschedule", h.RescheduleAppointment)
		appts.POST("/:id/complete", h.CompleteAppointment)
		appts.POST("/:id/missed", h.MarkAppointmentMissed)
		appts.POST("/:id/notes", h.AddNotes)
		appts.POST("/:id/prescriptions", h.AddPrescription)
		appts.POST("/:id/priority", h.AddPriority)
	}
	rg.GET("/cancellations/:id", h.GetCancellation)
	rg.GET("/reschedules/:id", h.GetReschedule)
}

// BookAppointment starts the scheduling saga. The appointment id doubles as
// the saga id; clients may supply their own to make the request replay-safe.
func (h *Handler) BookAppointment(c *gin.Context) {
	var req bookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	err := h.scheduling.Start(saga.SchedulingState{
		AppointmentID: req.ID,
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		DateTime:      req.DateTime,
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
		Issue:         req.Issue,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, NewSuccessResponse(gin.H{"appointment_id": req.ID}))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	appt, found := h.appointments.Get(c.Request.Context(), c.Param("id"))
	if !found {
		h.respondError(c, model.ErrAppointmentNotFound)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(appt))
}

// GetBooking returns the scheduling saga state for an appointment.
func (h *Handler) GetBooking(c *gin.Context) {
	st, found := h.scheduling.State(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, NewErrorResponse("booking not found"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(st))
}

// ListAppointments queries the read model by doctor and date, or by patient.
func (h *Handler) ListAppointments(c *gin.Context) {
	doctorID := c.Query("doctor_id")
	date := c.Query("date")
	patientID := c.Query("patient_id")

	switch {
	case doctorID != "" && date != "":
		rows, err := h.rows.FindByDoctorAndDate(c.Request.Context(), doctorID, date)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewSuccessResponse(rows))
	case patientID != "":
		rows, err := h.rows.FindByPatient(c.Request.Context(), patientID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewSuccessResponse(rows))
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse("provide doctor_id and date, or patient_id"))
	}
}

// CancelAppointment starts the cancellation saga. The appointment id doubles
// as the saga id, so a repeated cancel of the same appointment is rejected.
func (h *Handler) CancelAppointment(c *gin.Context) {
	id := c.Param("id")
	if err := h.cancellations.Start(id, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, NewSuccessResponse(gin.H{"saga_id": id}))
}

func (h *Handler) GetCancellation(c *gin.Context) {
	st, found := h.cancellations.State(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, NewErrorResponse("cancellation not found"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(st))
}

// RescheduleAppointment starts the rescheduling saga and returns its id.
func (h *Handler) RescheduleAppointment(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	sagaID := uuid.New().String()
	err := h.reschedules.Start(sagaID, saga.ReschedulingState{
		AppointmentID: c.Param("id"),
		NewDoctorID:   req.DoctorID,
		NewDateTime:   req.DateTime,
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, NewSuccessResponse(gin.H{"saga_id": sagaID}))
}

func (h *Handler) GetReschedule(c *gin.Context) {
	st, found := h.reschedules.State(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, NewErrorResponse("reschedule not found"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(st))
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	if err := h.appointments.Complete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": model.AppointmentStatusCompleted}))
}

func (h *Handler) MarkAppointmentMissed(c *gin.Context) {
	if err := h.appointments.MarkAsMissed(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": model.AppointmentStatusMissed}))
}

func (h *Handler) AddNotes(c *gin.Context) {
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Notes == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("notes are required"))
		return
	}
	if err := h.appointments.AddNotes(c.Request.Context(), c.Param("id"), req.Notes); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(nil))
}

func (h *Handler) AddPrescription(c *gin.Context) {
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Prescription == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("prescription is required"))
		return
	}
	if err := h.appointments.AddPrescription(c.Request.Context(), c.Param("id"), req.Prescription); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(nil))
}

func (h *Handler) AddPriority(c *gin.Context) {
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Priority == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("priority is required"))
		return
	}
	if err := h.appointments.AddPriority(c.Request.Context(), c.Param("id"), req.Priority); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(nil))
}
