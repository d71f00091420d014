package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type createScheduleRequest struct {
	DoctorID string `json:"doctor_id" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
}

func (h *Handler) RegisterScheduleRoutes(rg *gin.RouterGroup) {
	schedules := rg.Group("/schedules")
	{
		schedules.POST("", h.CreateSchedule)
		schedules.GET("/:doctorID/:date", h.GetSchedule)
		schedules.POST("/:doctorID/:date/block", h.BlockDay)
		schedules.POST("/:doctorID/:date/reactivate", h.ReactivateDay)
		schedules.POST("/:doctorID/:date/cancel", h.CancelDay)
	}
	rg.GET("/day-cancellations/:id", h.GetDayCancellation)
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	start, err := model.ParseTimeOfDay(req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	end, err := model.ParseTimeOfDay(req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	wh, err := model.NewWorkingHours(start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}

	id := model.ScheduleID{DoctorID: req.DoctorID, Date: req.Date}
	if err := h.schedules.Create(c.Request.Context(), id, wh); err != nil {
		h.respondError(c, err)
		return
	}

	sched, _ := h.schedules.Get(c.Request.Context(), id)
	c.JSON(http.StatusCreated, NewSuccessResponse(sched))
}

func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := h.scheduleID(c)
	if !ok {
		return
	}
	sched, found := h.schedules.Get(c.Request.Context(), id)
	if !found {
		h.respondError(c, model.ErrScheduleNotFound)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(sched))
}

func (h *Handler) BlockDay(c *gin.Context) {
	id, ok := h.scheduleID(c)
	if !ok {
		return
	}
	if err := h.schedules.BlockDay(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"schedule_id": id.String(), "status": model.ScheduleStatusBlocked}))
}

func (h *Handler) ReactivateDay(c *gin.Context) {
	id, ok := h.scheduleID(c)
	if !ok {
		return
	}
	if err := h.schedules.ReactivateDay(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"schedule_id": id.String(), "status": model.ScheduleStatusActive}))
}

// CancelDay starts the day-wide cancellation saga and returns its id.
func (h *Handler) CancelDay(c *gin.Context) {
	id, ok := h.scheduleID(c)
	if !ok {
		return
	}

	sagaID := uuid.New().String()
	if err := h.dayCancels.Start(sagaID, id.DoctorID, id.Date); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, NewSuccessResponse(gin.H{"saga_id": sagaID}))
}

func (h *Handler) GetDayCancellation(c *gin.Context) {
	st, found := h.dayCancels.State(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, NewErrorResponse("day cancellation not found"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(st))
}

func (h *Handler) scheduleID(c *gin.Context) (model.ScheduleID, bool) {
	id, err := model.ParseScheduleID(c.Param("doctorID") + ":" + c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return model.ScheduleID{}, false
	}
	return id, true
}
