package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/saga"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(statusForCode(appErr.Code), NewErrorResponse(appErr.Message))
		return
	}

	switch {
	case errors.Is(err, model.ErrScheduleNotFound),
		errors.Is(err, model.ErrAppointmentNotFound),
		errors.Is(err, model.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case errors.Is(err, model.ErrScheduleExists),
		errors.Is(err, model.ErrAppointmentExists),
		errors.Is(err, saga.ErrAlreadyStarted):
		c.JSON(http.StatusConflict, NewErrorResponse(err.Error()))
	case errors.Is(err, model.ErrScheduleNotActive),
		errors.Is(err, model.ErrNotSchedulable),
		errors.Is(err, model.ErrNotCancellable),
		errors.Is(err, model.ErrNotCompletable),
		errors.Is(err, model.ErrNotMissable),
		errors.Is(err, model.ErrNotReschedulable):
		c.JSON(http.StatusPreconditionFailed, NewErrorResponse(err.Error()))
	case errors.Is(err, model.ErrOutsideWorkingHours),
		errors.Is(err, model.ErrSlotOverlap),
		errors.Is(err, model.ErrSlotTooShort),
		errors.Is(err, model.ErrInvalidTimeRange):
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(err.Error()))
	default:
		h.logger.Error(err, "unhandled error", "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
	}
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrPrecondition:
		return http.StatusPreconditionFailed
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
