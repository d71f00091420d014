package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/model"
)

func (h *Handler) RegisterDoctorRoutes(rg *gin.RouterGroup) {
	doctors := rg.Group("/doctors")
	{
		doctors.POST("", h.RegisterDoctor)
		doctors.GET("", h.ListDoctors)
		doctors.GET("/:id", h.GetDoctor)
		doctors.PUT("/:id", h.UpdateDoctor)
	}
}

func (h *Handler) RegisterDoctor(c *gin.Context) {
	var req model.CreateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	doc, err := h.doctors.Register(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewSuccessResponse(doc))
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	var req model.CreateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	doc, err := h.doctors.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(doc))
}

func (h *Handler) ListDoctors(c *gin.Context) {
	if speciality := c.Query("speciality"); speciality != "" {
		c.JSON(http.StatusOK, NewSuccessResponse(h.doctors.FindBySpeciality(c.Request.Context(), speciality)))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(h.doctors.List(c.Request.Context())))
}

func (h *Handler) GetDoctor(c *gin.Context) {
	doc, err := h.doctors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(doc))
}
