package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	Subject string `json:"subject" validate:"required"`
	Secret  string `json:"secret" validate:"required"`
}

func (h *Handler) RegisterAuthRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

// IssueToken exchanges the shared API secret for a bearer token.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.apiSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid credentials"))
		return
	}

	token, err := h.jwt.GenerateAccessToken(req.Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"access_token": token, "token_type": "Bearer"}))
}
