package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

// SignupHandler serves the signup form of the signed-in account.
type SignupHandler struct {
	signup *usecase.SignupService
}

func NewSignupHandler(signup *usecase.SignupService) *SignupHandler {
	return &SignupHandler{signup: signup}
}

// Fetch returns the account view.
func (h *SignupHandler) Fetch(c *gin.Context) {
	req := middleware.AccessFrom(c)
	if req.Account == nil {
		middleware.AbortWithError(c, usecase.ErrLoginRequired)
		return
	}
	c.JSON(http.StatusOK, h.signup.Fetch(req.Account))
}

// Update stores the form and the confirmed flag.
func (h *SignupHandler) Update(c *gin.Context) {
	req := middleware.AccessFrom(c)
	payload, ok := req.Payload.(*usecase.UpdateSignupRequest)
	if req.Account == nil || !ok {
		middleware.AbortWithError(c, usecase.ErrMalformedBody)
		return
	}

	if err := h.signup.Update(c.Request.Context(), req.Account, *payload.Confirmed, payload.Form); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, EmptyResponse{})
}
