package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

// AuthHandler exposes registration, login, logout and password reset.
type AuthHandler struct {
	auth   *usecase.AuthService
	resets *usecase.PasswordResetService
	cookie SessionCookie
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, resets *usecase.PasswordResetService, cookie SessionCookie) *AuthHandler {
	return &AuthHandler{auth: auth, resets: resets, cookie: cookie}
}

// Register creates the account and signs the client in.
func (h *AuthHandler) Register(c *gin.Context) {
	req := middleware.AccessFrom(c)
	payload, ok := req.Payload.(*usecase.RegisterRequest)
	if !ok {
		middleware.AbortWithError(c, usecase.ErrMalformedBody)
		return
	}

	_, session, err := h.auth.Register(c.Request.Context(), usecase.Credentials{
		Email:    payload.Email,
		Password: payload.Password,
		ClientIP: req.ClientIP,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.cookie.Set(c, session)
	c.Status(http.StatusNoContent)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	req := middleware.AccessFrom(c)
	payload, ok := req.Payload.(*usecase.LoginRequest)
	if !ok {
		middleware.AbortWithError(c, usecase.ErrMalformedBody)
		return
	}

	_, session, err := h.auth.Login(c.Request.Context(), usecase.Credentials{
		Email:    payload.Email,
		Password: payload.Password,
		ClientIP: req.ClientIP,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.cookie.Set(c, session)
	c.Status(http.StatusNoContent)
}

// Logout clears the session cookie. Tokens are stateless, so nothing is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.cookie.Clear(c)
	c.Status(http.StatusNoContent)
}

// RequestReset mails a reset secret. The response is the same whether or not the
// email is registered.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	req := middleware.AccessFrom(c)
	payload, ok := req.Payload.(*usecase.ResetRequest)
	if !ok {
		middleware.AbortWithError(c, usecase.ErrMalformedBody)
		return
	}

	if err := h.resets.RequestReset(c.Request.Context(), usecase.ResetRequestInput{
		Email:    payload.Email,
		ClientIP: req.ClientIP,
	}); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConfirmReset redeems a reset secret for a new password.
func (h *AuthHandler) ConfirmReset(c *gin.Context) {
	payload, ok := middleware.AccessFrom(c).Payload.(*usecase.ConfirmResetRequest)
	if !ok {
		middleware.AbortWithError(c, usecase.ErrMalformedBody)
		return
	}

	if err := h.resets.ConfirmReset(c.Request.Context(), usecase.ConfirmResetInput{
		Email:       payload.Email,
		Token:       payload.Token,
		NewPassword: payload.Password,
	}); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
