package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Set writes the session cookie. Max-Age follows the token lifetime.
func (s SessionCookie) Set(c *gin.Context, session domain.IssuedSession) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.Name,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (s SessionCookie) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
