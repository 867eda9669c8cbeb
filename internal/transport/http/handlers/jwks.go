package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
)

const jwksCacheControl = "public, max-age=3600"

// JWKSSource renders the public key set for session tokens.
type JWKSSource interface {
	JWKS() ([]byte, error)
}

// JWKSHandler publishes the session verification key.
type JWKSHandler struct {
	source JWKSSource
}

// NewJWKSHandler constructs a JWKS handler backed by source.
func NewJWKSHandler(source JWKSSource) *JWKSHandler {
	return &JWKSHandler{source: source}
}

// Keys serves the JSON Web Key Set.
func (h *JWKSHandler) Keys(c *gin.Context) {
	payload, err := h.source.JWKS()
	if err != nil {
		middleware.AbortWithError(c, domain.NewInternal(err))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
