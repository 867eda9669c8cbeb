package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	TraceID string   `json:"trace_id"`
	Fields  []string `json:"fields,omitempty"`
}

// errorCase overrides the kind based status for one sentinel.
type errorCase struct {
	Err    error
	Status int
}

var errorCases = []errorCase{
	// A request without a cookie is refused, not challenged.
	{Err: usecase.ErrLoginRequired, Status: http.StatusForbidden},
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindValidationFailed:  http.StatusBadRequest,
	domain.KindUnauthenticated:   http.StatusUnprocessableEntity,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindConflict:          http.StatusConflict,
	domain.KindRateLimited:       http.StatusTooManyRequests,
	domain.KindNotFoundOrInvalid: http.StatusBadRequest,
	domain.KindPayloadTooLarge:   http.StatusRequestEntityTooLarge,
	domain.KindInternal:          http.StatusInternalServerError,
}

const internalMessage = "internal server error"

// StatusFor resolves the HTTP status an error is rendered with.
func StatusFor(err error) int {
	for _, cs := range errorCases {
		if errors.Is(err, cs.Err) {
			return cs.Status
		}
	}
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewErrorResponse renders err for the client. Internal errors never expose their cause.
func NewErrorResponse(c *gin.Context, err error) ErrorResponse {
	status := StatusFor(err)
	resp := ErrorResponse{Status: status, Message: internalMessage, TraceID: GetTraceID(c)}

	var de *domain.Error
	if status != http.StatusInternalServerError && errors.As(err, &de) {
		resp.Message = de.Message
		resp.Fields = de.Fields
	}
	return resp
}

// AbortWithError records err for the access log and writes the error body.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	resp := NewErrorResponse(c, err)
	c.AbortWithStatusJSON(resp.Status, resp)
}
