package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

const (
	workFormField = "work"
	// multipartOverhead leaves room for part headers and boundaries around the file.
	multipartOverhead = 1 << 20
)

// SubmissionHandler accepts the team's work archive.
type SubmissionHandler struct {
	submissions *usecase.SubmissionService
}

func NewSubmissionHandler(submissions *usecase.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit reads the multipart field "work" and stores it.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	req := middleware.AccessFrom(c)
	if req.Account == nil {
		middleware.AbortWithError(c, usecase.ErrLoginRequired)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.submissions.MaxBytes()+multipartOverhead)

	header, err := c.FormFile(workFormField)
	if err != nil {
		middleware.AbortWithError(c, uploadError(err))
		return
	}
	if header.Size > h.submissions.MaxBytes() {
		middleware.AbortWithError(c, usecase.ErrFileTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		middleware.AbortWithError(c, domain.NewInternal(err))
		return
	}
	defer file.Close()

	if _, err := h.submissions.Submit(c.Request.Context(), req.Account, file, header.Size); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return usecase.ErrFileTooLarge
	case errors.Is(err, http.ErrMissingFile):
		return usecase.ErrMissingUpload
	default:
		return domain.NewValidationFailed(usecase.ErrMalformedBody.Message, []string{workFormField}, err)
	}
}
