package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// SubmissionService stores uploaded work for an account.
type SubmissionService struct {
	store    port.SubmissionStore
	events   port.EventPublisher
	logger   *zap.Logger
	maxBytes int64
	now      func() time.Time
}

// NewSubmissionService constructs a submission service accepting uploads up to maxBytes.
func NewSubmissionService(store port.SubmissionStore, events port.EventPublisher, maxBytes int64, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{store: store, events: events, logger: logger, maxBytes: maxBytes, now: time.Now}
}

// MaxBytes is the upload size limit.
func (s *SubmissionService) MaxBytes() int64 {
	return s.maxBytes
}

// Submit stores body as the account's work, replacing any earlier upload.
func (s *SubmissionService) Submit(ctx context.Context, account *domain.Account, body io.Reader, size int64) (string, error) {
	if size > s.maxBytes {
		return "", ErrFileTooLarge
	}
	location, err := s.store.Put(ctx, account.ID, io.LimitReader(body, s.maxBytes+1), size)
	if err != nil {
		return "", domain.NewInternal(fmt.Errorf("store submission: %w", err))
	}

	publishEvent(s.logger, s.events, "submission.uploaded", func() error {
		return s.events.PublishSubmissionUploaded(ctx, domain.SubmissionUploadedEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Location:   location,
			SizeBytes:  size,
			UploadedAt: s.now().UTC(),
		})
	})
	s.logger.Info("submission stored", zap.String("account_id", account.ID), zap.Int64("size", size))
	return location, nil
}
