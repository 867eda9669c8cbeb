package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a log-only event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p.logger.Info("stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("account_id", accountID),
			zap.Time("timestamp", at.UTC()),
		}, fields...)...,
	)
}

func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.AccountID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("ip", logger.MaskIP(event.IPAddress)),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(EventPasswordResetRequested, event.AccountID, event.RequestedAt,
		zap.String("destination", event.MaskedDestination),
		zap.Time("expires_at", event.ExpiresAt),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.AccountID, event.ChangedAt, zap.String("changed_by", event.ChangedBy))
	return nil
}

func (p *StubPublisher) PublishSubmissionUploaded(_ context.Context, event domain.SubmissionUploadedEvent) error {
	p.logEvent(EventSubmissionUploaded, event.AccountID, event.UploadedAt,
		zap.String("location", event.Location),
		zap.Int64("size_bytes", event.SizeBytes),
	)
	return nil
}
