package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, also used as topic suffixes.
const (
	EventAccountRegistered      = "account.registered"
	EventPasswordResetRequested = "account.password_reset_requested"
	EventPasswordChanged        = "account.password_changed"
	EventSubmissionUploaded     = "submission.uploaded"
)

// EventPublisher implements port.EventPublisher on top of Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(accountID),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
		IPAddress    string    `json:"ip_address,omitempty"`
	}{
		AccountID:    event.AccountID,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		IPAddress:    event.IPAddress,
	}

	return p.publish(ctx, event.EventID, EventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
}

// PublishPasswordResetRequested publishes account.password_reset_requested events.
// Only the masked address leaves the service.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID         string    `json:"account_id"`
		MaskedDestination string    `json:"masked_destination"`
		RequestedAt       time.Time `json:"requested_at"`
		ExpiresAt         time.Time `json:"expires_at"`
		IPAddress         string    `json:"ip_address,omitempty"`
	}{
		AccountID:         event.AccountID,
		MaskedDestination: event.MaskedDestination,
		RequestedAt:       event.RequestedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
		IPAddress:         event.IPAddress,
	}

	return p.publish(ctx, event.EventID, EventPasswordResetRequested, event.AccountID, event.RequestedAt, payload)
}

// PublishPasswordChanged publishes account.password_changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID string    `json:"account_id"`
		ChangedAt time.Time `json:"changed_at"`
		ChangedBy string    `json:"changed_by"`
	}{
		AccountID: event.AccountID,
		ChangedAt: event.ChangedAt.UTC(),
		ChangedBy: event.ChangedBy,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.AccountID, event.ChangedAt, payload)
}

// PublishSubmissionUploaded publishes submission.uploaded events.
func (p *EventPublisher) PublishSubmissionUploaded(ctx context.Context, event domain.SubmissionUploadedEvent) error {
	payload := struct {
		AccountID  string    `json:"account_id"`
		Location   string    `json:"location"`
		SizeBytes  int64     `json:"size_bytes"`
		UploadedAt time.Time `json:"uploaded_at"`
	}{
		AccountID:  event.AccountID,
		Location:   event.Location,
		SizeBytes:  event.SizeBytes,
		UploadedAt: event.UploadedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventSubmissionUploaded, event.AccountID, event.UploadedAt, payload)
}
