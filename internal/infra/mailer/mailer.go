package mailer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
)

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
	logger *zap.Logger
}

// NewSMTPMailer builds a mailer from the smtp settings. Secure selects implicit TLS.
func NewSMTPMailer(cfg config.SMTPSettings, from string, log *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if from == "" {
		return nil, errors.New("mail sender address is required")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	dialer.SSL = cfg.Secure

	return &SMTPMailer{from: from, dialer: dialer, logger: log}, nil
}

// Send delivers one message. The SMTP exchange itself is not cancellable, so a
// cancelled context only stops the caller from waiting on it.
func (m *SMTPMailer) Send(ctx context.Context, msg port.MailMessage) error {
	if msg.To == "" {
		return errors.New("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(m.compose(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		m.logger.Debug("mail delivered", zap.String("to", logger.MaskEmail(msg.To)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) compose(msg port.MailMessage) *gomail.Message {
	out := gomail.NewMessage()
	out.SetHeader("From", m.from)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", msg.HTML)
	return out
}

// LogMailer only logs outgoing mail. Used when smtp is disabled.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a log-only mailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{logger: log}
}

func (m *LogMailer) Send(_ context.Context, msg port.MailMessage) error {
	m.logger.Info("smtp disabled, mail not sent",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	return nil
}
