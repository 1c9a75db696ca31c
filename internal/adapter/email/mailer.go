package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/config"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/retry"
)

// defaultTimeWindowHrs fills alerts that carry no window.
const defaultTimeWindowHrs = 12

// Sender delivers a rendered request.
type Sender interface {
	Send(ctx context.Context, req Request) (string, error)
}

// Mailer implements domain.AlertMailer.
type Mailer struct {
	sender  Sender
	catalog *i18n.Catalog
	from    string
	timeout time.Duration
	retry   retry.Config
	logger  *slog.Logger
}

// NewMailer creates a Mailer sending from the given address.
func NewMailer(sender Sender, catalog *i18n.Catalog, from string, timeout time.Duration, logger *slog.Logger) *Mailer {
	addr := (&mail.Address{Name: SenderName, Address: from}).String()
	return &Mailer{
		sender:  sender,
		catalog: catalog,
		from:    addr,
		timeout: timeout,
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
}

// WithRetry overrides the send retry policy.
func (m *Mailer) WithRetry(cfg retry.Config) *Mailer {
	m.retry = cfg
	return m
}

// SendHighRiskAlert emails the alert to the user. Failures are reported in
// the result.
func (m *Mailer) SendHighRiskAlert(ctx context.Context, user domain.User, alert domain.RiskEvent) domain.EmailResult {
	if strings.TrimSpace(user.Email) == "" {
		return domain.EmailResult{Error: "user has no email address"}
	}

	if alert.TimeWindowHrs <= 0 {
		alert.TimeWindowHrs = defaultTimeWindowHrs
	}
	// The alert's own SMS is what the user received; rebuild only when absent.
	sms := alert.SMSShort
	if strings.TrimSpace(sms) == "" {
		lang := m.catalog.Resolve(string(user.Language))
		sms = m.catalog.SMS(lang, alert.Band, alert.Location, alert.TimeWindowHrs, alert.Why, false)
	}
	content := newAlertContent(user, alert, sms)
	html, err := renderHTML(content)
	if err != nil {
		return domain.EmailResult{Error: err.Error()}
	}
	req := Request{
		From:    m.from,
		To:      []string{user.Email},
		Subject: Subject(alert.Location),
		Text:    renderText(content),
		HTML:    html,
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var id string
	err = retry.Do(ctx, m.retry, m.logger, "send high risk email", func(ctx context.Context) error {
		var sendErr error
		id, sendErr = m.sender.Send(ctx, req)
		return sendErr
	})
	if err != nil {
		return domain.EmailResult{Error: fmt.Errorf("%w: %w", domain.ErrCollaborator, err).Error()}
	}
	return domain.EmailResult{Success: true, MessageID: id}
}

// NewFromConfig builds the provider registry and mailer for cfg. It
// returns nil when email is disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, catalog *i18n.Catalog, logger *slog.Logger) (*Mailer, error) {
	if cfg.EmailProvider == config.EmailNone {
		return nil, nil
	}
	reg := NewRegistry(logger)
	reg.Register(NewSMTPProvider(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}))
	reg.Register(NewResendProvider(cfg.ResendAPIKey))
	if cfg.EmailProvider == config.EmailSES || cfg.EmailFallbackProvider == config.EmailSES {
		ses, err := NewSESProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		reg.Register(ses)
	}

	if err := reg.SetPrimary(cfg.EmailProvider); err != nil {
		return nil, err
	}
	if cfg.EmailFallbackProvider != "" && cfg.EmailFallbackProvider != config.EmailNone {
		if err := reg.SetFallback(cfg.EmailFallbackProvider); err != nil {
			return nil, err
		}
	}
	return NewMailer(reg, catalog, cfg.EmailFrom, cfg.EmailTimeout, logger), nil
}
