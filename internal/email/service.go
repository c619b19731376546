package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// Service sends transactional email through Resend or SMTP.
type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// NotificationData holds data for rendering an event notification.
type NotificationData struct {
	Username    string
	EventTitle  string
	EventDate   string
	Subject     string
	CurrentYear int
}

// NewService creates a new email service instance. When email is disabled
// messages are rendered and logged but not sent.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled && cfg.Provider == ProviderResend {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// Subject returns the subject line for a registration notification.
func Subject(kind events.NotificationKind, username, title string) string {
	switch kind {
	case events.NotificationCancelled:
		return fmt.Sprintf("%s, you have successfully cancelled the registered %s event!", username, title)
	default:
		return fmt.Sprintf("%s, you are successfully registered for the %s event!", username, title)
	}
}

// SendEventNotification tells a user their registration changed.
func (s *Service) SendEventNotification(ctx context.Context, to string, kind events.NotificationKind, data NotificationData) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	data.Subject = Subject(kind, data.Username, data.EventTitle)
	if data.CurrentYear == 0 {
		data.CurrentYear = time.Now().Year()
	}

	templateName := "registered.html"
	if kind == events.NotificationCancelled {
		templateName = "cancelled.html"
	}
	htmlBody, err := s.renderTemplate(templateName, data)
	if err != nil {
		return err
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("kind", string(kind)).
			Str("subject", data.Subject).
			Msg("email service disabled, skipping notification email")
		return nil
	}

	if err := s.send(ctx, to, data.Subject, htmlBody); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", kind, err)
	}

	s.logger.Info().
		Str("to", to).
		Str("kind", string(kind)).
		Msg("notification email sent")
	return nil
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	switch s.config.Provider {
	case ProviderResend:
		return s.sendViaResend(ctx, to, subject, htmlBody)
	case ProviderSMTP:
		return s.sendViaSMTP(to, subject, htmlBody)
	default:
		return fmt.Errorf("unknown email provider %q", s.config.Provider)
	}
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}

	return nil
}

// sendViaSMTP delivers over SMTP with STARTTLS.
func (s *Service) sendViaSMTP(to, subject, htmlBody string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	sender, err := mail.ParseAddress(s.config.From)
	if err != nil {
		return fmt.Errorf("invalid sender email: %w", err)
	}

	var msg bytes.Buffer
	headers := [][2]string{
		{"From", s.config.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	auth := smtp.PlainAuth("", s.config.SMTPUser, s.config.SMTPPassword, s.config.SMTPHost)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = client.Close() }()

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(sender.Address); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP connection: %w", err)
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
