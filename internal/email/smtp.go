package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// =============================================================================
// SMTP Email Service Implementation
// =============================================================================

// SMTPEmailService sends emails via SMTP.
//
// This implementation works with:
// - Mailhog (development): No authentication required
// - Any standard SMTP relay (production): Uses username/password authentication
//
// Email templates are embedded in the binary and rendered with Go's
// html/template package.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger
}

// NewSMTPEmailService creates a new SMTP-based email service.
//
// Parameters:
// - config: SMTP server configuration
// - baseURL: Application base URL for constructing links (e.g., "http://localhost:8080")
// - logger: Structured logger for error reporting
func NewSMTPEmailService(
	config SMTPConfig,
	baseURL string,
	logger *slog.Logger,
) (*SMTPEmailService, error) {
	// Set defaults
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	// Load embedded email templates
	templates, err := template.New("email").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
	}, nil
}

// =============================================================================
// EmailService Interface Implementation
// =============================================================================

// SendVerificationEmail sends an email verification link to a new user.
func (s *SMTPEmailService) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)

	data := map[string]interface{}{
		"Name":      name,
		"VerifyURL": verifyURL,
		"Year":      time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("verification.html", data)
	if err != nil {
		return fmt.Errorf("failed to render verification email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Welcome to Forge! Please verify your email address by clicking the link below:

%s

This link will expire in 24 hours.

If you didn't create an account with Forge, you can safely ignore this email.

Thanks,
The Forge Team
`, name, verifyURL)

	email := Email{
		To:       to,
		Subject:  "Verify your Forge account",
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	return s.send(ctx, email)
}

// SendExportReadyEmail notifies a user that their PDF export is ready.
func (s *SMTPEmailService) SendExportReadyEmail(ctx context.Context, to, name, documentTitle, downloadURL string) error {
	data := map[string]interface{}{
		"Name":          name,
		"DocumentTitle": documentTitle,
		"DownloadURL":   downloadURL,
		"Year":          time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("export_ready.html", data)
	if err != nil {
		return fmt.Errorf("failed to render export ready email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your PDF export of "%s" is ready! You can download it here:

%s

Thanks,
The Forge Team
`, name, documentTitle, downloadURL)

	email := Email{
		To:       to,
		Subject:  "Your PDF export is ready",
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	return s.send(ctx, email)
}

// =============================================================================
// Internal Methods
// =============================================================================

// send sends an email via SMTP.
func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	// Build the email message
	msg := s.buildMessage(email)

	// Create SMTP address
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Create auth if credentials are provided (not needed for Mailhog)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	// Send the email
	err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg)
	if err != nil {
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)

	return nil
}

// buildMessage constructs the raw email message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	// From header with display name
	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	// Write headers
	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	// Create multipart message for HTML + text
	boundary := "===============FORGE_BOUNDARY==============="
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	// Plain text part
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	// HTML part
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTMLBody)
	buf.WriteString("\r\n")

	// End boundary
	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

// renderTemplate renders an email template with the given data.
func (s *SMTPEmailService) renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var _ EmailService = (*SMTPEmailService)(nil)
