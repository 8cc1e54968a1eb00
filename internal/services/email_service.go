package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"path/filepath"

	"github.com/securecrop/backend/internal/config"
)

// Mailer delivers reset links and operator alerts out-of-band. The reset
// service only depends on this interface so tests can capture deliveries.
type Mailer interface {
	SendPasswordResetLink(to, username, resetURL string) error
	SendOperatorAlert(subject, body string) error
}

type EmailService struct {
	cfg       *config.Config
	templates map[string]*template.Template
}

func NewEmailService(cfg *config.Config) *EmailService {
	service := &EmailService{
		cfg:       cfg,
		templates: make(map[string]*template.Template),
	}

	// Load email templates
	service.loadTemplates()

	return service
}

// loadTemplates loads all email templates
func (s *EmailService) loadTemplates() {
	templateFiles := []string{
		"password_reset.html",
	}

	for _, file := range templateFiles {
		path := filepath.Join("templates", file)
		tmpl, err := template.ParseFiles(path)
		if err != nil {
			fmt.Printf("Failed to load template %s: %v\n", file, err)
			continue
		}
		s.templates[file] = tmpl
	}
}

// SendPasswordResetLink sends a styled HTML email carrying the one-time
// reset URL. This is the only place besides the token store that ever sees
// the raw token.
func (s *EmailService) SendPasswordResetLink(to, username, resetURL string) error {
	data := map[string]interface{}{
		"Username": username,
		"ResetURL": resetURL,
	}
	return s.sendEmail(to, "Password Reset Request - SecureCrop", "password_reset.html", data)
}

// SendOperatorAlert sends a plain text alert to the configured operator
// address. Used for faults that need a human, e.g. a consumed token whose
// credential update failed.
func (s *EmailService) SendOperatorAlert(subject, body string) error {
	if s.cfg.AdminAlertEmail == "" {
		return fmt.Errorf("no operator alert email configured")
	}

	from := fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom)
	message := fmt.Sprintf("From: %s\r\n", from)
	message += fmt.Sprintf("To: %s\r\n", s.cfg.AdminAlertEmail)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "Content-Type: text/plain; charset=\"UTF-8\"\r\n"
	message += "\r\n"
	message += body
	return s.sendSMTP(s.cfg.AdminAlertEmail, []byte(message))
}

// sendEmail sends an email using the specified template
func (s *EmailService) sendEmail(to, subject, templateName string, data interface{}) error {
	// Get template
	tmpl, exists := s.templates[templateName]
	if !exists {
		return fmt.Errorf("template %s not found", templateName)
	}

	// Execute template
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	// Prepare email
	from := fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom)

	// Build email message
	message := fmt.Sprintf("From: %s\r\n", from)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	message += "\r\n"
	message += body.String()

	// Send email
	return s.sendSMTP(to, []byte(message))
}

// sendSMTP sends an email via SMTP
func (s *EmailService) sendSMTP(to string, message []byte) error {
	// Setup authentication
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)

	// Connect to SMTP server
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	// For TLS connection (port 465)
	if s.cfg.SMTPPort == 465 {
		// Create TLS config
		tlsConfig := &tls.Config{
			ServerName: s.cfg.SMTPHost,
		}

		// Connect with TLS
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		defer conn.Close()

		// Create SMTP client
		client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
		defer client.Close()

		// Authenticate
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}

		// Set sender and recipient
		if err := client.Mail(s.cfg.SMTPFrom); err != nil {
			return err
		}
		if err := client.Rcpt(to); err != nil {
			return err
		}

		// Send message
		w, err := client.Data()
		if err != nil {
			return err
		}
		_, err = w.Write(message)
		if err != nil {
			return err
		}
		err = w.Close()
		if err != nil {
			return err
		}

		return client.Quit()
	}

	// For STARTTLS connection (port 587)
	return smtp.SendMail(addr, auth, s.cfg.SMTPFrom, []string{to}, message)
}
