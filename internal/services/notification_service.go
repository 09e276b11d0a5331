// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/config"
	"github.com/javajoker/partner-catalog/internal/models"
)

type NotificationService struct {
	config *config.Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{
		config: config,
		send:   smtp.SendMail,
	}
}

// SendImportFailedNotification tells a shop owner that a scheduled refresh
// of their feed was rejected.
func (s *NotificationService) SendImportFailedNotification(user *models.User, imp *models.FeedImport) error {
	tmpl := s.getEmailTemplate("import_failed")

	data := map[string]interface{}{
		"Username":     user.Username,
		"URL":          imp.URL,
		"ErrorCode":    imp.ErrorCode,
		"ErrorMessage": imp.ErrorMessage,
		"StartedAt":    imp.StartedAt.Format("2006-01-02 15:04 MST"),
		"PlatformName": s.config.Email.FromName,
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, tmpl.Subject, body)
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("SMTP not configured, skipping email")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return s.send(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"import_failed": {
			Subject: "Feed update failed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Feed update failed</h2>
	<p>Hello {{.Username}},</p>
	<p>The scheduled update of your feed <a href="{{.URL}}">{{.URL}}</a> started at {{.StartedAt}} was rejected.</p>
	<p><b>{{.ErrorCode}}</b>: {{.ErrorMessage}}</p>
	<p>Your previous catalog is still published. Fix the feed and submit it again.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
