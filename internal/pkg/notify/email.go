package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Capoen/BootcampsAPI/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现 SMTP 邮件发送。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendPasswordReset 发送重置密码邮件。
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, toEmail string, resetURL string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[BootcampsAPI] Password reset request")

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Password reset</h2>
    <p>You are receiving this email because you (or someone else) requested a password reset.</p>
    <p>Open the link below to choose a new password. The link expires in 10 minutes.</p>
    <p><a href="%s">%s</a></p>
    <p style="font-size: 12px; color: #6b7280;">If you did not request this, you can ignore this email.</p>
  </div>
</body>
</html>`, resetURL, resetURL)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("password reset email sent", slog.String("to", toEmail))
	return nil
}
