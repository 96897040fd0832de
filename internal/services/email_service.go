package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsecheck/pulsecheck/pkg/logger"
	"github.com/pulsecheck/pulsecheck/pkg/mail"
	"github.com/pulsecheck/pulsecheck/pkg/metrics"
)

// EmailService renders and delivers the application's transactional emails.
// Every Send* method reports delivery success as a bool; a failed delivery
// is never fatal to the operation that triggered it.
type EmailService struct {
	mailer  mail.Mailer
	baseURL string
	appName string
	log     *zap.Logger
}

// NewEmailService constructs an EmailService. baseURL is the public frontend
// origin used to build verification and reset links.
func NewEmailService(mailer mail.Mailer, baseURL string) (*EmailService, error) {
	if mailer == nil {
		return nil, errors.New("email service: mailer is required")
	}
	return &EmailService{
		mailer:  mailer,
		baseURL: baseURL,
		appName: "PulseCheck",
		log:     logger.WithModule("email"),
	}, nil
}

// SendVerificationEmail delivers the email-verification link.
func (s *EmailService) SendVerificationEmail(ctx context.Context, to, token string) bool {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)

	msg := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s - Verify your email", s.appName),
		Body: fmt.Sprintf(
			"Welcome to %s!\r\n\r\nPlease verify your email address by visiting:\r\n%s\r\n\r\nThis link expires in 24 hours.\r\n",
			s.appName, link),
		HTMLBody: fmt.Sprintf(
			`<h2>Welcome to %s!</h2><p>Please verify your email address by clicking the link below:</p><p><a href=%q>Verify Email</a></p><p>This link expires in 24 hours.</p>`,
			s.appName, link),
	}

	return s.deliver(ctx, "verification", msg)
}

// SendPasswordResetEmail delivers the password-reset link.
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, to, token string) bool {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)

	msg := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s - Reset your password", s.appName),
		Body: fmt.Sprintf(
			"A password reset was requested for your %s account.\r\n\r\nReset your password here:\r\n%s\r\n\r\nThis link expires in 30 minutes. If you did not request this, you can ignore this email.\r\n",
			s.appName, link),
		HTMLBody: fmt.Sprintf(
			`<h2>Password reset</h2><p>A password reset was requested for your %s account.</p><p><a href=%q>Reset Password</a></p><p>This link expires in 30 minutes. If you did not request this, you can ignore this email.</p>`,
			s.appName, link),
	}

	return s.deliver(ctx, "password_reset", msg)
}

// SendInvitationEmail notifies someone they were invited to a team.
func (s *EmailService) SendInvitationEmail(ctx context.Context, to, teamName, inviterName string) bool {
	link := fmt.Sprintf("%s/invitations", s.baseURL)

	msg := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s - You have been invited to join %s", s.appName, teamName),
		Body: fmt.Sprintf(
			"%s invited you to join the team %q on %s.\r\n\r\nView your invitations:\r\n%s\r\n",
			inviterName, teamName, s.appName, link),
		HTMLBody: fmt.Sprintf(
			`<h2>Team invitation</h2><p>%s invited you to join the team <strong>%s</strong> on %s.</p><p><a href=%q>View Invitations</a></p>`,
			inviterName, teamName, s.appName, link),
	}

	return s.deliver(ctx, "invitation", msg)
}

func (s *EmailService) deliver(ctx context.Context, kind string, msg mail.Message) bool {
	if err := s.mailer.Send(ctx, msg); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("email delivery failed",
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
		metrics.EmailsSent.WithLabelValues(kind, "failed").Inc()
		return false
	}

	metrics.EmailsSent.WithLabelValues(kind, "sent").Inc()
	return true
}
