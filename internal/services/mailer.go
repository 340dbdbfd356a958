package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SecurityMailer defines the interface for security notifications sent
// to account holders. All sends are best-effort side channels: a failed
// notification never aborts the state transition it accompanies.
type SecurityMailer interface {
	SendResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
	SendResetConfirmation(ctx context.Context, email string) error
	SendLockoutNotice(ctx context.Context, email string, unlockAt time.Time) error
	SendNewDeviceAlert(ctx context.Context, email, ipAddress, device string) error
}

// AWSSESMailer sends security emails using AWS SES
type AWSSESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESMailer creates a new AWS SES mailer
func NewAWSSESMailer(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESMailer, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

func (s *AWSSESMailer) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}

// SendResetEmail sends the password reset link. The plaintext token is
// embedded in the link and exists nowhere else.
func (s *AWSSESMailer) SendResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	expiry := time.Until(expiresAt).Round(time.Minute)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Reset Your Password</h2>
  <p>We received a request to reset the password for your account.</p>
  <p><a href="%s" style="display:inline-block;background-color:#0066cc;color:white;padding:12px 24px;text-decoration:none;border-radius:4px;">Reset Password</a></p>
  <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
  <p><strong>This link will expire in %s.</strong></p>
  <p>If you did not request a password reset, you can safely ignore this email. Your password will not be changed.</p>
</body>
</html>
`, resetLink, resetLink, expiry)

	textBody := fmt.Sprintf(`Reset Your Password

We received a request to reset the password for your account. Use the link below:

%s

This link will expire in %s.

If you did not request a password reset, you can safely ignore this email. Your password will not be changed.
`, resetLink, expiry)

	return s.send(ctx, email, "Reset your password", htmlBody, textBody)
}

// SendResetConfirmation confirms a completed password reset
func (s *AWSSESMailer) SendResetConfirmation(ctx context.Context, email string) error {
	htmlBody := `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your Password Was Changed</h2>
  <p>Your password was just reset. All of your active sessions have been signed out.</p>
  <p>If this was not you, please contact support immediately.</p>
</body>
</html>
`
	textBody := `Your Password Was Changed

Your password was just reset. All of your active sessions have been signed out.

If this was not you, please contact support immediately.
`
	return s.send(ctx, email, "Your password was changed", htmlBody, textBody)
}

// SendLockoutNotice informs the account holder their account was locked
func (s *AWSSESMailer) SendLockoutNotice(ctx context.Context, email string, unlockAt time.Time) error {
	when := unlockAt.UTC().Format(time.RFC1123)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your Account Was Temporarily Locked</h2>
  <p>Too many failed sign-in attempts were made against your account. It is locked until <strong>%s</strong>.</p>
  <p>If this was not you, we recommend resetting your password once the account unlocks.</p>
</body>
</html>
`, when)

	textBody := fmt.Sprintf(`Your Account Was Temporarily Locked

Too many failed sign-in attempts were made against your account. It is locked until %s.

If this was not you, we recommend resetting your password once the account unlocks.
`, when)

	return s.send(ctx, email, "Your account was temporarily locked", htmlBody, textBody)
}

// SendNewDeviceAlert informs the account holder of a first-seen device
func (s *AWSSESMailer) SendNewDeviceAlert(ctx context.Context, email, ipAddress, device string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>New Device Sign-In</h2>
  <p>Your account was just signed in from a device we have not seen before.</p>
  <p>Device: %s<br>IP address: %s</p>
  <p>If this was you, no action is needed. If not, please reset your password.</p>
</body>
</html>
`, device, ipAddress)

	textBody := fmt.Sprintf(`New Device Sign-In

Your account was just signed in from a device we have not seen before.

Device: %s
IP address: %s

If this was you, no action is needed. If not, please reset your password.
`, device, ipAddress)

	return s.send(ctx, email, "New device sign-in to your account", htmlBody, textBody)
}
