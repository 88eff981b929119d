package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BradenHooton/lockbox/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// InviteMailer delivers account completion invites out of band
type InviteMailer interface {
	SendAccountInvite(ctx context.Context, email, username, token string, expiresAt time.Time) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends invites using AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// inviteLink builds the completion link carrying the sealed invite token
func inviteLink(baseURL, token string) string {
	return fmt.Sprintf("%s/complete-account?token=%s", baseURL, url.QueryEscape(token))
}

func inviteBodies(username, link string, expiresAt time.Time) (html, text string) {
	expiry := expiresAt.UTC().Format("Jan 2, 2006 15:04 MST")

	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h1>Finish setting up your Lockbox account</h1>
    <p>Hi %s,</p>
    <p>Open the link below from the device that holds your key pair. Your client
    will register your public key and activate the account.</p>
    <p><a href="%s">Complete account</a></p>
    <p>Or paste this invite token into your client:<br><code>%s</code></p>
    <p>The invite can be used once and expires on %s.</p>
    <p>If you did not sign up, ignore this email.</p>
</body>
</html>
`, username, link, link, expiry)

	text = fmt.Sprintf(`Finish setting up your Lockbox account

Hi %s,

Open the link below from the device that holds your key pair:

%s

The invite can be used once and expires on %s.

If you did not sign up, ignore this email.
`, username, link, expiry)

	return html, text
}

// SendAccountInvite emails the invite token to a new registrant
func (s *AWSSESEmailService) SendAccountInvite(ctx context.Context, email, username, token string, expiresAt time.Time) error {
	html, text := inviteBodies(username, inviteLink(s.baseURL, token), expiresAt)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Complete your Lockbox account"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(html),
				},
				Text: &types.Content{
					Data: aws.String(text),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("account invite sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService logs invites instead of sending them. Development only.
type LogEmailService struct {
	baseURL string
	logger  *slog.Logger
}

func NewLogEmailService(baseURL string, logger *slog.Logger) *LogEmailService {
	return &LogEmailService{baseURL: baseURL, logger: logger}
}

func (s *LogEmailService) SendAccountInvite(_ context.Context, email, username, token string, expiresAt time.Time) error {
	s.logger.Info("account invite (not sent)",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("username", username),
		slog.String("link", inviteLink(s.baseURL, token)),
		slog.Time("expires_at", expiresAt))
	return nil
}
