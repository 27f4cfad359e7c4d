package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// ErrPermanent marks provider rejections that will not succeed on retry,
// such as inactive or malformed recipient addresses.
var ErrPermanent = errors.New("mailer: permanent send failure")

// Postmark API error codes that indicate a bad recipient rather than a
// transient provider problem.
const (
	codeInvalidEmailRequest = 300
	codeInactiveRecipient   = 406
)

// EmailSender sends a single transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Config holds the Postmark credentials and sender identity.
type Config struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
}

type postmarkMailer struct {
	client *postmark.Client
	from   string
}

// NewPostmarkMailer creates a Postmark-backed email sender.
func NewPostmarkMailer(cfg Config) (EmailSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("mailer: server token is required")
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("mailer: sender email is required")
	}

	return &postmarkMailer{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:   cfg.SenderEmail,
	}, nil
}

// Send delivers the email through Postmark. Provider rejections that cannot
// succeed on retry are wrapped in ErrPermanent; everything else is returned
// as-is and treated as transient by the delivery worker.
func (m *postmarkMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode > 0 {
		if resp.ErrorCode == codeInvalidEmailRequest || resp.ErrorCode == codeInactiveRecipient {
			return fmt.Errorf("%w: postmark error %d: %s", ErrPermanent, resp.ErrorCode, resp.Message)
		}
		return fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// DevSender logs instead of sending; used when no Postmark tokens are
// configured.
type DevSender struct {
	Log func(to, subject string)
}

// Send implements EmailSender.
func (d *DevSender) Send(_ context.Context, to, subject, _ string) error {
	if d.Log != nil {
		d.Log(to, subject)
	}
	return nil
}
