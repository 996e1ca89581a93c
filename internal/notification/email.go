// internal/notification/email.go
// SendGrid email channel

package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tutorlink/tutorlink-backend/internal/messaging"
)

// EmailSender delivers a note to a user's email address.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, note *messaging.FallbackNote) error
}

type sendGridEmailSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridEmailSender creates the SendGrid-backed email channel.
func NewSendGridEmailSender(apiKey, from, fromName string) EmailSender {
	return &sendGridEmailSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (s *sendGridEmailSender) SendEmail(ctx context.Context, to string, note *messaging.FallbackNote) error {
	fromAddr := mail.NewEmail(s.fromName, s.from)
	toAddr := mail.NewEmail("", to)

	subject := fmt.Sprintf("New message from %s", note.Title)
	plain := note.Body
	html := fmt.Sprintf("<p><strong>%s</strong></p><p>%s</p>", note.Title, note.Body)

	message := mail.NewSingleEmail(fromAddr, subject, toAddr, plain, html)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	log.Printf("notification: email sent to %s", to)
	return nil
}
