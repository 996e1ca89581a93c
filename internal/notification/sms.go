// internal/notification/sms.go
// Twilio SMS channel

package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/tutorlink/tutorlink-backend/internal/messaging"
)

// SMSSender delivers a note to a user's phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, note *messaging.FallbackNote) error
}

type twilioSMSSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSSender creates the Twilio-backed SMS channel.
func NewTwilioSMSSender(accountSID, authToken, from string) SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &twilioSMSSender{client: client, from: from}
}

func (s *twilioSMSSender) SendSMS(ctx context.Context, to string, note *messaging.FallbackNote) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("%s: %s", note.Title, note.Body))

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return err
	}
	if resp.Sid != nil {
		log.Printf("notification: SMS sent to %s (sid %s)", to, *resp.Sid)
	}
	return nil
}
