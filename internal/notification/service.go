// internal/notification/service.go
// NotificationFallback implementation: pick a channel per recipient

package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/tutorlink/tutorlink-backend/internal/messaging"
)

// Service implements messaging.NotificationFallback. It resolves the
// recipient's contact record, picks their preferred channel, and falls back
// to push when no preference is set. Errors are returned to the dispatcher,
// which logs and swallows them; nothing here ever reaches the sender.
type Service struct {
	repo  Repository
	push  PushSender
	email EmailSender
	sms   SMSSender
}

func NewService(repo Repository, push PushSender, email EmailSender, sms SMSSender) *Service {
	return &Service{
		repo:  repo,
		push:  push,
		email: email,
		sms:   sms,
	}
}

var _ messaging.NotificationFallback = (*Service)(nil)

func (s *Service) Send(ctx context.Context, userID int64, note *messaging.FallbackNote) error {
	contact, err := s.repo.GetContact(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve contact for user %d: %w", userID, err)
	}

	switch contact.PreferredChannel {
	case ChannelEmail:
		if s.email == nil || contact.Email == nil {
			return s.sendPush(ctx, userID, note)
		}
		return s.email.SendEmail(ctx, *contact.Email, note)

	case ChannelSMS:
		if s.sms == nil || contact.Phone == nil {
			return s.sendPush(ctx, userID, note)
		}
		return s.sms.SendSMS(ctx, *contact.Phone, note)

	default:
		return s.sendPush(ctx, userID, note)
	}
}

func (s *Service) sendPush(ctx context.Context, userID int64, note *messaging.FallbackNote) error {
	if s.push == nil {
		return fmt.Errorf("no push channel configured")
	}
	return s.push.SendPush(ctx, userID, note)
}

// RegisterToken stores a device token for the push channel.
func (s *Service) RegisterToken(ctx context.Context, userID int64, req *RegisterPushTokenRequest) error {
	return s.repo.SavePushToken(ctx, userID, req.Token, req.Platform)
}

// UnregisterToken drops a device token.
func (s *Service) UnregisterToken(ctx context.Context, token string) error {
	return s.repo.DeletePushToken(ctx, token)
}

// Mock is a no-op fallback for development and tests.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Send(ctx context.Context, userID int64, note *messaging.FallbackNote) error {
	log.Printf("notification (mock): user %d: %s - %s", userID, note.Title, note.Body)
	return nil
}
