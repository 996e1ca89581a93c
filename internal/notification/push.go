// internal/notification/push.go
// FCM push channel

package notification

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	fcm "firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/tutorlink/tutorlink-backend/internal/messaging"
)

// PushSender delivers a note to one user's registered devices.
type PushSender interface {
	SendPush(ctx context.Context, userID int64, note *messaging.FallbackNote) error
}

type fcmPushSender struct {
	client *fcm.Client
	repo   Repository
}

// NewFCMPushSender creates the Firebase-backed push channel.
func NewFCMPushSender(credentialsPath string, repo Repository) (PushSender, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %v", err)
	}

	return &fcmPushSender{client: client, repo: repo}, nil
}

func (s *fcmPushSender) SendPush(ctx context.Context, userID int64, note *messaging.FallbackNote) error {
	tokens, err := s.repo.GetUserPushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens: %v", err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no push tokens for user %d", userID)
	}

	var lastErr error
	for _, token := range tokens {
		msg := &fcm.Message{
			Token: token.Token,
			Notification: &fcm.Notification{
				Title: note.Title,
				Body:  note.Body,
			},
			Data: note.Data,
		}
		if token.Platform == "android" {
			msg.Android = &fcm.AndroidConfig{Priority: "high"}
		}

		if _, err := s.client.Send(ctx, msg); err != nil {
			lastErr = err
			log.Printf("notification: push to token %s failed: %v", token.Token, err)

			// Dead tokens are pruned so we stop retrying them.
			if fcm.IsRegistrationTokenNotRegistered(err) {
				s.repo.DeletePushToken(ctx, token.Token)
			}
		}
	}
	return lastErr
}
