// internal/messaging/dispatcher.go
// The path from "message persisted" to "recipient informed"

package messaging

import (
	"context"
	"log"
	"strconv"
	"time"
)

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// NotificationFallback is the out-of-band alert channel used when the
// recipient has no live connection. Implementations own their transport and
// their own timeouts; errors never travel back to the sender.
type NotificationFallback interface {
	Send(ctx context.Context, userID int64, note *FallbackNote) error
}

// FallbackNote is the summary payload handed to the fallback channel.
type FallbackNote struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Dispatcher runs exactly once per successful append. It broadcasts the
// persisted message to the conversation room and, when the other participant
// is unreachable, fires the fallback notification.
type Dispatcher struct {
	hub           *Hub
	conversations ConversationRepository
	messages      MessageRepository
	directory     UserDirectory
	fallback      NotificationFallback
}

func NewDispatcher(hub *Hub, conversations ConversationRepository, messages MessageRepository, directory UserDirectory, fallback NotificationFallback) *Dispatcher {
	return &Dispatcher{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		directory:     directory,
		fallback:      fallback,
	}
}

// Dispatch never returns an error: by the time it runs the send has already
// succeeded from the caller's point of view. Live broadcast is best-effort
// with no retry; persistence is the delivery guarantee for anyone who missed
// the frame.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *Conversation, msg *Message) {
	if msg.Sender == nil {
		msg.Sender = d.senderInfo(ctx, msg.SenderID)
	}

	frame := NewFrame(EventNewMessage, NewMessageEvent{
		ConversationID: conv.ID,
		Message:        msg,
	})
	d.hub.BroadcastToRoom(ConversationRoom(conv.ID), frame, 0)

	recipients, err := d.recipients(ctx, conv, msg.SenderID)
	if err != nil {
		log.Printf("dispatcher: resolve recipients for conversation %d: %v", conv.ID, err)
		return
	}

	anyOnline := false
	for _, userID := range recipients {
		if d.hub.IsOnline(userID) {
			anyOnline = true
			continue
		}
		// Fire-and-forget; the fallback's own timeout bounds the call,
		// never the dispatcher's return to the sender.
		go d.notifyOffline(userID, msg)
	}

	// Delivered is synonymous with "a live recipient connection existed at
	// dispatch time". There is no acknowledgment round-trip.
	if anyOnline {
		if err := d.messages.MarkDelivered(ctx, msg.ID); err != nil {
			log.Printf("dispatcher: mark delivered for message %d: %v", msg.ID, err)
		} else {
			msg.Status = StatusDelivered
		}
	}
}

func (d *Dispatcher) recipients(ctx context.Context, conv *Conversation, senderID int64) ([]int64, error) {
	participants := conv.Participants
	if participants == nil {
		var err error
		participants, err = d.conversations.GetParticipants(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
	}

	var ids []int64
	for _, p := range participants {
		if p.UserID != senderID {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}

// notifyOffline builds the summary payload and invokes the fallback. Any
// error is logged and swallowed here: the user-visible send already
// succeeded.
func (d *Dispatcher) notifyOffline(userID int64, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	note := &FallbackNote{
		Title: msg.Sender.DisplayName,
		Body:  previewText(msg),
		Data: map[string]string{
			"type":            "message",
			"conversation_id": itoa64(msg.ConversationID),
			"message_id":      itoa64(msg.ID),
			"sender_id":       itoa64(msg.SenderID),
		},
	}

	if err := d.fallback.Send(ctx, userID, note); err != nil {
		fallbackNotifications.WithLabelValues("error").Inc()
		log.Printf("dispatcher: fallback notification for user %d failed: %v", userID, err)
		return
	}
	fallbackNotifications.WithLabelValues("ok").Inc()
}

func (d *Dispatcher) senderInfo(ctx context.Context, senderID int64) *UserInfo {
	info, err := d.directory.GetParticipant(ctx, senderID)
	if err != nil {
		// Directory failures degrade to a placeholder, never abort delivery.
		return &UserInfo{ID: senderID, DisplayName: "Unknown user"}
	}
	return info
}

// previewText summarizes a message for the fallback channel.
func previewText(msg *Message) string {
	if msg.Content != "" {
		// Truncate on a rune boundary so multi-byte text survives intact.
		if runes := []rune(msg.Content); len(runes) > 140 {
			return string(runes[:140])
		}
		return msg.Content
	}
	switch msg.Kind {
	case KindImage:
		return "Sent an image"
	case KindDocument:
		return "Sent a document"
	case KindAudio, KindVoice:
		return "Sent a voice message"
	case KindVideo:
		return "Sent a video"
	case KindBooking:
		return "Sent a session booking"
	case KindPayment:
		return "Sent a payment update"
	default:
		return "Sent a message"
	}
}
