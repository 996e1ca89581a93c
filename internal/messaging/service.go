// internal/messaging/service.go

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	searchLimit      = 50
)

type Service interface {
	// Conversations
	StartConversation(ctx context.Context, userID int64, req *StartConversationRequest) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64, page, limit int, includeArchived bool) ([]*Conversation, error)
	MarkConversationRead(ctx context.Context, conversationID, userID int64) error
	SetArchived(ctx context.Context, conversationID, userID int64, archived bool) error
	SetPinned(ctx context.Context, conversationID, userID int64, pinned bool) error
	DeleteConversation(ctx context.Context, conversationID, userID int64) error
	EnsureParticipant(ctx context.Context, conversationID, userID int64) error

	// Messages
	SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error)
	GetMessages(ctx context.Context, conversationID, userID int64, before *time.Time, limit int) ([]*Message, error)
	UnreadCount(ctx context.Context, userID int64, conversationID *int64) (int, error)
	EditMessage(ctx context.Context, messageID, editorID int64, content string) (*Message, error)
	DeleteMessage(ctx context.Context, messageID, deleterID int64) error
	SearchMessages(ctx context.Context, userID int64, query string, conversationID *int64) ([]*Message, error)
}

type messagingService struct {
	conversations ConversationRepository
	messages      MessageRepository
	directory     UserDirectory
	dispatcher    *Dispatcher
}

func NewService(conversations ConversationRepository, messages MessageRepository, directory UserDirectory, dispatcher *Dispatcher) Service {
	return &messagingService{
		conversations: conversations,
		messages:      messages,
		directory:     directory,
		dispatcher:    dispatcher,
	}
}

// StartConversation finds or creates the thread for the caller and one other
// user. Calling it twice for the same pair returns the same conversation.
func (s *messagingService) StartConversation(ctx context.Context, userID int64, req *StartConversationRequest) (*Conversation, error) {
	if req.UserID == userID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	caller, err := s.directory.GetParticipant(ctx, userID)
	if err != nil {
		return nil, unavailable("directory lookup", err)
	}
	other, err := s.directory.GetParticipant(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, req.UserID)
	}

	conv, created, err := s.conversations.FindOrCreate(ctx, userID, req.UserID, caller.Role, other.Role, req.Subject)
	if err != nil {
		return nil, unavailable("find-or-create conversation", err)
	}
	if created {
		conversationsStarted.Inc()
	}
	return s.hydrate(ctx, conv, userID)
}

func (s *messagingService) GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error) {
	conv, err := s.getActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, conv, userID)
}

func (s *messagingService) ListConversations(ctx context.Context, userID int64, page, limit int, includeArchived bool) ([]*Conversation, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = 20
	}
	conversations, err := s.conversations.ListForUser(ctx, userID, page, limit, includeArchived)
	if err != nil {
		return nil, unavailable("list conversations", err)
	}
	for _, conv := range conversations {
		if _, err := s.hydrate(ctx, conv, userID); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

// MarkConversationRead advances the caller's read cursor and read-marks every
// foreign message. Idempotent: once caught up, repeat calls change nothing.
func (s *messagingService) MarkConversationRead(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.getActive(ctx, conversationID); err != nil {
		return err
	}
	if err := s.EnsureParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := s.messages.MarkRead(ctx, conversationID, userID, now); err != nil {
		return unavailable("mark read", err)
	}
	if err := s.conversations.UpdateLastRead(ctx, conversationID, userID, now); err != nil {
		return unavailable("update read cursor", err)
	}
	return nil
}

func (s *messagingService) SetArchived(ctx context.Context, conversationID, userID int64, archived bool) error {
	if err := s.authorizeFlag(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.SetArchived(ctx, conversationID, archived); err != nil {
		return unavailable("set archived", err)
	}
	return nil
}

func (s *messagingService) SetPinned(ctx context.Context, conversationID, userID int64, pinned bool) error {
	if err := s.authorizeFlag(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.SetPinned(ctx, conversationID, pinned); err != nil {
		return unavailable("set pinned", err)
	}
	return nil
}

// DeleteConversation flags the thread inactive. Nothing is ever hard-deleted.
func (s *messagingService) DeleteConversation(ctx context.Context, conversationID, userID int64) error {
	if err := s.authorizeFlag(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.SetActive(ctx, conversationID, false); err != nil {
		return unavailable("deactivate conversation", err)
	}
	return nil
}

func (s *messagingService) EnsureParticipant(ctx context.Context, conversationID, userID int64) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return unavailable("participant check", err)
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// SendMessage validates, persists, updates the conversation cache, and hands
// the persisted message to the dispatcher. Validation and authorization run
// before any write; nothing partial is left behind on those failures.
func (s *messagingService) SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error) {
	if req.Kind == "" {
		req.Kind = KindText
	}
	if err := validateMessage(req); err != nil {
		return nil, err
	}

	conv, err := s.getActive(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureParticipant(ctx, req.ConversationID, senderID); err != nil {
		return nil, err
	}

	if req.ReplyToID != nil {
		parent, err := s.messages.Get(ctx, *req.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("%w: reply target", ErrNotFound)
		}
		if parent.ConversationID != req.ConversationID {
			return nil, fmt.Errorf("%w: reply target belongs to another conversation", ErrValidation)
		}
	}

	msg := &Message{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        req.Content,
		Kind:           req.Kind,
		Attachments:    req.Attachments,
		Payload:        req.Payload,
		ReplyToID:      req.ReplyToID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, unavailable("persist message", err)
	}
	messagesSent.WithLabelValues(string(msg.Kind)).Inc()

	// Blind set-to-latest write. The message row is already durable; if a
	// racing append wins this update, the cache still points at a real
	// message and ordering is recoverable from the message store.
	if err := s.conversations.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		log.Printf("messaging: last-message update for conversation %d failed: %v", conv.ID, err)
	}

	if sender, err := s.directory.GetParticipant(ctx, senderID); err == nil {
		msg.Sender = sender
	}

	s.dispatcher.Dispatch(ctx, conv, msg)

	return msg, nil
}

// GetMessages pages backward from the cursor and returns the window in
// chronological order for rendering.
func (s *messagingService) GetMessages(ctx context.Context, conversationID, userID int64, before *time.Time, limit int) ([]*Message, error) {
	if _, err := s.getActive(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := s.EnsureParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	messages, err := s.messages.Page(ctx, conversationID, before, limit)
	if err != nil {
		return nil, unavailable("page messages", err)
	}

	// Newest-first from the store, oldest-first for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	for _, msg := range messages {
		if marks, err := s.messages.ReadMarks(ctx, msg.ID); err == nil {
			msg.ReadBy = marks
		}
	}
	return messages, nil
}

func (s *messagingService) UnreadCount(ctx context.Context, userID int64, conversationID *int64) (int, error) {
	count, err := s.messages.UnreadCount(ctx, userID, conversationID)
	if err != nil {
		return 0, unavailable("unread count", err)
	}
	return count, nil
}

// EditMessage is restricted to the original sender. The first edit stashes
// the original content; later edits keep that first original.
func (s *messagingService) EditMessage(ctx context.Context, messageID, editorID int64, content string) (*Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidation)
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, ErrForbidden
	}
	if msg.IsDeleted {
		return nil, ErrNotFound
	}

	if err := s.messages.Edit(ctx, messageID, content, time.Now().UTC()); err != nil {
		return nil, unavailable("edit message", err)
	}
	return s.messages.Get(ctx, messageID)
}

// DeleteMessage tombstones: the row stays so reply_to pointers keep
// resolving, but content and attachments are hidden from readers.
func (s *messagingService) DeleteMessage(ctx context.Context, messageID, deleterID int64) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != deleterID {
		return ErrForbidden
	}

	if err := s.messages.SoftDelete(ctx, messageID, deleterID, time.Now().UTC()); err != nil {
		return unavailable("delete message", err)
	}
	return nil
}

func (s *messagingService) SearchMessages(ctx context.Context, userID int64, query string, conversationID *int64) ([]*Message, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	messages, err := s.messages.Search(ctx, userID, query, conversationID, searchLimit)
	if err != nil {
		return nil, unavailable("search messages", err)
	}
	return messages, nil
}

// helpers

func (s *messagingService) getActive(ctx context.Context, conversationID int64) (*Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *messagingService) authorizeFlag(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.getActive(ctx, conversationID); err != nil {
		return err
	}
	return s.EnsureParticipant(ctx, conversationID, userID)
}

func (s *messagingService) hydrate(ctx context.Context, conv *Conversation, userID int64) (*Conversation, error) {
	participants, err := s.conversations.GetParticipants(ctx, conv.ID)
	if err != nil {
		return nil, unavailable("load participants", err)
	}
	conv.Participants = participants

	if conv.LastMessageID != nil {
		if last, err := s.messages.Get(ctx, *conv.LastMessageID); err == nil {
			last.Tombstone()
			conv.LastMessage = last
		}
	}

	id := conv.ID
	if count, err := s.messages.UnreadCount(ctx, userID, &id); err == nil {
		conv.UnreadCount = count
	}
	return conv, nil
}

// validateMessage enforces the content-or-attachment rule and the per-kind
// payload shapes.
func validateMessage(req *SendMessageRequest) error {
	if !ValidKind(req.Kind) {
		return fmt.Errorf("%w: unknown message kind %q", ErrValidation, req.Kind)
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return fmt.Errorf("%w: message needs content or at least one attachment", ErrValidation)
	}

	switch req.Kind {
	case KindSystem:
		var p SystemPayload
		if err := decodePayload(req.Payload, &p); err != nil || p.Event == "" {
			return fmt.Errorf("%w: system message needs an event payload", ErrValidation)
		}
	case KindBooking:
		var p BookingPayload
		if err := decodePayload(req.Payload, &p); err != nil || p.BookingID == 0 {
			return fmt.Errorf("%w: booking message needs a booking payload", ErrValidation)
		}
	case KindPayment:
		var p PaymentPayload
		if err := decodePayload(req.Payload, &p); err != nil || p.PaymentID == 0 {
			return fmt.Errorf("%w: payment message needs a payment payload", ErrValidation)
		}
	default:
		// Plain kinds carry no tagged payload.
		req.Payload = nil
	}
	return nil
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(raw, dst)
}
