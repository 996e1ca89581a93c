// internal/messaging/repository.go

package messaging

import (
	"context"
	"time"
)

// ConversationRepository owns the conversations and conversation_participants
// tables.
type ConversationRepository interface {
	// FindOrCreate returns the active conversation for the unordered pair
	// (creator, other), creating it when absent. Idempotent: racing calls
	// for the same pair converge on one row.
	FindOrCreate(ctx context.Context, creator, other int64, creatorRole, otherRole string, subject *string) (*Conversation, bool, error)

	Get(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64, page, limit int, includeArchived bool) ([]*Conversation, error)
	GetParticipants(ctx context.Context, conversationID int64) ([]*Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)

	// TouchLastMessage is a blind set-to-latest write of the last-message
	// cache; losing a race here is acceptable.
	TouchLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error

	UpdateLastRead(ctx context.Context, conversationID, userID int64, at time.Time) error
	SetArchived(ctx context.Context, conversationID int64, archived bool) error
	SetPinned(ctx context.Context, conversationID int64, pinned bool) error
	SetActive(ctx context.Context, conversationID int64, active bool) error
}

// MessageRepository owns the messages and message_reads tables.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	Get(ctx context.Context, id int64) (*Message, error)

	// Page returns non-deleted-content messages with createdAt strictly
	// before the cursor, newest first, at most limit rows.
	Page(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]*Message, error)

	// MarkRead inserts read marks for every message in the conversation not
	// authored by readerID and not yet marked by them, and advances those
	// messages' status to read. Safe to call repeatedly.
	MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int, error)

	// MarkDelivered advances status sent -> delivered; never regresses.
	MarkDelivered(ctx context.Context, messageID int64) error

	UnreadCount(ctx context.Context, userID int64, conversationID *int64) (int, error)
	Edit(ctx context.Context, messageID int64, content string, at time.Time) error
	SoftDelete(ctx context.Context, messageID, deleterID int64, at time.Time) error
	Search(ctx context.Context, userID int64, query string, conversationID *int64, limit int) ([]*Message, error)
	ReadMarks(ctx context.Context, messageID int64) ([]*ReadMark, error)
}
