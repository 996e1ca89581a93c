// internal/messaging/models.go

package messaging

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Conversation is a durable 1:1 thread between a student and a tutor.
// LastMessageID is a cache of the newest message; the messages table is the
// source of truth for content and ordering.
type Conversation struct {
	ID            int64     `json:"id" db:"id"`
	PairKey       string    `json:"-" db:"pair_key"`
	Subject       *string   `json:"subject,omitempty" db:"subject"`
	LastMessageID *int64    `json:"last_message_id,omitempty" db:"last_message_id"`
	LastActivity  time.Time `json:"last_activity" db:"last_activity"`
	IsArchived    bool      `json:"is_archived" db:"is_archived"`
	IsPinned      bool      `json:"is_pinned" db:"is_pinned"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedBy     int64     `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`

	// Computed fields
	Participants []*Participant `json:"participants,omitempty"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCount  int            `json:"unread_count,omitempty"`
}

// Participant binds a user to a conversation with an independent read cursor.
// The participant set is fixed at creation time.
type Participant struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Role           string    `json:"role" db:"role"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
	LastReadAt     time.Time `json:"last_read_at" db:"last_read_at"`

	// Joined fields
	User *UserInfo `json:"user,omitempty"`
}

// MessageKind tags the variant a message carries.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindVoice    MessageKind = "voice"
	KindSystem   MessageKind = "system"
	KindBooking  MessageKind = "booking"
	KindPayment  MessageKind = "payment"
)

// ValidKind reports whether k is one of the supported message kinds.
func ValidKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindDocument, KindAudio, KindVideo,
		KindVoice, KindSystem, KindBooking, KindPayment:
		return true
	}
	return false
}

// Message status values. Status only moves forward: sent -> delivered -> read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message is one unit of communication inside a conversation.
type Message struct {
	ID              int64           `json:"id" db:"id"`
	ConversationID  int64           `json:"conversation_id" db:"conversation_id"`
	SenderID        int64           `json:"sender_id" db:"sender_id"`
	Content         string          `json:"content" db:"content"`
	Kind            MessageKind     `json:"kind" db:"kind"`
	Attachments     AttachmentList  `json:"attachments" db:"attachments"`
	Payload         json.RawMessage `json:"payload,omitempty" db:"payload"`
	ReplyToID       *int64          `json:"reply_to_id,omitempty" db:"reply_to_id"`
	Status          string          `json:"status" db:"status"`
	IsEdited        bool            `json:"is_edited" db:"is_edited"`
	EditedAt        *time.Time      `json:"edited_at,omitempty" db:"edited_at"`
	OriginalContent *string         `json:"original_content,omitempty" db:"original_content"`
	IsDeleted       bool            `json:"is_deleted" db:"is_deleted"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy       *int64          `json:"deleted_by,omitempty" db:"deleted_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	// Computed fields
	Sender *UserInfo   `json:"sender,omitempty"`
	ReadBy []*ReadMark `json:"read_by,omitempty"`
}

// Tombstone hides content and attachments from readers while keeping the row
// for reply_to referential integrity.
func (m *Message) Tombstone() {
	if !m.IsDeleted {
		return
	}
	m.Content = ""
	m.Attachments = nil
	m.Payload = nil
	m.OriginalContent = nil
}

// Attachment describes one file attached to a message.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Duration int    `json:"duration,omitempty"`
}

// AttachmentList is stored as a jsonb column.
type AttachmentList []Attachment

// Value implements driver.Valuer for the jsonb column.
func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for the jsonb column.
func (a *AttachmentList) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("attachments: unexpected column type %T", src)
	}
	return json.Unmarshal(b, a)
}

// ReadMark is one entry of a message's append-only readBy set.
type ReadMark struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}

// UserInfo is the projection of a user the directory exposes to this package.
type UserInfo struct {
	ID          int64   `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"display_name" db:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty" db:"avatar_url"`
	Role        string  `json:"role" db:"role"`
}

// Per-kind payloads replacing the open-ended metadata blob of older clients.

// SystemPayload carries automated announcements (session reminders etc).
type SystemPayload struct {
	Event string `json:"event"`
	Text  string `json:"text,omitempty"`
}

// BookingPayload references a tutoring session negotiated in chat.
type BookingPayload struct {
	BookingID int64     `json:"booking_id"`
	SubjectID int64     `json:"subject_id,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Duration  int       `json:"duration_minutes"`
	Status    string    `json:"status"`
}

// PaymentPayload references an escrow event surfaced in chat.
type PaymentPayload struct {
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount_cents"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

// Request DTOs

type SendMessageRequest struct {
	ConversationID int64           `json:"conversation_id" validate:"required"`
	Content        string          `json:"content" validate:"max=8000"`
	Kind           MessageKind     `json:"kind"`
	Attachments    AttachmentList  `json:"attachments,omitempty" validate:"max=10"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ReplyToID      *int64          `json:"reply_to_id,omitempty"`
}

type StartConversationRequest struct {
	UserID  int64   `json:"user_id" validate:"required"`
	Subject *string `json:"subject,omitempty" validate:"omitempty,max=200"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}
