// internal/notification/models.go

package notification

import (
	"time"
)

// PushToken represents a device push notification token
type PushToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact holds the out-of-band reachability info for one user, along with
// their preferred fallback channel.
type Contact struct {
	UserID           int64   `json:"user_id" db:"user_id"`
	Email            *string `json:"email" db:"email"`
	Phone            *string `json:"phone" db:"phone"`
	PreferredChannel string  `json:"preferred_channel" db:"preferred_channel"`
}

// Fallback channel names.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type RegisterPushTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}
