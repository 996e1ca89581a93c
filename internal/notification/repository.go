// internal/notification/repository.go

package notification

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrContactNotFound = errors.New("contact not found")

type Repository interface {
	SavePushToken(ctx context.Context, userID int64, token, platform string) error
	DeletePushToken(ctx context.Context, token string) error
	GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error)
	GetContact(ctx context.Context, userID int64) (*Contact, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) SavePushToken(ctx context.Context, userID int64, token, platform string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, token, platform, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    is_active = true,
		    updated_at = NOW()`,
		userID, token, platform,
	)
	return err
}

func (r *postgresRepository) DeletePushToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = $1`, token)
	return err
}

func (r *postgresRepository) GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error) {
	var tokens []*PushToken
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT id, user_id, token, platform, is_active, created_at, updated_at
		FROM push_tokens
		WHERE user_id = $1 AND is_active = true`,
		userID,
	)
	return tokens, err
}

func (r *postgresRepository) GetContact(ctx context.Context, userID int64) (*Contact, error) {
	var contact Contact
	err := r.db.GetContext(ctx, &contact, `
		SELECT id AS user_id, email, phone, notification_channel AS preferred_channel
		FROM users
		WHERE id = $1`,
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
