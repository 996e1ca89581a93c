// internal/messaging/directory.go
// Read-only lookup used to format outbound payloads

package messaging

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// UserDirectory resolves display fields for participants. It is a consumed
// collaborator: account management lives elsewhere, this package only reads.
type UserDirectory interface {
	GetParticipant(ctx context.Context, userID int64) (*UserInfo, error)
}

type postgresDirectory struct {
	db *sqlx.DB
}

func NewPostgresDirectory(db *sqlx.DB) UserDirectory {
	return &postgresDirectory{db: db}
}

func (d *postgresDirectory) GetParticipant(ctx context.Context, userID int64) (*UserInfo, error) {
	var info UserInfo
	err := d.db.GetContext(ctx, &info, `
		SELECT id, username, display_name, avatar_url, role
		FROM users
		WHERE id = $1`,
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
