// internal/messaging/postgres.go
// PostgreSQL implementation of the conversation store

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresConversationRepo struct {
	db *sqlx.DB
}

func NewPostgresConversationRepository(db *sqlx.DB) ConversationRepository {
	return &postgresConversationRepo{db: db}
}

// PairKey gives the canonical key for an unordered user pair. A unique index
// on this column is what makes FindOrCreate race-safe.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

const conversationColumns = `
	id, pair_key, subject, last_message_id, last_activity,
	is_archived, is_pinned, is_active, created_by, created_at, updated_at`

func (r *postgresConversationRepo) FindOrCreate(ctx context.Context, creator, other int64, creatorRole, otherRole string, subject *string) (*Conversation, bool, error) {
	key := PairKey(creator, other)

	conv, err := r.getByPairKey(ctx, key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (pair_key, subject, last_activity, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $3, $3)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING id`,
		key, subject, now, creator,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race; the other writer's row is the conversation.
		tx.Rollback()
		conv, err := r.getByPairKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Both read cursors start at creation time.
	for _, p := range []struct {
		userID int64
		role   string
	}{{creator, creatorRole}, {other, otherRole}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at, last_read_at)
			VALUES ($1, $2, $3, $4, $4)`,
			id, p.userID, p.role, now,
		); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	conv, err = r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (r *postgresConversationRepo) getByPairKey(ctx context.Context, key string) (*Conversation, error) {
	var conv Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE pair_key = $1 AND is_active = true`,
		key,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *postgresConversationRepo) Get(ctx context.Context, id int64) (*Conversation, error) {
	var conv Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns the caller's active conversations, pinned first, then
// most recently active. Offset paging is fine here: per-user lists are small.
func (r *postgresConversationRepo) ListForUser(ctx context.Context, userID int64, page, limit int, includeArchived bool) ([]*Conversation, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `
		SELECT c.id, c.pair_key, c.subject, c.last_message_id, c.last_activity,
		       c.is_archived, c.is_pinned, c.is_active, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1 AND c.is_active = true`
	if !includeArchived {
		query += ` AND c.is_archived = false`
	}
	query += `
		ORDER BY c.is_pinned DESC, c.last_activity DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryxContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.StructScan(&conv); err != nil {
			return nil, err
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

func (r *postgresConversationRepo) GetParticipants(ctx context.Context, conversationID int64) ([]*Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.id, cp.conversation_id, cp.user_id, cp.role, cp.joined_at, cp.last_read_at,
		       u.id, u.username, u.display_name, u.avatar_url, u.role
		FROM conversation_participants cp
		LEFT JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = $1
		ORDER BY cp.joined_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		var p Participant
		var u UserInfo
		var uid sql.NullInt64
		var username, displayName, role sql.NullString
		var avatar sql.NullString

		if err := rows.Scan(
			&p.ID, &p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastReadAt,
			&uid, &username, &displayName, &avatar, &role,
		); err != nil {
			return nil, err
		}
		if uid.Valid {
			u.ID = uid.Int64
			u.Username = username.String
			u.DisplayName = displayName.String
			u.Role = role.String
			if avatar.Valid {
				u.AvatarURL = &avatar.String
			}
			p.User = &u
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (r *postgresConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`,
		conversationID, userID,
	).Scan(&exists)
	return exists, err
}

// TouchLastMessage blindly sets the cache fields. last_activity only moves
// forward via GREATEST so a delayed writer cannot rewind it.
func (r *postgresConversationRepo) TouchLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $1,
		    last_activity = GREATEST(last_activity, $2),
		    updated_at = NOW()
		WHERE id = $3`,
		messageID, at, conversationID,
	)
	return err
}

func (r *postgresConversationRepo) UpdateLastRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = GREATEST(last_read_at, $1)
		WHERE conversation_id = $2 AND user_id = $3`,
		at, conversationID, userID,
	)
	return err
}

func (r *postgresConversationRepo) SetArchived(ctx context.Context, conversationID int64, archived bool) error {
	return r.setFlag(ctx, conversationID, "is_archived", archived)
}

func (r *postgresConversationRepo) SetPinned(ctx context.Context, conversationID int64, pinned bool) error {
	return r.setFlag(ctx, conversationID, "is_pinned", pinned)
}

func (r *postgresConversationRepo) SetActive(ctx context.Context, conversationID int64, active bool) error {
	return r.setFlag(ctx, conversationID, "is_active", active)
}

func (r *postgresConversationRepo) setFlag(ctx context.Context, conversationID int64, column string, value bool) error {
	// column comes from the three callers above, never from input
	query := fmt.Sprintf(`UPDATE conversations SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	res, err := r.db.ExecContext(ctx, query, value, conversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
