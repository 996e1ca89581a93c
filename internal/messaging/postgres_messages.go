// internal/messaging/postgres_messages.go
// PostgreSQL implementation of the message store

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresMessageRepo struct {
	db *sqlx.DB
}

func NewPostgresMessageRepository(db *sqlx.DB) MessageRepository {
	return &postgresMessageRepo{db: db}
}

const messageColumns = `
	m.id, m.conversation_id, m.sender_id, m.content, m.kind, m.attachments,
	m.payload, m.reply_to_id, m.status, m.is_edited, m.edited_at,
	m.original_content, m.is_deleted, m.deleted_at, m.deleted_by,
	m.created_at, m.updated_at`

func (r *postgresMessageRepo) Create(ctx context.Context, m *Message) error {
	now := time.Now().UTC()
	m.Status = StatusSent
	m.CreatedAt = now
	m.UpdatedAt = now

	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages (
			conversation_id, sender_id, content, kind, attachments,
			payload, reply_to_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`,
		m.ConversationID, m.SenderID, m.Content, m.Kind, m.Attachments,
		m.Payload, m.ReplyToID, m.Status, now,
	).Scan(&m.ID)
}

func (r *postgresMessageRepo) Get(ctx context.Context, id int64) (*Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.id = $1`,
		id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// Page returns messages with created_at strictly before the cursor, newest
// first. Cursor paging stays stable while new messages keep arriving; an
// offset would shift under the reader.
func (r *postgresMessageRepo) Page(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `,
		       u.id, u.username, u.display_name, u.avatar_url, u.role
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1`
	args := []interface{}{conversationID}

	if before != nil {
		query += ` AND m.created_at < $2`
		args = append(args, *before)
	}
	query += ` ORDER BY m.created_at DESC LIMIT $` + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessageWithSender(rows)
		if err != nil {
			return nil, err
		}
		msg.Tombstone()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkRead inserts a read mark for every foreign message the reader has not
// marked yet, then advances those messages to read. The composite primary key
// on message_reads plus ON CONFLICT DO NOTHING makes concurrent calls from
// multiple devices of the same user converge without duplicates.
func (r *postgresMessageRepo) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $1, $2
		FROM messages m
		WHERE m.conversation_id = $3
		  AND m.sender_id <> $1
		  AND m.is_deleted = false
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		readerID, at, conversationID,
	)
	if err != nil {
		return 0, err
	}
	marked, _ := res.RowsAffected()

	// Status never regresses: only sent/delivered rows move to read.
	_, err = r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'read', updated_at = NOW()
		FROM message_reads mr
		WHERE mr.message_id = messages.id
		  AND mr.user_id = $1
		  AND messages.conversation_id = $2
		  AND messages.status IN ('sent', 'delivered')`,
		readerID, conversationID,
	)
	return int(marked), err
}

func (r *postgresMessageRepo) MarkDelivered(ctx context.Context, messageID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'delivered', updated_at = NOW()
		WHERE id = $1 AND status = 'sent'`,
		messageID,
	)
	return err
}

func (r *postgresMessageRepo) UnreadCount(ctx context.Context, userID int64, conversationID *int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = $1
		WHERE m.sender_id <> $1
		  AND m.is_deleted = false
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads mr
			WHERE mr.message_id = m.id AND mr.user_id = $1
		  )`
	args := []interface{}{userID}
	if conversationID != nil {
		query += ` AND m.conversation_id = $2`
		args = append(args, *conversationID)
	}

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *postgresMessageRepo) Edit(ctx context.Context, messageID int64, content string, at time.Time) error {
	// original_content keeps the pre-edit text from the first edit only.
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET original_content = COALESCE(original_content, content),
		    content = $1,
		    is_edited = true,
		    edited_at = $2,
		    updated_at = NOW()
		WHERE id = $3 AND is_deleted = false`,
		content, at, messageID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresMessageRepo) SoftDelete(ctx context.Context, messageID, deleterID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted = true, deleted_at = $1, deleted_by = $2, updated_at = NOW()
		WHERE id = $3 AND is_deleted = false`,
		at, deleterID, messageID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search runs a full-text match over non-deleted content in conversations the
// caller participates in, ranked by relevance then recency.
func (r *postgresMessageRepo) Search(ctx context.Context, userID int64, query string, conversationID *int64, limit int) ([]*Message, error) {
	sqlQuery := `
		SELECT ` + messageColumns + `,
		       u.id, u.username, u.display_name, u.avatar_url, u.role
		FROM messages m
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = $1
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.is_deleted = false
		  AND to_tsvector('simple', m.content) @@ plainto_tsquery('simple', $2)`
	args := []interface{}{userID, query}

	if conversationID != nil {
		sqlQuery += ` AND m.conversation_id = $3`
		args = append(args, *conversationID)
	}
	sqlQuery += `
		ORDER BY ts_rank(to_tsvector('simple', m.content), plainto_tsquery('simple', $2)) DESC,
		         m.created_at DESC
		LIMIT $` + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessageWithSender(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *postgresMessageRepo) ReadMarks(ctx context.Context, messageID int64) ([]*ReadMark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, read_at
		FROM message_reads
		WHERE message_id = $1
		ORDER BY read_at ASC`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []*ReadMark
	for rows.Next() {
		var mark ReadMark
		if err := rows.Scan(&mark.MessageID, &mark.UserID, &mark.ReadAt); err != nil {
			return nil, err
		}
		marks = append(marks, &mark)
	}
	return marks, rows.Err()
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Kind, &m.Attachments,
		&m.Payload, &m.ReplyToID, &m.Status, &m.IsEdited, &m.EditedAt,
		&m.OriginalContent, &m.IsDeleted, &m.DeletedAt, &m.DeletedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMessageWithSender(row rowScanner) (*Message, error) {
	var m Message
	var uid sql.NullInt64
	var username, displayName, role, avatar sql.NullString

	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Kind, &m.Attachments,
		&m.Payload, &m.ReplyToID, &m.Status, &m.IsEdited, &m.EditedAt,
		&m.OriginalContent, &m.IsDeleted, &m.DeletedAt, &m.DeletedBy,
		&m.CreatedAt, &m.UpdatedAt,
		&uid, &username, &displayName, &avatar, &role,
	)
	if err != nil {
		return nil, err
	}
	if uid.Valid {
		info := &UserInfo{
			ID:          uid.Int64,
			Username:    username.String,
			DisplayName: displayName.String,
			Role:        role.String,
		}
		if avatar.Valid {
			info.AvatarURL = &avatar.String
		}
		m.Sender = info
	}
	return &m, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
