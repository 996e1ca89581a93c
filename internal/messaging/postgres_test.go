// internal/messaging/postgres_test.go

package messaging

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func conversationRows(id int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "pair_key", "subject", "last_message_id", "last_activity",
		"is_archived", "is_pinned", "is_active", "created_by", "created_at", "updated_at",
	}).AddRow(id, "1:2", nil, nil, now, false, false, true, 1, now, now)
}

func TestPairKeyCanonicalOrder(t *testing.T) {
	if PairKey(2, 1) != "1:2" {
		t.Fatalf("PairKey(2,1) = %q, want 1:2", PairKey(2, 1))
	}
	if PairKey(1, 2) != PairKey(2, 1) {
		t.Fatalf("pair key must be order independent")
	}
}

func TestFindOrCreateReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresConversationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE pair_key = $1 AND is_active = true")).
		WithArgs("1:2").
		WillReturnRows(conversationRows(7))

	conv, created, err := repo.FindOrCreate(context.Background(), 2, 1, "tutor", "student", nil)
	if err != nil {
		t.Fatalf("find-or-create: %v", err)
	}
	if created {
		t.Fatalf("existing pair must not report created")
	}
	if conv.ID != 7 {
		t.Fatalf("expected conversation 7, got %d", conv.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConversationGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresConversationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.Get(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListForUserOrdersPinnedFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresConversationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "pair_key", "subject", "last_message_id", "last_activity",
		"is_archived", "is_pinned", "is_active", "created_by", "created_at", "updated_at",
	}).
		AddRow(2, "1:3", nil, nil, now.Add(-time.Hour), false, true, true, 1, now, now).
		AddRow(1, "1:2", nil, nil, now, false, false, true, 1, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY c.is_pinned DESC, c.last_activity DESC")).
		WithArgs(int64(1), 20, 0).
		WillReturnRows(rows)

	conversations, err := repo.ListForUser(context.Background(), 1, 1, 20, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conversations) != 2 || !conversations[0].IsPinned {
		t.Fatalf("expected the pinned conversation first, got %+v", conversations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTouchLastMessageUsesGreatest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresConversationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("last_activity = GREATEST(last_activity, $2)")).
		WithArgs(int64(10), at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchLastMessage(context.Background(), 3, 10, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetFlagNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresConversationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET is_pinned = $1")).
		WithArgs(true, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetPinned(context.Background(), 9, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestMarkDeliveredOnlyAdvancesSent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresMessageRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'sent'")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Zero rows touched (already delivered or read) is not an error.
	if err := repo.MarkDelivered(context.Background(), 5); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkReadIsIdempotentAtTheStore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresMessageRepository(db)

	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (message_id, user_id) DO NOTHING")).
		WithArgs(int64(1), at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("messages.status IN ('sent', 'delivered')")).
		WithArgs(int64(1), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	marked, err := repo.MarkRead(context.Background(), 4, 1, at)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if marked != 3 {
		t.Fatalf("expected 3 newly marked, got %d", marked)
	}

	// Second pass: nothing left to mark.
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (message_id, user_id) DO NOTHING")).
		WithArgs(int64(1), at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("messages.status IN ('sent', 'delivered')")).
		WithArgs(int64(1), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err = repo.MarkRead(context.Background(), 4, 1, at)
	if err != nil || marked != 0 {
		t.Fatalf("expected 0 newly marked on repeat, got %d (%v)", marked, err)
	}
}

func TestEditMissingMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresMessageRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND is_deleted = false")).
		WithArgs("new text", sqlmock.AnyArg(), int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Edit(context.Background(), 77, "new text", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
