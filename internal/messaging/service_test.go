// internal/messaging/service_test.go

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// In-memory fakes. They honor the same contracts as the Postgres
// implementations: pair-key idempotence, forward-only status, tombstones.

type fakeConversationRepo struct {
	mu           sync.Mutex
	nextID       int64
	byID         map[int64]*Conversation
	byPair       map[string]int64
	participants map[int64][]*Participant
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:         make(map[int64]*Conversation),
		byPair:       make(map[string]int64),
		participants: make(map[int64][]*Participant),
	}
}

func (r *fakeConversationRepo) FindOrCreate(ctx context.Context, creator, other int64, creatorRole, otherRole string, subject *string) (*Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := PairKey(creator, other)
	if id, ok := r.byPair[key]; ok {
		return r.byID[id], false, nil
	}

	r.nextID++
	now := time.Now().UTC()
	conv := &Conversation{
		ID:           r.nextID,
		PairKey:      key,
		Subject:      subject,
		LastActivity: now,
		IsActive:     true,
		CreatedBy:    creator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[conv.ID] = conv
	r.byPair[key] = conv.ID
	r.participants[conv.ID] = []*Participant{
		{ConversationID: conv.ID, UserID: creator, Role: creatorRole, JoinedAt: now, LastReadAt: now},
		{ConversationID: conv.ID, UserID: other, Role: otherRole, JoinedAt: now, LastReadAt: now},
	}
	return conv, true, nil
}

func (r *fakeConversationRepo) Get(ctx context.Context, id int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *conv
	return &clone, nil
}

func (r *fakeConversationRepo) ListForUser(ctx context.Context, userID int64, page, limit int, includeArchived bool) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Conversation
	for id, conv := range r.byID {
		if !conv.IsActive || (conv.IsArchived && !includeArchived) {
			continue
		}
		for _, p := range r.participants[id] {
			if p.UserID == userID {
				clone := *conv
				out = append(out, &clone)
				break
			}
		}
	}
	// Pinned first, then most recently active, like the real store.
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (r *fakeConversationRepo) GetParticipants(ctx context.Context, conversationID int64) ([]*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Participant(nil), r.participants[conversationID]...), nil
}

func (r *fakeConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants[conversationID] {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeConversationRepo) TouchLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessageID = &messageID
	if at.After(conv.LastActivity) {
		conv.LastActivity = at
	}
	return nil
}

func (r *fakeConversationRepo) UpdateLastRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants[conversationID] {
		if p.UserID == userID && at.After(p.LastReadAt) {
			p.LastReadAt = at
		}
	}
	return nil
}

func (r *fakeConversationRepo) SetArchived(ctx context.Context, conversationID int64, archived bool) error {
	return r.setFlag(conversationID, func(c *Conversation) { c.IsArchived = archived })
}

func (r *fakeConversationRepo) SetPinned(ctx context.Context, conversationID int64, pinned bool) error {
	return r.setFlag(conversationID, func(c *Conversation) { c.IsPinned = pinned })
}

func (r *fakeConversationRepo) SetActive(ctx context.Context, conversationID int64, active bool) error {
	return r.setFlag(conversationID, func(c *Conversation) { c.IsActive = active })
}

func (r *fakeConversationRepo) setFlag(conversationID int64, apply func(*Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[conversationID]
	if !ok {
		return ErrNotFound
	}
	apply(conv)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*Message
	order    []int64
	reads    map[int64]map[int64]time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: make(map[int64]*Message),
		reads:    make(map[int64]map[int64]time.Time),
	}
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	m.ID = r.nextID
	m.Status = StatusSent
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	clone := *m
	r.messages[m.ID] = &clone
	r.order = append(r.order, m.ID)
	return nil
}

func (r *fakeMessageRepo) Get(ctx context.Context, id int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) Page(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Message
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.messages[r.order[i]]
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		clone := *m
		clone.Tombstone()
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	marked := 0
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.SenderID == readerID || m.IsDeleted {
			continue
		}
		if r.reads[m.ID] == nil {
			r.reads[m.ID] = make(map[int64]time.Time)
		}
		if _, ok := r.reads[m.ID][readerID]; ok {
			continue
		}
		r.reads[m.ID][readerID] = at
		if m.Status != StatusRead {
			m.Status = StatusRead
		}
		marked++
	}
	return marked, nil
}

func (r *fakeMessageRepo) MarkDelivered(ctx context.Context, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[messageID]; ok && m.Status == StatusSent {
		m.Status = StatusDelivered
	}
	return nil
}

func (r *fakeMessageRepo) UnreadCount(ctx context.Context, userID int64, conversationID *int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, m := range r.messages {
		if m.SenderID == userID || m.IsDeleted {
			continue
		}
		if conversationID != nil && m.ConversationID != *conversationID {
			continue
		}
		if _, ok := r.reads[m.ID][userID]; !ok {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) Edit(ctx context.Context, messageID int64, content string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.IsDeleted {
		return ErrNotFound
	}
	if m.OriginalContent == nil {
		original := m.Content
		m.OriginalContent = &original
	}
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &at
	return nil
}

func (r *fakeMessageRepo) SoftDelete(ctx context.Context, messageID, deleterID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.IsDeleted {
		return ErrNotFound
	}
	m.IsDeleted = true
	m.DeletedAt = &at
	m.DeletedBy = &deleterID
	return nil
}

func (r *fakeMessageRepo) Search(ctx context.Context, userID int64, query string, conversationID *int64, limit int) ([]*Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) ReadMarks(ctx context.Context, messageID int64) ([]*ReadMark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var marks []*ReadMark
	for userID, at := range r.reads[messageID] {
		marks = append(marks, &ReadMark{MessageID: messageID, UserID: userID, ReadAt: at})
	}
	return marks, nil
}

type fakeDirectory struct {
	users map[int64]*UserInfo
}

func (d *fakeDirectory) GetParticipant(ctx context.Context, userID int64) (*UserInfo, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

type fakeFallback struct {
	mu    sync.Mutex
	calls []int64
	err   error
	done  chan struct{}
}

func (f *fakeFallback) Send(ctx context.Context, userID int64, note *FallbackNote) error {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

func (f *fakeFallback) sentTo() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// test harness

const (
	studentID = int64(1)
	tutorID   = int64(2)
)

type serviceFixture struct {
	service       Service
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	hub           *Hub
	fallback      *fakeFallback
}

func newServiceFixture() *serviceFixture {
	conversations := newFakeConversationRepo()
	messages := newFakeMessageRepo()
	directory := &fakeDirectory{users: map[int64]*UserInfo{
		studentID: {ID: studentID, Username: "ada", DisplayName: "Ada", Role: "student"},
		tutorID:   {ID: tutorID, Username: "grace", DisplayName: "Grace", Role: "tutor"},
	}}
	hub := NewHub(NewRegistry())
	fallback := &fakeFallback{}

	dispatcher := NewDispatcher(hub, conversations, messages, directory, fallback)
	return &serviceFixture{
		service:       NewService(conversations, messages, directory, dispatcher),
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		fallback:      fallback,
	}
}

func (f *serviceFixture) startConversation(t *testing.T) *Conversation {
	t.Helper()
	conv, err := f.service.StartConversation(context.Background(), studentID, &StartConversationRequest{UserID: tutorID})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	return conv
}

// tests

func TestStartConversationIdempotent(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	first, err := f.service.StartConversation(ctx, studentID, &StartConversationRequest{UserID: tutorID})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	// Same pair from the other side lands on the same thread.
	second, err := f.service.StartConversation(ctx, tutorID, &StartConversationRequest{UserID: studentID})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one conversation for the pair, got %d and %d", first.ID, second.ID)
	}
	if len(second.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(second.Participants))
	}
}

func TestStartConversationWithSelf(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service.StartConversation(context.Background(), studentID, &StartConversationRequest{UserID: studentID})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartConversationUnknownUser(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service.StartConversation(context.Background(), studentID, &StartConversationRequest{UserID: 99})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSendMessageUpdatesConversation(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	msg, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Kind != KindText {
		t.Fatalf("expected default kind text, got %q", msg.Kind)
	}
	if msg.Status != StatusSent {
		t.Fatalf("expected status sent with nobody online, got %q", msg.Status)
	}

	updated, err := f.conversations.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if updated.LastMessageID == nil || *updated.LastMessageID != msg.ID {
		t.Fatalf("expected last message cache to point at %d", msg.ID)
	}
	if updated.LastActivity.Before(msg.CreatedAt) {
		t.Fatalf("last activity should not lag the newest message")
	}
}

func TestSendMessageOutsiderDenied(t *testing.T) {
	f := newServiceFixture()
	conv := f.startConversation(t)

	_, err := f.service.SendMessage(context.Background(), 99, &SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hi",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newServiceFixture()
	conv := f.startConversation(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *SendMessageRequest
	}{
		{"no content or attachment", &SendMessageRequest{ConversationID: conv.ID}},
		{"unknown kind", &SendMessageRequest{ConversationID: conv.ID, Content: "x", Kind: "carrier-pigeon"}},
		{"booking without payload", &SendMessageRequest{ConversationID: conv.ID, Content: "x", Kind: KindBooking}},
		{"system without event", &SendMessageRequest{ConversationID: conv.ID, Content: "x", Kind: KindSystem, Payload: json.RawMessage(`{}`)}},
	}
	for _, tc := range cases {
		if _, err := f.service.SendMessage(ctx, studentID, tc.req); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	// Attachment-only messages are fine.
	_, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{
		ConversationID: conv.ID,
		Kind:           KindImage,
		Attachments:    AttachmentList{{Name: "a.png", URL: "https://cdn/a.png", MimeType: "image/png"}},
	})
	if err != nil {
		t.Fatalf("attachment-only send failed: %v", err)
	}
}

func TestSendMessageReplyMustBeSameConversation(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	otherConv, _, err := f.conversations.FindOrCreate(ctx, studentID, 3, "student", "tutor", nil)
	if err != nil {
		t.Fatalf("create second conversation: %v", err)
	}

	foreign := &Message{ConversationID: otherConv.ID, SenderID: studentID, Content: "elsewhere", Kind: KindText}
	if err := f.messages.Create(ctx, foreign); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	_, err = f.service.SendMessage(ctx, studentID, &SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "reply",
		ReplyToID:      &foreign.ID,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for cross-conversation reply, got %v", err)
	}
}

func TestGetMessagesChronologicalWindow(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m := &Message{
			ConversationID: conv.ID,
			SenderID:       studentID,
			Content:        string(rune('a' + i)),
			Kind:           KindText,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := f.messages.Create(ctx, m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	window, err := f.service.GetMessages(ctx, conv.ID, studentID, nil, 3)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	// Newest three, oldest first.
	if window[0].Content != "c" || window[2].Content != "e" {
		t.Fatalf("unexpected window order: %q..%q", window[0].Content, window[2].Content)
	}

	// Page again from the oldest of the first window.
	cursor := window[0].CreatedAt
	older, err := f.service.GetMessages(ctx, conv.ID, studentID, &cursor, 3)
	if err != nil {
		t.Fatalf("older page: %v", err)
	}
	if len(older) != 2 || older[0].Content != "a" || older[1].Content != "b" {
		t.Fatalf("unexpected older window: %v", older)
	}
}

func TestMarkConversationReadIdempotent(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	for i := 0; i < 3; i++ {
		if _, err := f.service.SendMessage(ctx, tutorID, &SendMessageRequest{ConversationID: conv.ID, Content: "hi"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	count, err := f.service.UnreadCount(ctx, studentID, &conv.ID)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 unread, got %d (%v)", count, err)
	}

	if err := f.service.MarkConversationRead(ctx, conv.ID, studentID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, _ = f.service.UnreadCount(ctx, studentID, &conv.ID)
	if count != 0 {
		t.Fatalf("expected 0 unread after mark, got %d", count)
	}

	// Repeat call is a no-op.
	if err := f.service.MarkConversationRead(ctx, conv.ID, studentID); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	count, _ = f.service.UnreadCount(ctx, studentID, &conv.ID)
	if count != 0 {
		t.Fatalf("expected unread to stay 0, got %d", count)
	}

	// The sender's own messages never count against them.
	count, _ = f.service.UnreadCount(ctx, tutorID, &conv.ID)
	if count != 0 {
		t.Fatalf("sender should have 0 unread, got %d", count)
	}
}

func TestEditMessageRules(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	msg, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{ConversationID: conv.ID, Content: "first"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := f.service.EditMessage(ctx, msg.ID, tutorID, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-sender edit, got %v", err)
	}

	edited, err := f.service.EditMessage(ctx, msg.ID, studentID, "second")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.IsEdited || edited.Content != "second" {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if edited.OriginalContent == nil || *edited.OriginalContent != "first" {
		t.Fatalf("expected first edit to stash the original content")
	}

	// The second edit keeps the first original.
	edited, err = f.service.EditMessage(ctx, msg.ID, studentID, "third")
	if err != nil {
		t.Fatalf("second edit: %v", err)
	}
	if *edited.OriginalContent != "first" {
		t.Fatalf("original content must survive later edits, got %q", *edited.OriginalContent)
	}
}

func TestDeleteMessageTombstones(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	msg, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{ConversationID: conv.ID, Content: "secret"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := f.service.DeleteMessage(ctx, msg.ID, tutorID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-sender delete, got %v", err)
	}
	if err := f.service.DeleteMessage(ctx, msg.ID, studentID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	window, err := f.service.GetMessages(ctx, conv.ID, studentID, nil, 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("tombstoned row must stay in history, got %d rows", len(window))
	}
	if !window[0].IsDeleted || window[0].Content != "" {
		t.Fatalf("expected empty tombstone content, got %+v", window[0])
	}
}

func TestDeleteConversationHidesThread(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	if err := f.service.DeleteConversation(ctx, conv.ID, studentID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	if _, err := f.service.GetConversation(ctx, conv.ID, studentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found for deactivated conversation, got %v", err)
	}
	if _, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{ConversationID: conv.ID, Content: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found sending to deactivated conversation, got %v", err)
	}
}

func TestListConversationsPinnedFirstThenRecent(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	base := time.Now().UTC()
	var ids []int64
	for i, other := range []int64{2, 3, 4} {
		conv, _, err := f.conversations.FindOrCreate(ctx, studentID, other, "student", "tutor", nil)
		if err != nil {
			t.Fatalf("seed conversation: %v", err)
		}
		if err := f.conversations.TouchLastMessage(ctx, conv.ID, int64(i+1), base.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("touch: %v", err)
		}
		ids = append(ids, conv.ID)
	}

	// Pin the stalest thread; it must jump to the front anyway.
	if err := f.service.SetPinned(ctx, ids[0], studentID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}

	listed, err := f.service.ListConversations(ctx, studentID, 1, 20, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(listed))
	}
	if listed[0].ID != ids[0] {
		t.Fatalf("pinned conversation must come first, got %d", listed[0].ID)
	}
	// Unpinned tail: most recently active first.
	if listed[1].ID != ids[2] || listed[2].ID != ids[1] {
		t.Fatalf("unpinned conversations out of order: %d, %d", listed[1].ID, listed[2].ID)
	}
}

func TestGetMessagesIncludesReadMarks(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	conv := f.startConversation(t)

	msg, err := f.service.SendMessage(ctx, studentID, &SendMessageRequest{ConversationID: conv.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.service.MarkConversationRead(ctx, conv.ID, tutorID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	window, err := f.service.GetMessages(ctx, conv.ID, studentID, nil, 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(window) != 1 || window[0].ID != msg.ID {
		t.Fatalf("expected the sent message back, got %v", window)
	}
	marks := window[0].ReadBy
	if len(marks) != 1 || marks[0].UserID != tutorID {
		t.Fatalf("expected a read mark from the tutor, got %v", marks)
	}
}

func TestSearchMessagesEmptyQuery(t *testing.T) {
	f := newServiceFixture()
	if _, err := f.service.SearchMessages(context.Background(), studentID, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty query, got %v", err)
	}
}
