// internal/messaging/dispatcher_test.go

package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newDispatcherFixture(fallback *fakeFallback) (*Dispatcher, *fakeConversationRepo, *fakeMessageRepo, *Hub) {
	conversations := newFakeConversationRepo()
	messages := newFakeMessageRepo()
	directory := &fakeDirectory{users: map[int64]*UserInfo{
		studentID: {ID: studentID, Username: "ada", DisplayName: "Ada", Role: "student"},
		tutorID:   {ID: tutorID, Username: "grace", DisplayName: "Grace", Role: "tutor"},
	}}
	hub := NewHub(NewRegistry())
	return NewDispatcher(hub, conversations, messages, directory, fallback), conversations, messages, hub
}

func seedConversationAndMessage(t *testing.T, conversations *fakeConversationRepo, messages *fakeMessageRepo, content string) (*Conversation, *Message) {
	t.Helper()
	ctx := context.Background()

	conv, _, err := conversations.FindOrCreate(ctx, studentID, tutorID, "student", "tutor", nil)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	msg := &Message{ConversationID: conv.ID, SenderID: studentID, Content: content, Kind: KindText}
	if err := messages.Create(ctx, msg); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return conv, msg
}

func waitForFallback(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fallback was never invoked")
	}
}

func TestDispatchOfflineRecipientGetsFallback(t *testing.T) {
	fallback := &fakeFallback{done: make(chan struct{}, 1)}
	dispatcher, conversations, messages, _ := newDispatcherFixture(fallback)
	conv, msg := seedConversationAndMessage(t, conversations, messages, "are you there?")

	dispatcher.Dispatch(context.Background(), conv, msg)
	waitForFallback(t, fallback.done)

	sent := fallback.sentTo()
	if len(sent) != 1 || sent[0] != tutorID {
		t.Fatalf("expected one fallback to the tutor, got %v", sent)
	}
	if msg.Status != StatusSent {
		t.Fatalf("no live recipient: status must stay sent, got %q", msg.Status)
	}
}

func TestDispatchOnlineRecipientMarksDelivered(t *testing.T) {
	fallback := &fakeFallback{}
	dispatcher, conversations, messages, hub := newDispatcherFixture(fallback)
	conv, msg := seedConversationAndMessage(t, conversations, messages, "ping")

	recipient := newTestClient(tutorID, "tutor")
	hub.registerClient(recipient)
	hub.Join(recipient, ConversationRoom(conv.ID))

	dispatcher.Dispatch(context.Background(), conv, msg)

	if msg.Status != StatusDelivered {
		t.Fatalf("expected delivered with a live recipient, got %q", msg.Status)
	}
	stored, err := messages.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Status != StatusDelivered {
		t.Fatalf("expected stored status delivered, got %q", stored.Status)
	}
	if sent := fallback.sentTo(); len(sent) != 0 {
		t.Fatalf("online recipient must not trigger the fallback, got %v", sent)
	}
	if frames := drainType(recipient, EventNewMessage); len(frames) != 1 {
		t.Fatalf("expected one new_message frame on the live connection, got %d", len(frames))
	}
}

func TestDispatchDeliveredNeverRegressesRead(t *testing.T) {
	fallback := &fakeFallback{}
	dispatcher, conversations, messages, hub := newDispatcherFixture(fallback)
	conv, msg := seedConversationAndMessage(t, conversations, messages, "ping")

	// Reader already caught up before dispatch ran.
	if _, err := messages.MarkRead(context.Background(), conv.ID, tutorID, time.Now().UTC()); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	hub.registerClient(newTestClient(tutorID, "tutor"))
	dispatcher.Dispatch(context.Background(), conv, msg)

	stored, _ := messages.Get(context.Background(), msg.ID)
	if stored.Status != StatusRead {
		t.Fatalf("delivered must not regress read, got %q", stored.Status)
	}
}

func TestDispatchFallbackErrorIsSwallowed(t *testing.T) {
	fallback := &fakeFallback{err: errors.New("provider down"), done: make(chan struct{}, 1)}
	dispatcher, conversations, messages, _ := newDispatcherFixture(fallback)
	conv, msg := seedConversationAndMessage(t, conversations, messages, "hello")

	// The send already succeeded; a fallback failure must not surface.
	dispatcher.Dispatch(context.Background(), conv, msg)
	waitForFallback(t, fallback.done)

	if msg.Status != StatusSent {
		t.Fatalf("status must be untouched by fallback failure, got %q", msg.Status)
	}
}

func TestDispatchPreviewText(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	// 200 multi-byte runes; a byte-offset cut would split one in half.
	wide := strings.Repeat("知", 200)

	cases := []struct {
		msg  *Message
		want string
	}{
		{&Message{Content: "short"}, "short"},
		{&Message{Content: string(long)}, string(long[:140])},
		{&Message{Content: wide}, strings.Repeat("知", 140)},
		{&Message{Kind: KindImage}, "Sent an image"},
		{&Message{Kind: KindVoice}, "Sent a voice message"},
		{&Message{Kind: KindBooking}, "Sent a session booking"},
	}
	for _, tc := range cases {
		if got := previewText(tc.msg); got != tc.want {
			t.Errorf("previewText(%q/%s) = %q, want %q", tc.msg.Content, tc.msg.Kind, got, tc.want)
		}
	}
}
