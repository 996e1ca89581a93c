// internal/messaging/presence_test.go

package messaging

import (
	"testing"
)

func newTestClient(userID int64, role string) *Client {
	return &Client{
		send:   make(chan []byte, sendQueueSize),
		userID: userID,
		role:   role,
	}
}

func TestRegistryLastConnectionWins(t *testing.T) {
	reg := NewRegistry()

	first := newTestClient(7, "student")
	second := newTestClient(7, "student")

	if prev := reg.Bind(7, first); prev != nil {
		t.Fatalf("expected no previous connection, got %v", prev)
	}
	if prev := reg.Bind(7, second); prev != first {
		t.Fatalf("expected first connection to be returned as previous")
	}

	current, ok := reg.Lookup(7)
	if !ok || current != second {
		t.Fatalf("expected second connection to be current")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one binding, got %d", reg.Len())
	}
}

func TestRegistryStaleUnbindDoesNotEvict(t *testing.T) {
	reg := NewRegistry()

	old := newTestClient(7, "student")
	replacement := newTestClient(7, "student")

	reg.Bind(7, old)
	reg.Bind(7, replacement)

	// The old connection's delayed disconnect must not knock the user offline.
	if reg.Unbind(7, old) {
		t.Fatalf("stale unbind should be a no-op")
	}
	if !reg.IsOnline(7) {
		t.Fatalf("user should still be online via the replacement connection")
	}

	if !reg.Unbind(7, replacement) {
		t.Fatalf("unbind of the current connection should succeed")
	}
	if reg.IsOnline(7) {
		t.Fatalf("user should be offline after the current connection unbinds")
	}
}

func TestRegistryUnbindUnknownUser(t *testing.T) {
	reg := NewRegistry()
	if reg.Unbind(42, newTestClient(42, "tutor")) {
		t.Fatalf("unbind of an unknown user should report false")
	}
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Bind(1, newTestClient(1, "student"))
	reg.Bind(2, newTestClient(2, "tutor"))

	ids := reg.Snapshot()
	if len(ids) != 2 {
		t.Fatalf("expected 2 bound users, got %d", len(ids))
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("snapshot missing users: %v", ids)
	}
}
