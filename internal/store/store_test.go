package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Austin-rgb/messages/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ms(v int64) *int64 { return &v }

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "team", "Team Chat", "alice", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Name != "team" || c.Admin != "alice" {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	got, err := s.GetConversation(ctx, "team")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Team Chat" {
		t.Fatalf("title = %q", got.Title)
	}

	if _, err := s.CreateConversation(ctx, "team", "", "dave", nil); err != ErrConversationExists {
		t.Fatalf("duplicate create err = %v, want ErrConversationExists", err)
	}
	if _, err := s.GetConversation(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("missing get err = %v, want ErrNotFound", err)
	}
}

func TestParticipantsIncludeAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// admin listed twice in participants must not duplicate
	if _, err := s.CreateConversation(ctx, "ops", "", "alice", []string{"alice", "bob", "bob"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Participants(ctx, "ops")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("participants = %v, want alice+bob", got)
	}

	ok, err := s.IsParticipant(ctx, "ops", "alice")
	if err != nil || !ok {
		t.Fatalf("IsParticipant(alice) = %v, %v", ok, err)
	}
	ok, _ = s.IsParticipant(ctx, "ops", "mallory")
	if ok {
		t.Fatal("mallory should not be a participant")
	}
}

func TestListConversationsByMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateConversation(ctx, "a", "", "alice", []string{"bob"})
	s.CreateConversation(ctx, "b", "", "bob", nil)
	s.CreateConversation(ctx, "c", "", "carol", nil)

	got, err := s.ListConversations(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bob sees %d conversations, want 2", len(got))
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "team", "", "alice", []string{"bob"})

	m := event.Message{ID: "m1", Conversation: "team", Source: "alice", Text: "hi", CreatedMs: 100}
	for i := 0; i < 3; i++ {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("upsert #%d: %v", i, err)
		}
	}
	n, err := s.CountMessages(ctx, "m1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("row count = %d, want 1", n)
	}
}

func TestMessagesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "team", "", "alice", []string{"bob"})

	s.UpsertMessage(ctx, event.Message{ID: "m1", Conversation: "team", Source: "alice", Text: "one", CreatedMs: 1})
	s.UpsertMessage(ctx, event.Message{ID: "m2", Conversation: "team", Source: "bob", Text: "two", CreatedMs: 2})
	s.UpsertMessage(ctx, event.Message{ID: "m3", Conversation: "team", Source: "alice", Text: "three", ReplyTo: "m2", CreatedMs: 3})

	all, err := s.Messages(ctx, "team", MessageFilter{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(all) != 3 || all[0].ID != "m1" || all[2].ID != "m3" {
		t.Fatalf("history order wrong: %+v", all)
	}

	fromAlice, _ := s.Messages(ctx, "team", MessageFilter{Source: "alice"})
	if len(fromAlice) != 2 {
		t.Fatalf("source filter returned %d, want 2", len(fromAlice))
	}

	replies, _ := s.Messages(ctx, "team", MessageFilter{ReplyTo: "m2"})
	if len(replies) != 1 || replies[0].ID != "m3" {
		t.Fatalf("reply_to filter returned %+v", replies)
	}

	// both filters together intersect
	s.UpsertMessage(ctx, event.Message{ID: "m4", Conversation: "team", Source: "bob", Text: "four", ReplyTo: "m2", CreatedMs: 4})
	both, _ := s.Messages(ctx, "team", MessageFilter{ReplyTo: "m2", Source: "bob"})
	if len(both) != 1 || both[0].ID != "m4" {
		t.Fatalf("reply_to+source filter returned %+v, want m4 only", both)
	}

	page, _ := s.Messages(ctx, "team", MessageFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "m2" {
		t.Fatalf("pagination returned %+v", page)
	}

	ok, _ := s.IsSender(ctx, "m1", "alice")
	if !ok {
		t.Fatal("alice should be sender of m1")
	}
	ok, _ = s.IsSender(ctx, "m1", "bob")
	if ok {
		t.Fatal("bob is not sender of m1")
	}
}

func TestReceiptMergeIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", DeliveredAtMs: ms(10), TsMs: 10}); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if err := s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", DeliveredAtMs: ms(20), ReadAtMs: ms(20), TsMs: 20}); err != nil {
		t.Fatalf("read: %v", err)
	}
	// redelivered delivery event arrives after the read was recorded
	if err := s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", DeliveredAtMs: ms(10), TsMs: 10}); err != nil {
		t.Fatalf("redelivered: %v", err)
	}

	r, err := s.GetReceipt(ctx, "m1", "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.DeliveredAtMs == nil || *r.DeliveredAtMs != 10 {
		t.Fatalf("delivered_at = %v, want first value 10", r.DeliveredAtMs)
	}
	if r.ReadAtMs == nil || *r.ReadAtMs != 20 {
		t.Fatalf("read_at = %v, want 20 (must survive redelivery)", r.ReadAtMs)
	}
}

func TestReceiptReactionNotClearedByRedelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", Reaction: ms(3), TsMs: 30})
	// delivery event without a reaction must not wipe it
	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", DeliveredAtMs: ms(10), TsMs: 40})

	r, err := s.GetReceipt(ctx, "m1", "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Reaction == nil || *r.Reaction != 3 {
		t.Fatalf("reaction = %v, want 3", r.Reaction)
	}

	// a newer reaction replaces the old one
	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", Reaction: ms(7), TsMs: 50})
	// a stale reaction does not
	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", Reaction: ms(1), TsMs: 5})

	r, _ = s.GetReceipt(ctx, "m1", "bob")
	if r.Reaction == nil || *r.Reaction != 7 {
		t.Fatalf("reaction = %v, want 7", r.Reaction)
	}
}

func TestReceiptsPerMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "bob", DeliveredAtMs: ms(1), TsMs: 1})
	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m1", User: "carol", DeliveredAtMs: ms(2), TsMs: 2})
	s.UpsertReceipt(ctx, ReceiptUpdate{Message: "m2", User: "bob", DeliveredAtMs: ms(3), TsMs: 3})

	got, err := s.Receipts(ctx, "m1")
	if err != nil {
		t.Fatalf("receipts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("m1 receipts = %d, want 2", len(got))
	}
	if got[0].User != "bob" || got[1].User != "carol" {
		t.Fatalf("unexpected users: %+v", got)
	}
}
