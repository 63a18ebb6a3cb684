package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/Austin-rgb/messages/internal/config"
	"github.com/Austin-rgb/messages/internal/event"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Log:     config.LogCfg{Partitions: 2, Fsync: "never"},
	}
	rt, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestOpenAndHealth(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestEndToEndMessageFlow(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	rt.StartWorkers(ctx)

	if _, err := rt.Store.CreateConversation(ctx, "team", "", "alice", []string{"bob"}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	msg := event.Message{ID: "m1", Conversation: "team", Source: "alice", Text: "hi", CreatedMs: 1}
	payload, err := event.Encode(event.Envelope{Kind: event.KindMessageCreated, Message: &msg})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := rt.Messages.Append(ctx, msg.Conversation, payload); err != nil {
		t.Fatalf("append: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := rt.Store.GetMessage(ctx, "m1"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the receipt pipeline: mark read, wait for the merged row
	if err := rt.Tracker.MarkRead(ctx, "m1", "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	for {
		r, err := rt.Store.GetReceipt(ctx, "m1", "bob")
		if err == nil {
			if r.ReadAtMs == nil || r.DeliveredAtMs == nil {
				t.Fatalf("receipt missing timestamps: %+v", r)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("receipt never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseStopsWorkers(t *testing.T) {
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Log:     config.LogCfg{Partitions: 2, Fsync: "never"},
	}
	rt, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	rt.StartWorkers(context.Background())

	done := make(chan struct{})
	go func() {
		rt.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}
}
