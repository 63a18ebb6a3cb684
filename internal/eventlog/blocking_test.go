package eventlog

import (
	"context"
	"testing"
	"time"
)

func TestWaitForAppendWake(t *testing.T) {
	l := newTestLog(t)

	done := make(chan struct{})
	go func() {
		if !l.WaitForAppend(500 * time.Millisecond) {
			t.Errorf("expected wake by append")
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := l.Append(context.Background(), []AppendRecord{{Payload: []byte("x")}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for waiter to wake")
	}
}

func TestWaitForAppendTimeout(t *testing.T) {
	l := newTestLog(t)
	if l.WaitForAppend(50 * time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}
