package eventlog

import (
	"context"
	"testing"

	pebblestore "github.com/Austin-rgb/messages/internal/storage/pebble"
)

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := OpenLog(newTestDB(t), "t", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func TestAppendAssignsSequential(t *testing.T) {
	l := newTestLog(t)
	seqs, err := l.Append(context.Background(), []AppendRecord{
		{Key: []byte("c1"), Payload: []byte("p1")},
		{Key: []byte("c1"), Payload: []byte("p2")},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seqs) != 2 || !(seqs[0] < seqs[1]) {
		t.Fatalf("expected two increasing seqs, got %v", seqs)
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	l, err := OpenLog(db, "t", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	seqs, err := l.Append(context.Background(), []AppendRecord{{Payload: []byte("x")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, "t", 0)
	if err != nil {
		t.Fatalf("open log2: %v", err)
	}
	seqs2, err := l2.Append(context.Background(), []AppendRecord{{Payload: []byte("y")}})
	if err != nil {
		t.Fatalf("append2: %v", err)
	}
	if !(seqs[0] < seqs2[0]) {
		t.Fatalf("lastSeq not restored: prev=%d next=%d", seqs[0], seqs2[0])
	}
}

func TestReadFromReturnsAppendOrder(t *testing.T) {
	l := newTestLog(t)
	recs := make([]AppendRecord, 5)
	for i := range recs {
		recs[i] = AppendRecord{Key: []byte("k"), Payload: []byte{byte(i)}}
	}
	seqs, err := l.Append(context.Background(), recs)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	items, err := l.ReadFrom(seqs[1], 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	if items[0].Seq != seqs[1] || items[2].Seq != seqs[3] {
		t.Fatalf("unexpected seqs: %v", items)
	}
	if string(items[0].Payload) != "\x01" {
		t.Fatalf("payload mismatch")
	}
}
