package eventlog

import (
	"context"
	"encoding/binary"
	"sync"

	pebblestore "github.com/Austin-rgb/messages/internal/storage/pebble"
)

// AppendRecord is a single appendable entry: the partition key that ordered
// it into this partition, plus an opaque payload.
type AppendRecord struct {
	Key     []byte
	Payload []byte
}

// Log is one append-only partition of a stream. Sequence numbers start at 1
// and are assigned under the append lock; the last assigned sequence is
// persisted in partition metadata within the same batch as the entries.
type Log struct {
	db     *pebblestore.DB
	stream string
	part   uint32

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// OpenLog initializes a partition log, restoring lastSeq from metadata.
func OpenLog(db *pebblestore.DB, stream string, partition uint32) (*Log, error) {
	l := &Log{db: db, stream: stream, part: partition, notifyCh: make(chan struct{})}
	meta, err := db.Get(keyPartitionMeta(stream, partition))
	if err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// Append writes the records as one atomic batch and returns the assigned
// sequence numbers. Waiters blocked in WaitForAppend are woken on success.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	// lastSeq is advanced only after the batch commits, so a failed append
	// leaves memory and disk agreeing
	next := l.lastSeq
	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		next++
		if err := b.Set(keyEntry(l.stream, l.part, next), encodeRecord(r.Key, r.Payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(keyPartitionMeta(l.stream, l.part), meta[:], nil); err != nil {
		return nil, err
	}

	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}

// LastSeq returns the highest assigned sequence.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}
