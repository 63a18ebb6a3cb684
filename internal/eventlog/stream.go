package eventlog

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	pebblestore "github.com/Austin-rgb/messages/internal/storage/pebble"
)

// Stream names are a wire contract shared with operators and tooling.
const (
	MessagesStream = "messages_stream"
	ReceiptsStream = "receipts_stream"
)

// Position locates an entry within a stream.
type Position struct {
	Partition uint32
	Seq       uint64
}

// Entry is a delivered stream entry.
type Entry struct {
	Position Position
	Key      string
	Payload  []byte
}

// Stream is a fixed set of append-only partitions. Entries sharing a
// partition key always land in the same partition, which is what guarantees
// per-conversation (and per-message, for receipts) ordering.
type Stream struct {
	name  string
	parts []*Log

	// notifyCh wakes idle consumers when any partition receives an append
	// through this stream.
	notifyMu sync.Mutex
	notifyCh chan struct{}

	// PollInterval bounds how long Consume sleeps when idle; RetryDelay is
	// the pause before redelivering an entry whose handler failed.
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// OpenStream opens all partitions of the named stream.
func OpenStream(db *pebblestore.DB, name string, partitions int) (*Stream, error) {
	if partitions <= 0 {
		partitions = 1
	}
	s := &Stream{
		name:         name,
		parts:        make([]*Log, partitions),
		notifyCh:     make(chan struct{}),
		PollInterval: 200 * time.Millisecond,
		RetryDelay:   100 * time.Millisecond,
	}
	for p := 0; p < partitions; p++ {
		l, err := OpenLog(db, name, uint32(p))
		if err != nil {
			return nil, fmt.Errorf("open %s partition %d: %w", name, p, err)
		}
		s.parts[p] = l
	}
	return s, nil
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// Partitions returns the partition count.
func (s *Stream) Partitions() int { return len(s.parts) }

func (s *Stream) partitionFor(key string) uint32 {
	return crc32.ChecksumIEEE([]byte(key)) % uint32(len(s.parts))
}

// Append durably writes one entry under the given partition key and returns
// its position. The sequence is assigned by the log itself.
func (s *Stream) Append(ctx context.Context, key string, payload []byte) (Position, error) {
	p := s.partitionFor(key)
	seqs, err := s.parts[p].Append(ctx, []AppendRecord{{Key: []byte(key), Payload: payload}})
	if err != nil {
		return Position{}, fmt.Errorf("append %s: %w", s.name, err)
	}
	s.notifyMu.Lock()
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
	s.notifyMu.Unlock()
	return Position{Partition: p, Seq: seqs[0]}, nil
}

// waitForAppend blocks until an append lands on any partition of this
// stream, or timeout elapses. Returns true if woken by an append.
func (s *Stream) waitForAppend(timeout time.Duration) bool {
	s.notifyMu.Lock()
	ch := s.notifyCh
	s.notifyMu.Unlock()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// Ack commits the group cursor at pos. Acking out of order is tolerated (the
// cursor never regresses), but consumers are expected to ack in append order
// within a partition.
func (s *Stream) Ack(group string, pos Position) error {
	if int(pos.Partition) >= len(s.parts) {
		return fmt.Errorf("ack %s: partition %d out of range", s.name, pos.Partition)
	}
	return s.parts[pos.Partition].CommitCursor(group, pos.Seq)
}

// Read returns up to limit unacknowledged entries for group on one
// partition, starting just past the group's committed cursor.
func (s *Stream) Read(group string, partition uint32, limit int) ([]Entry, error) {
	if int(partition) >= len(s.parts) {
		return nil, fmt.Errorf("read %s: partition %d out of range", s.name, partition)
	}
	l := s.parts[partition]
	start := uint64(1)
	if cur, ok := l.Cursor(group); ok {
		start = cur + 1
	}
	items, err := l.ReadFrom(start, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = Entry{Position: Position{Partition: partition, Seq: it.Seq}, Key: string(it.Key), Payload: it.Payload}
	}
	return out, nil
}

// Consume runs the consumer-group loop for group until ctx is cancelled:
// read entries past the cursor, hand each to h in partition order, and ack
// only after h returns nil. A failing handler is retried on the same entry
// after RetryDelay, so a crash or persistent storage failure leaves the
// entry pending and it is redelivered on restart (at-least-once).
func (s *Stream) Consume(ctx context.Context, group string, h func(context.Context, Entry) error) error {
	next := make([]uint64, len(s.parts))
	for p, l := range s.parts {
		next[p] = 1
		if cur, ok := l.Cursor(group); ok {
			next[p] = cur + 1
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivered := 0
		for p, l := range s.parts {
			items, err := l.ReadFrom(next[p], 128)
			if err != nil {
				if !sleepCtx(ctx, s.RetryDelay) {
					return ctx.Err()
				}
				continue
			}
			for _, it := range items {
				entry := Entry{Position: Position{Partition: uint32(p), Seq: it.Seq}, Key: string(it.Key), Payload: it.Payload}
				for {
					if err := h(ctx, entry); err == nil {
						break
					}
					if !sleepCtx(ctx, s.RetryDelay) {
						return ctx.Err()
					}
				}
				for {
					if err := l.CommitCursor(group, it.Seq); err == nil {
						break
					}
					if !sleepCtx(ctx, s.RetryDelay) {
						return ctx.Err()
					}
				}
				next[p] = it.Seq + 1
				delivered++
			}
		}
		if delivered == 0 {
			// Idle: block until any partition receives an append, bounded by
			// PollInterval as a safety net for writers that bypass the stream.
			s.waitForAppend(s.PollInterval)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
