// Package workers drains the durable streams into SQLite. Each worker is a
// consumer group: it reads past its cursor, persists, and acks, so a crash
// between persist and ack redelivers the entry and the storage layer's
// idempotent writes absorb the replay.
package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/event"
	"github.com/Austin-rgb/messages/internal/eventlog"
	"github.com/Austin-rgb/messages/internal/store"
	"github.com/Austin-rgb/messages/pkg/metrics"
)

// Consumer group names are part of the on-disk cursor keys; renaming one
// resets its cursor.
const (
	MessageGroup = "db_group"
	ReceiptGroup = "receipts_group"
)

// persistTimeout bounds a single storage write.
const persistTimeout = 10 * time.Second

// persistCtx is detached from the consume loop's context so a write already
// in flight at shutdown runs to completion instead of being aborted
// mid-statement. The entry is only acked afterwards, as usual.
func persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

// MessageWorker persists message_created events.
type MessageWorker struct {
	stream *eventlog.Stream
	db     *store.Store
	log    *zap.Logger
}

func NewMessageWorker(stream *eventlog.Stream, db *store.Store, log *zap.Logger) *MessageWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageWorker{stream: stream, db: db, log: log}
}

// Run consumes until ctx is cancelled.
func (w *MessageWorker) Run(ctx context.Context) error {
	return w.stream.Consume(ctx, MessageGroup, w.handle)
}

func (w *MessageWorker) handle(_ context.Context, e eventlog.Entry) error {
	env, err := event.Decode(e.Payload)
	if err != nil {
		// A corrupt entry would be redelivered forever; ack it and move on.
		w.log.Error("message worker: dropping undecodable entry",
			zap.Uint32("partition", e.Position.Partition),
			zap.Uint64("seq", e.Position.Seq), zap.Error(err))
		return nil
	}
	if env.Kind != event.KindMessageCreated {
		w.log.Warn("message worker: unexpected kind",
			zap.String("kind", string(env.Kind)), zap.Uint64("seq", e.Position.Seq))
		return nil
	}
	wctx, cancel := persistCtx()
	defer cancel()
	if err := w.db.UpsertMessage(wctx, *env.Message); err != nil {
		metrics.PersistRetries.WithLabelValues(eventlog.MessagesStream).Inc()
		w.log.Warn("message worker: persist failed, will retry",
			zap.String("message", env.Message.ID), zap.Error(err))
		return fmt.Errorf("persist message %s: %w", env.Message.ID, err)
	}
	metrics.EventsPersisted.WithLabelValues(eventlog.MessagesStream).Inc()
	return nil
}

// ReceiptWorker persists delivery, read, and reaction events.
type ReceiptWorker struct {
	stream *eventlog.Stream
	db     *store.Store
	log    *zap.Logger
}

func NewReceiptWorker(stream *eventlog.Stream, db *store.Store, log *zap.Logger) *ReceiptWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReceiptWorker{stream: stream, db: db, log: log}
}

// Run consumes until ctx is cancelled.
func (w *ReceiptWorker) Run(ctx context.Context) error {
	return w.stream.Consume(ctx, ReceiptGroup, w.handle)
}

func (w *ReceiptWorker) handle(_ context.Context, e eventlog.Entry) error {
	env, err := event.Decode(e.Payload)
	if err != nil {
		w.log.Error("receipt worker: dropping undecodable entry",
			zap.Uint32("partition", e.Position.Partition),
			zap.Uint64("seq", e.Position.Seq), zap.Error(err))
		return nil
	}

	u, ok := receiptUpdate(env)
	if !ok {
		w.log.Warn("receipt worker: unexpected kind",
			zap.String("kind", string(env.Kind)), zap.Uint64("seq", e.Position.Seq))
		return nil
	}
	wctx, cancel := persistCtx()
	defer cancel()
	if err := w.db.UpsertReceipt(wctx, u); err != nil {
		metrics.PersistRetries.WithLabelValues(eventlog.ReceiptsStream).Inc()
		w.log.Warn("receipt worker: persist failed, will retry",
			zap.String("message", u.Message), zap.String("user", u.User), zap.Error(err))
		return fmt.Errorf("persist receipt %s/%s: %w", u.Message, u.User, err)
	}
	metrics.EventsPersisted.WithLabelValues(eventlog.ReceiptsStream).Inc()
	return nil
}

// receiptUpdate flattens a receipt event onto the row columns it touches. A
// read implies delivery, so read_marked stamps both timestamps.
func receiptUpdate(env event.Envelope) (store.ReceiptUpdate, bool) {
	r := env.Receipt
	switch env.Kind {
	case event.KindDeliveryMarked:
		ts := r.TsMs
		return store.ReceiptUpdate{Message: r.Message, User: r.User, DeliveredAtMs: &ts, TsMs: r.TsMs}, true
	case event.KindReadMarked:
		ts := r.TsMs
		return store.ReceiptUpdate{Message: r.Message, User: r.User, DeliveredAtMs: &ts, ReadAtMs: &ts, TsMs: r.TsMs}, true
	case event.KindReactionSet:
		return store.ReceiptUpdate{Message: r.Message, User: r.User, Reaction: r.Reaction, TsMs: r.TsMs}, true
	default:
		return store.ReceiptUpdate{}, false
	}
}
