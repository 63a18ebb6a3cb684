// Package receipts tracks per-recipient message state (delivered, read,
// reaction) and turns state transitions into durable receipt events. The
// tracker's map is in-memory only: after a restart an already-recorded
// transition may be re-emitted, and the persistence merge rules absorb the
// duplicate.
package receipts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/event"
	"github.com/Austin-rgb/messages/internal/eventlog"
)

// MessageSource resolves a message id to its stored message, used to find
// the sender a receipt should be routed to. *store.Store satisfies it.
type MessageSource interface {
	GetMessage(ctx context.Context, id string) (event.Message, error)
}

// Appender appends an event under a partition key. *eventlog.Stream
// satisfies it.
type Appender interface {
	Append(ctx context.Context, key string, payload []byte) (eventlog.Position, error)
}

// Deliverer pushes an event to its live audience. *fanout.Router satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, env event.Envelope)
}

var nowMs = func() int64 { return time.Now().UnixMilli() }

type state struct {
	delivered bool
	read      bool
	reaction  *int64
}

// Tracker coalesces duplicate receipt transitions and emits the surviving
// ones to the receipts stream and the message sender's live connections.
type Tracker struct {
	msgs   MessageSource
	stream Appender
	router Deliverer
	log    *zap.Logger

	mu    sync.Mutex
	byKey map[string]*state
}

func NewTracker(msgs MessageSource, stream Appender, router Deliverer, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		msgs:   msgs,
		stream: stream,
		router: router,
		log:    log,
		byKey:  make(map[string]*state),
	}
}

func (t *Tracker) entry(message, user string) *state {
	key := message + "|" + user
	e, ok := t.byKey[key]
	if !ok {
		e = &state{}
		t.byKey[key] = e
	}
	return e
}

// MarkDelivered records that a recipient has seen the message, either over a
// live push or by reading history. The sender's own read of the conversation
// is not a delivery. Repeated calls for the same (message, recipient) are
// no-ops.
func (t *Tracker) MarkDelivered(ctx context.Context, msg event.Message, recipient string) error {
	if recipient == msg.Source {
		return nil
	}

	t.mu.Lock()
	e := t.entry(msg.ID, recipient)
	if e.delivered {
		t.mu.Unlock()
		return nil
	}
	e.delivered = true
	t.mu.Unlock()

	err := t.emit(ctx, event.Envelope{
		Kind: event.KindDeliveryMarked,
		Receipt: &event.Receipt{
			Message: msg.ID, User: recipient, Sender: msg.Source, TsMs: nowMs(),
		},
	})
	if err != nil {
		// roll back so a later attempt re-emits
		t.mu.Lock()
		e.delivered = false
		t.mu.Unlock()
	}
	return err
}

// MarkRead records an explicit read. Reading implies delivery, so both flags
// advance together; a second read of the same message is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, messageID, user string) error {
	msg, err := t.msgs.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if user == msg.Source {
		return nil
	}

	t.mu.Lock()
	e := t.entry(messageID, user)
	if e.read {
		t.mu.Unlock()
		return nil
	}
	wasDelivered := e.delivered
	e.delivered = true
	e.read = true
	t.mu.Unlock()

	err = t.emit(ctx, event.Envelope{
		Kind: event.KindReadMarked,
		Receipt: &event.Receipt{
			Message: messageID, User: user, Sender: msg.Source, TsMs: nowMs(),
		},
	})
	if err != nil {
		t.mu.Lock()
		e.read = false
		e.delivered = wasDelivered
		t.mu.Unlock()
	}
	return err
}

// SetReaction records a recipient's reaction. Setting the same reaction
// twice is a no-op; a different reaction replaces the previous one.
func (t *Tracker) SetReaction(ctx context.Context, messageID, user string, reaction int64) error {
	msg, err := t.msgs.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if user == msg.Source {
		return nil
	}

	t.mu.Lock()
	e := t.entry(messageID, user)
	if e.reaction != nil && *e.reaction == reaction {
		t.mu.Unlock()
		return nil
	}
	prev := e.reaction
	r := reaction
	e.reaction = &r
	t.mu.Unlock()

	err = t.emit(ctx, event.Envelope{
		Kind: event.KindReactionSet,
		Receipt: &event.Receipt{
			Message: messageID, User: user, Sender: msg.Source, Reaction: &r, TsMs: nowMs(),
		},
	})
	if err != nil {
		t.mu.Lock()
		e.reaction = prev
		t.mu.Unlock()
	}
	return err
}

// emit appends the receipt event durably, then pushes it to the sender. The
// push is best effort; append failure is the caller's problem.
func (t *Tracker) emit(ctx context.Context, env event.Envelope) error {
	payload, err := event.Encode(env)
	if err != nil {
		return err
	}
	if _, err := t.stream.Append(ctx, env.PartitionKey(), payload); err != nil {
		return err
	}
	t.router.Deliver(ctx, env)
	return nil
}
