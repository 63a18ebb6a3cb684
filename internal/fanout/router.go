// Package fanout routes events to live client connections. Delivery is best
// effort and never blocks: slow or full connections drop frames, and the
// durable pipeline remains the source of truth.
package fanout

import (
	"context"

	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/event"
	"github.com/Austin-rgb/messages/internal/registry"
	"github.com/Austin-rgb/messages/internal/resolver"
	"github.com/Austin-rgb/messages/pkg/metrics"
)

// DeliveryHook observes a message frame reaching at least one of a
// recipient's live connections. Invoked off the push path.
type DeliveryHook func(ctx context.Context, msg event.Message, user string)

// Router fans events out to the live connections of their audience.
type Router struct {
	reg *registry.Registry
	res *resolver.Resolver
	log *zap.Logger

	onDelivered DeliveryHook
}

func NewRouter(reg *registry.Registry, res *resolver.Resolver, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{reg: reg, res: res, log: log}
}

// SetDeliveryHook installs the hook fired when a message reaches a
// recipient. Set once at wiring time, before any Deliver call.
func (r *Router) SetDeliveryHook(h DeliveryHook) { r.onDelivered = h }

// Deliver pushes an event to every live connection of its audience. New
// messages go to all conversation participants except the sender; receipt
// events go to the message's sender only. Push failures are counted and
// logged, never propagated: a dropped frame is recovered through history.
func (r *Router) Deliver(ctx context.Context, env event.Envelope) {
	audience, err := r.audience(ctx, env)
	if err != nil {
		r.log.Warn("fanout: audience resolution failed",
			zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	if len(audience) == 0 {
		return
	}

	frame, err := event.Encode(env)
	if err != nil {
		r.log.Error("fanout: encode failed", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}

	for _, user := range audience {
		reached := false
		for _, conn := range r.reg.Connections(user) {
			if err := conn.Push(frame); err != nil {
				metrics.Pushes.WithLabelValues("dropped").Inc()
				r.log.Debug("fanout: push dropped",
					zap.String("user", user), zap.String("kind", string(env.Kind)), zap.Error(err))
				continue
			}
			metrics.Pushes.WithLabelValues("sent").Inc()
			reached = true
		}
		// a message that reached the recipient is delivered; the receipt is
		// recorded off the push path
		if reached && env.Kind == event.KindMessageCreated && r.onDelivered != nil {
			go r.onDelivered(context.Background(), *env.Message, user)
		}
	}
}

func (r *Router) audience(ctx context.Context, env event.Envelope) ([]string, error) {
	switch env.Kind {
	case event.KindMessageCreated:
		participants, err := r.res.Participants(ctx, env.Message.Conversation)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(participants))
		for _, u := range participants {
			if u != env.Message.Source {
				out = append(out, u)
			}
		}
		return out, nil
	case event.KindDeliveryMarked, event.KindReadMarked, event.KindReactionSet:
		return []string{env.Receipt.Sender}, nil
	default:
		return nil, event.ErrMalformed
	}
}
