// Package event defines the closed set of payloads carried by the durable
// streams. Every consumer switches exhaustively on Kind; adding a kind means
// updating the persistence workers and the fan-out router in the same change.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags an Envelope payload.
type Kind string

const (
	KindMessageCreated Kind = "message_created"
	KindDeliveryMarked Kind = "delivery_marked"
	KindReadMarked     Kind = "read_marked"
	KindReactionSet    Kind = "reaction_set"
)

// Message is the payload of a MessageCreated event. Messages are immutable
// once created; the id is generated at send time and is the natural key for
// idempotent persistence.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Source       string `json:"source"`
	Text         string `json:"text"`
	ReplyTo      string `json:"reply_to,omitempty"`
	CreatedMs    int64  `json:"created"`
}

// Receipt is the payload of the three receipt event kinds. Sender is the
// original message sender, carried so the router can push the receipt back
// without a storage lookup.
type Receipt struct {
	Message  string `json:"message"`
	User     string `json:"user"`
	Sender   string `json:"sender,omitempty"`
	Reaction *int64 `json:"reaction,omitempty"`
	TsMs     int64  `json:"ts"`
}

// Envelope is the wire form appended to the streams and pushed over live
// channels. Exactly one of Message/Receipt is set, according to Kind.
type Envelope struct {
	Kind    Kind     `json:"kind"`
	Message *Message `json:"message,omitempty"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

var ErrMalformed = errors.New("event: malformed envelope")

// PartitionKey returns the value that orders this event relative to its
// logical subject: conversation id for messages, message id for receipts.
func (e Envelope) PartitionKey() string {
	switch e.Kind {
	case KindMessageCreated:
		if e.Message != nil {
			return e.Message.Conversation
		}
	case KindDeliveryMarked, KindReadMarked, KindReactionSet:
		if e.Receipt != nil {
			return e.Receipt.Message
		}
	}
	return ""
}

// Encode serializes the envelope after shape validation.
func Encode(e Envelope) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses and validates an envelope.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (e Envelope) validate() error {
	switch e.Kind {
	case KindMessageCreated:
		if e.Message == nil || e.Message.ID == "" || e.Message.Conversation == "" {
			return fmt.Errorf("%w: incomplete message payload", ErrMalformed)
		}
	case KindDeliveryMarked, KindReadMarked:
		if e.Receipt == nil || e.Receipt.Message == "" || e.Receipt.User == "" {
			return fmt.Errorf("%w: incomplete receipt payload", ErrMalformed)
		}
	case KindReactionSet:
		if e.Receipt == nil || e.Receipt.Message == "" || e.Receipt.User == "" || e.Receipt.Reaction == nil {
			return fmt.Errorf("%w: incomplete reaction payload", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	return nil
}
