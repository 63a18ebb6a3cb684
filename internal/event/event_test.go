package event

import (
	"errors"
	"testing"
)

func TestEncodeDecodeMessage(t *testing.T) {
	env := Envelope{Kind: KindMessageCreated, Message: &Message{
		ID: "m1", Conversation: "c1", Source: "alice", Text: "hi", CreatedMs: 1700000000000,
	}}
	b, err := Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != KindMessageCreated || got.Message.ID != "m1" || got.Message.Conversation != "c1" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.PartitionKey() != "c1" {
		t.Fatalf("message partition key should be the conversation, got %q", got.PartitionKey())
	}
}

func TestReceiptPartitionKeyIsMessageID(t *testing.T) {
	env := Envelope{Kind: KindReadMarked, Receipt: &Receipt{Message: "m1", User: "bob", TsMs: 1}}
	if env.PartitionKey() != "m1" {
		t.Fatalf("receipt partition key should be the message id")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []string{
		`{"kind":"message_created"}`,
		`{"kind":"delivery_marked","receipt":{"message":"m1"}}`,
		`{"kind":"reaction_set","receipt":{"message":"m1","user":"bob"}}`,
		`{"kind":"typing_started","receipt":{"message":"m1","user":"bob"}}`,
		`not json`,
	}
	for _, c := range cases {
		if _, err := Decode([]byte(c)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("want ErrMalformed for %q, got %v", c, err)
		}
	}
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	if _, err := Encode(Envelope{Kind: "bogus"}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}
