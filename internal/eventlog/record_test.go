package eventlog

import (
	"bytes"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	b := encodeRecord([]byte("conv-1"), []byte(`{"kind":"message_created"}`))
	dec, ok := decodeRecord(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if !bytes.Equal(dec.Key, []byte("conv-1")) || !bytes.Equal(dec.Payload, []byte(`{"kind":"message_created"}`)) {
		t.Fatalf("roundtrip mismatch: %q %q", dec.Key, dec.Payload)
	}
}

func TestRecordDetectsCorruption(t *testing.T) {
	b := encodeRecord([]byte("k"), []byte("payload"))
	b[len(b)/2] ^= 0xFF
	if _, ok := decodeRecord(b); ok {
		t.Fatalf("corrupt record decoded")
	}
}

func TestRecordRejectsTruncated(t *testing.T) {
	b := encodeRecord([]byte("k"), []byte("payload"))
	if _, ok := decodeRecord(b[:3]); ok {
		t.Fatalf("truncated record decoded")
	}
	if _, ok := decodeRecord(nil); ok {
		t.Fatalf("empty record decoded")
	}
}
