package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// CommitCursor durably records that group has processed every entry up to and
// including seq. Commits never regress: a lower or equal seq is a no-op, so
// redelivered acks after a consumer restart are harmless.
func (l *Log) CommitCursor(group string, seq uint64) error {
	key := keyCursor(l.stream, group, l.part)
	cur, err := l.db.Get(key)
	if err == nil && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.db.Set(key, b[:])
}

// Cursor returns the last committed sequence for group, or (0, false) when
// the group has never acknowledged anything on this partition.
func (l *Log) Cursor(group string) (uint64, bool) {
	cur, err := l.db.Get(keyCursor(l.stream, group, l.part))
	if err != nil {
		if err != pebble.ErrNotFound {
			return 0, false
		}
		return 0, false
	}
	if len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
