package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// Item is one decoded entry returned by Read.
type Item struct {
	Seq     uint64
	Key     []byte
	Payload []byte
}

// ReadFrom returns up to limit items with sequence >= start, in append order.
// limit <= 0 means no limit.
func (l *Log) ReadFrom(start uint64, limit int) ([]Item, error) {
	low := keyEntry(l.stream, l.part, start)
	hi := keyEntry(l.stream, l.part, ^uint64(0))

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	items := make([]Item, 0, 16)
	for ok := iter.First(); ok; ok = iter.Next() {
		if limit > 0 && len(items) >= limit {
			break
		}
		k := iter.Key()
		if len(k) < 8 {
			continue
		}
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		dec, ok := decodeRecord(iter.Value())
		if !ok {
			// Corrupt entry; skip rather than wedge the consumer.
			continue
		}
		items = append(items, Item{Seq: seq, Key: dec.Key, Payload: dec.Payload})
	}
	return items, nil
}
