package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: varint keyLen | key | payload | crc32c(key|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(key, payload []byte) []byte {
	out := make([]byte, 0, 10+len(key)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	out = append(out, tmp[:n]...)
	out = append(out, key...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, key)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

type decoded struct {
	Key     []byte
	Payload []byte
}

func decodeRecord(b []byte) (decoded, bool) {
	if len(b) < 1+4 {
		return decoded{}, false
	}
	klen, n := binary.Uvarint(b)
	if n <= 0 {
		return decoded{}, false
	}
	if n+int(klen)+4 > len(b) {
		return decoded{}, false
	}
	key := b[n : n+int(klen)]
	payload := b[n+int(klen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, key)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return decoded{}, false
	}
	return decoded{
		Key:     append([]byte(nil), key...),
		Payload: append([]byte(nil), payload...),
	}, true
}
