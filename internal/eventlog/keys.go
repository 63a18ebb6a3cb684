package eventlog

import (
	"encoding/binary"
)

var (
	sep        = byte('/')
	logPrefix  = []byte("log/")
	curPrefix  = []byte("cur/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyPartitionMeta builds the partition metadata key.
func keyPartitionMeta(stream string, partition uint32) []byte {
	k := make([]byte, 0, len(stream)+16)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds an entry key; the big-endian sequence keeps scans ordered.
func keyEntry(stream string, partition uint32, seq uint64) []byte {
	k := make([]byte, 0, len(stream)+24)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// keyCursor builds the durable cursor key for a group and partition.
func keyCursor(stream, group string, partition uint32) []byte {
	k := make([]byte, 0, len(stream)+len(group)+16)
	k = append(k, curPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = append(k, group...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	return k
}
