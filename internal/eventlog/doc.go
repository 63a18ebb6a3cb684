// Package eventlog implements the durable, partitioned event log behind the
// messaging pipeline.
//
// A Stream ("messages_stream", "receipts_stream") is a fixed set of
// append-only partitions persisted in Pebble. The partition for an entry is
// chosen by hashing its partition key (conversation id for messages, message
// id for receipts), so all entries sharing a key land in one partition and an
// entry's sequence number totally orders it against its logical subject.
//
// Key layout (lexicographically sortable):
//   - log/{stream}/{part_be4}/m           partition metadata (lastSeq)
//   - log/{stream}/{part_be4}/e/{seq_be8} entries
//   - cur/{stream}/{group}/{part_be4}     durable consumer-group cursors
//
// Entries are stored as: varint keyLen | key | payload | crc32c(key|payload).
//
// Consumer groups are durable cursors committed only after the consumer has
// applied the entry; a consumer that crashes between read and ack re-reads
// the same entries on restart. That is the at-least-once contract: consumers
// must be idempotent, the log never loses an unacknowledged entry.
package eventlog
