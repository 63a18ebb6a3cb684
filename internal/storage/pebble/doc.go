// Package pebblestore wraps a Pebble database with a configurable WAL fsync
// policy. It backs the durable event log: entries, partition metadata, and
// consumer-group cursors all live in one keyspace so a crash cannot separate
// an acknowledged cursor from the entries it covers.
package pebblestore
