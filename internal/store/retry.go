package store

import (
	"math/rand"
	"strings"
	"time"
)

// Under concurrent access, WAL-mode SQLite can produce transient errors like
// SQLITE_BUSY and SQLITE_LOCKED. The busy_timeout pragma handles most of it
// at the connection level; the rest gets an application-level retry with
// exponential backoff and jitter.

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention executes fn, retrying transient SQLite errors with
// backoff. Non-transient errors return immediately.
func retryOnContention(fn func() error) error {
	cfg := defaultRetryConfig
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		delay := cfg.baseDelay << attempt
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
		delay += time.Duration(rand.Int63n(int64(cfg.baseDelay)))
		time.Sleep(delay)
	}
	return lastErr
}
