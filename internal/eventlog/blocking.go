package eventlog

import (
	"time"
)

// WaitForAppend blocks until a new append occurs or timeout elapses.
// Returns true if woken by an append, false on timeout. timeout <= 0 blocks
// indefinitely.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
