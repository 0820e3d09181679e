package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrThrottled signals that the store rejected a write due to transient
// overload. Callers retry these; all other write errors are terminal.
var ErrThrottled = errors.New("docstore: write throttled")

// Retryable reports whether err is a transient store failure worth retrying.
// Throttling, timeouts, and lock contention qualify; everything else is
// treated as a permanent failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "conflicting lock")
}
