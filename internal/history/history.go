// Package history tracks when each recipient was last messaged. It is the
// externally-owned replacement for process-global send-tracking maps: state
// survives restarts and is shared across dispatcher instances.
package history

import (
	"context"
	"time"
)

// Store records and reports per-recipient send times with a TTL. A zero
// time / false means no send is on record inside the TTL window.
type Store interface {
	LastSend(ctx context.Context, recipientID int64) (time.Time, bool, error)
	MarkSend(ctx context.Context, recipientID int64, at time.Time, ttl time.Duration) error
}
