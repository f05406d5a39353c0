// Package gateway defines the messaging boundary: the one network surface
// the dispatch engine talks to when delivering a broadcast to a recipient.
package gateway

import (
	"context"
	"fmt"
	"time"
)

// Gateway delivers one message to one recipient. Implementations must
// return *Error for failures originating at the remote service so the
// classifier can work from machine codes instead of parsing prose.
type Gateway interface {
	Send(ctx context.Context, recipientID int64, text string) (messageID string, err error)
}

// Error is a structured gateway failure: a machine code, the service's
// human description, and, for throttling responses, how long to wait.
type Error struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s (%d)", e.Description, e.Code)
}
