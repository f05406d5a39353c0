package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DryRun is a send-nothing gateway for local runs without credentials.
// Every send succeeds with a synthetic message id.
type DryRun struct {
	log zerolog.Logger
	seq atomic.Int64
}

func NewDryRun(log zerolog.Logger) *DryRun {
	return &DryRun{log: log.With().Str("component", "gateway.dryrun").Logger()}
}

func (d *DryRun) Send(ctx context.Context, recipientID int64, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := d.seq.Add(1)
	d.log.Debug().Int64("recipient", recipientID).Int("len", len(text)).Msg("dry-run send")
	return fmt.Sprintf("dry-%d", id), nil
}
