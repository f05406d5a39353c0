package queue

import (
	"context"
	"time"
)

// runReaper periodically requeues jobs a crashed dispatcher left behind in
// processing. Without it, a crash between claim and settle would strand the
// job forever.
func (d *Dispatcher) runReaper(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.store.RequeueStuck(ctx, d.cfg.StuckTimeout)
			if err != nil {
				if ctx.Err() == nil {
					d.log.Error().Err(err).Msg("stuck job sweep failed")
				}
				continue
			}
			if n > 0 {
				d.log.Warn().Int64("requeued", n).Dur("timeout", d.cfg.StuckTimeout).Msg("recovered stuck jobs")
			}
		}
	}
}
