package engine

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/decay"
)

// StartDecayWorker runs a background goroutine that periodically
// applies a normal forget pass to the active namespace. Calling the
// returned cancel func (or Close) stops it.
func (e *Engine) StartDecayWorker(interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelDecay = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				res, err := e.Forget(ctx, ForgetOptions{Mode: decay.ModeNormal})
				if err != nil {
					e.emitError(err)
				} else if res.Count > 0 {
					e.logf("decay sweep: %d pruned", res.Count)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
