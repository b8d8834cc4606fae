// Package spin provides bounded busy-wait helpers for hardware handshakes.
package spin

import (
	"context"
	"runtime"
	"time"

	"bytepump-go/errcode"
)

// Until spins until ready returns true, the timeout elapses or ctx is done.
// A timeout <= 0 means no deadline (only ctx can stop the wait). The loop
// yields the processor between checks so a simulated device on another
// goroutine can make progress.
func Until(ctx context.Context, ready func() bool, timeout time.Duration) error {
	if ready() {
		return nil
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for i := 0; ; i++ {
		if ready() {
			return nil
		}
		// Sample ctx and the clock every 64 spins.
		if i&0x3f == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return errcode.Timeout
			}
		}
		runtime.Gosched()
	}
}
