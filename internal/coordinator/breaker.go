// Cooperative cancel-on-first-error: once one task in a phase reports an
// error, every other in-flight task for that phase sees Cancelled and
// skips its own work rather than racing to completion only to have its
// result discarded.
//
// Grounded on folbricht-desync's chop.go recordError: a mutex-guarded
// first-error slot paired with a context cancellation, checked
// cooperatively by each worker rather than enforced by the scheduler.
package coordinator

import (
	"context"
	"sync"
)

type breaker struct {
	mu     sync.Mutex
	err    error
	ctx    context.Context
	cancel context.CancelFunc
}

// newBreaker derives a phase-scoped breaker from parent, so tripping
// parent (the job's externally-wired circuit breaker, spec §4.7) cancels
// every in-flight task in the current phase exactly as a sibling task's
// own error would.
func newBreaker(parent context.Context) *breaker {
	ctx, cancel := context.WithCancel(parent)
	return &breaker{ctx: ctx, cancel: cancel}
}

// record stores err as the phase's terminal error if none has been
// recorded yet and cancels the breaker so other tasks stop early.
func (b *breaker) record(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
		b.cancel()
	}
}

func (b *breaker) cancelled() bool {
	select {
	case <-b.ctx.Done():
		return true
	default:
		return false
	}
}
