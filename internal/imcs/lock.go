// Package imcs implements the kernel's interrupt-masking critical section:
// a scoped, non-reentrant acquisition of exclusive access to kernel state.
//
// On real hardware this disables maskable interrupts. The default build
// (tests, library consumers, any host process with no real maskable
// interrupts to hide behind) models that as taking a single global mutex;
// the simhost build (cmd/simhost, built with -tags simhost) additionally
// masks the real signal its tick source uses to simulate the hardware
// timer interrupt, so that "interrupt" can never be observed mid-mutation
// of kernel state. See imcs_default.go and imcs_simhost.go for the two
// Acquire implementations.
package imcs

import "sync"

// Lock is a scoped interrupt mask. The zero value is usable: unlocked.
//
// Lock is not reentrant: code holding it must not call anything that
// acquires it again. Kernel operations take it for short sections, often
// several times within one operation, and release it before anything that
// may block. Helpers that assume the caller already holds it are mostly
// named with a "Locked" suffix, mirroring the Go runtime's convention of
// functions that assume sched.lock is held; a few "Locked" helpers acquire
// it themselves and say so in their doc comments.
type Lock struct {
	mu sync.Mutex
}

// TryAcquire takes the lock only if it is free, without blocking, and
// reports whether it did. It only takes the mutex: unlike the simhost
// build's Acquire, it masks no signals. No in-tree caller uses it; tick
// handling and Semaphore.Post both use Acquire.
func (l *Lock) TryAcquire() (release func(), ok bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	return l.mu.Unlock, true
}
