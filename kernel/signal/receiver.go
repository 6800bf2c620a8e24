package signal

import (
	"sync"
	"time"

	"github.com/distortos-go/kernel/kernel"
)

// Code distinguishes how Information was obtained.
type Code uint8

const (
	// Generated means the signal was accepted from the plain pending
	// bitset: it carries no payload.
	Generated Code = iota
	// Queued means the signal was accepted from the queued-signal pool
	// and carries a payload.
	Queued
)

// Information is what Accept/Wait return for a successfully accepted
// signal.
type Information struct {
	Number  uint8
	Code    Code
	Payload uint32
}

// Receiver is the per-thread signals control block: pending-signal
// bitset, optional waiting-signal mask for synchronous wait, optional
// catcher for asynchronous delivery, optional bounded queued-signal pool.
// Its lifetime is bound to the owning thread, per spec.md §3.
type Receiver struct {
	sched *kernel.Scheduler
	tcb   *kernel.TCB

	mu      sync.Mutex
	pending Set
	waiting *Set // nil iff not in synchronous wait
	catcher *Catcher
	queue   *queuedPool

	// waitSem is the dedicated semaphore backing synchronous Wait: it is
	// never Post()ed, only Interrupt()ed by postGenerate, so it can never
	// be woken by anything but a matching signal or a timed-wait's own
	// expiry. See kernel.Semaphore.Interrupt's doc comment.
	waitSem *kernel.Semaphore
}

// NewReceiver constructs a signals receiver for tcb. catcher may be nil
// (no asynchronous delivery, no mask/action operations). queueCapacity is
// the number of queued-signal slots; 0 means no queue (Queue always fails
// with ErrNotSupported).
func NewReceiver(sched *kernel.Scheduler, tcb *kernel.TCB, catcher *Catcher, queueCapacity int) *Receiver {
	r := &Receiver{
		sched:   sched,
		tcb:     tcb,
		catcher: catcher,
		waitSem: kernel.NewSignalWaitSemaphore(sched),
	}
	if queueCapacity > 0 {
		r.queue = newQueuedPool(queueCapacity)
	}
	return r
}

// Generate sets sig's pending bit and runs the postGenerate dispatch:
// asynchronous delivery if a catcher exists and the signal is unmasked,
// else a synchronous-wait unblock if the receiver is waiting for sig.
func (r *Receiver) Generate(sig uint8) error {
	if !validSignal(sig) {
		return kernel.ErrInvalidArgument
	}
	r.mu.Lock()
	r.pending, _ = r.pending.Add(sig)
	r.mu.Unlock()

	return r.postGenerate(sig)
}

// Queue pushes payload onto sig's queued pool and runs postGenerate. Fails
// with ErrAgainNoResources if the pool is full, ErrNotSupported if the
// receiver has no pool.
func (r *Receiver) Queue(sig uint8, payload uint32) error {
	if !validSignal(sig) {
		return kernel.ErrInvalidArgument
	}
	r.mu.Lock()
	if r.queue == nil {
		r.mu.Unlock()
		return kernel.ErrNotSupported
	}
	ok := r.queue.push(sig, payload)
	r.mu.Unlock()
	if !ok {
		return kernel.ErrAgainNoResources
	}

	return r.postGenerate(sig)
}

// postGenerate is the shared dispatch step after a signal becomes pending
// or queued: deliver asynchronously if catchable and unmasked, else wake a
// matching synchronous waiter.
func (r *Receiver) postGenerate(sig uint8) error {
	r.mu.Lock()
	var masked bool
	if r.catcher != nil {
		masked, _ = r.catcher.getMask().Test(sig)
	}
	deliverAsync := r.catcher != nil && !masked
	var wakeWaiter bool
	if !deliverAsync && r.waiting != nil {
		wakeWaiter, _ = (*r.waiting).Test(sig)
	}
	r.mu.Unlock()

	if deliverAsync {
		r.tcb.ArmReturnToThread(r.deliverSignals)
	}
	if wakeWaiter {
		r.mu.Lock()
		r.waiting = nil
		r.mu.Unlock()
		r.waitSem.Interrupt()
	}
	return nil
}

// AcceptPending removes and returns one instance of sig: the queued pool
// (FIFO) takes priority over the plain pending bit, matching spec.md
// §4.5's "first tries the queued pool... else tests the pending bit."
func (r *Receiver) AcceptPending(sig uint8) (Information, error) {
	if !validSignal(sig) {
		return Information{}, kernel.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acceptLocked(sig)
}

func (r *Receiver) acceptLocked(sig uint8) (Information, error) {
	if r.queue != nil {
		if payload, ok := r.queue.pop(sig); ok {
			return Information{Number: sig, Code: Queued, Payload: payload}, nil
		}
	}
	if ok, _ := r.pending.Test(sig); ok {
		r.pending, _ = r.pending.Remove(sig)
		return Information{Number: sig, Code: Generated}, nil
	}
	return Information{}, kernel.ErrAgainNoResources
}

// acceptAnyLocked accepts the lowest-numbered signal in set that is
// currently pending or queued, per spec.md §4.5's selection rule.
func (r *Receiver) acceptAnyLocked(set Set) (Information, bool) {
	candidates := r.pending
	if r.queue != nil {
		candidates = candidates.Union(r.queue.setOf())
	}
	sig, ok := candidates.Intersect(set).LowestSet()
	if !ok {
		return Information{}, false
	}
	info, err := r.acceptLocked(sig)
	return info, err == nil
}

// GetPendingSignalSet returns every signal number with a pending bit or at
// least one queued entry.
func (r *Receiver) GetPendingSignalSet() Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.pending
	if r.queue != nil {
		s = s.Union(r.queue.setOf())
	}
	return s
}

// Wait blocks until a signal in set can be accepted, then returns it.
func (r *Receiver) Wait(set Set) (Information, error) {
	return r.wait(set, func() error { return r.waitSem.Wait(r.tcb) })
}

// TryWait is the non-blocking form: returns ErrAgainNoResources if nothing
// in set is currently available.
func (r *Receiver) TryWait(set Set) (Information, error) {
	r.mu.Lock()
	info, ok := r.acceptAnyLocked(set)
	r.mu.Unlock()
	if !ok {
		return Information{}, kernel.ErrAgainNoResources
	}
	return info, nil
}

// TryWaitFor is Wait with a timeout.
func (r *Receiver) TryWaitFor(set Set, d time.Duration) (Information, error) {
	return r.wait(set, func() error { return r.waitSem.TryWaitFor(r.tcb, d) })
}

// TryWaitUntil is Wait with an absolute deadline.
func (r *Receiver) TryWaitUntil(set Set, t time.Time) (Information, error) {
	return r.wait(set, func() error { return r.waitSem.TryWaitUntil(r.tcb, t) })
}

func (r *Receiver) wait(set Set, block func() error) (Information, error) {
	r.mu.Lock()
	if info, ok := r.acceptAnyLocked(set); ok {
		r.mu.Unlock()
		return info, nil
	}
	r.waiting = &set
	r.mu.Unlock()

	err := block()

	// Every exit path clears waitingSignalSet, per spec.md §4.5.
	r.mu.Lock()
	r.waiting = nil
	r.mu.Unlock()

	// postGenerate wakes the waiter through waitSem.Interrupt, so
	// ErrInterrupted here means a matching signal arrived.
	if err != nil && err != kernel.ErrInterrupted {
		return Information{}, err
	}

	r.mu.Lock()
	info, ok := r.acceptAnyLocked(set)
	r.mu.Unlock()
	if !ok {
		// postGenerate woke us for a signal that a racing AcceptPending
		// already consumed; treat it the way a spurious wakeup is
		// treated anywhere else in the kernel: nothing to report.
		return Information{}, kernel.ErrAgainNoResources
	}
	return info, nil
}

// GetSignalMask returns the receiver's delivery mask, or Full if it has no
// catcher (matching distortos's "no catcher means everything behaves as
// masked for delivery purposes").
func (r *Receiver) GetSignalMask() Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catcher == nil {
		return Full
	}
	return r.catcher.getMask()
}

// SetSignalMask installs a new mask. Unmasking a signal that is already
// pending or queued re-arms asynchronous delivery for it immediately, so
// that work is never silently lost behind a mask flip.
func (r *Receiver) SetSignalMask(mask Set) error {
	r.mu.Lock()
	if r.catcher == nil {
		r.mu.Unlock()
		return kernel.ErrNotSupported
	}
	prev := r.catcher.setMask(mask)
	newlyUnmasked := prev &^ mask
	r.mu.Unlock()

	for sig := uint8(0); sig < NumSignals; sig++ {
		if ok, _ := newlyUnmasked.Test(sig); !ok {
			continue
		}
		if pending, _ := r.hasPendingOrQueued(sig); pending {
			r.tcb.ArmReturnToThread(r.deliverSignals)
			break
		}
	}
	return nil
}

func (r *Receiver) hasPendingOrQueued(sig uint8) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok, _ := r.pending.Test(sig); ok {
		return true, nil
	}
	if r.queue != nil {
		if ok, _ := r.queue.setOf().Test(sig); ok {
			return true, nil
		}
	}
	return false, nil
}

// GetSignalAction returns the handler currently associated with sig.
func (r *Receiver) GetSignalAction(sig uint8) (Action, error) {
	if !validSignal(sig) {
		return Action{}, kernel.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catcher == nil {
		return Action{}, kernel.ErrNotSupported
	}
	return r.catcher.getAction(sig), nil
}

// SetSignalAction installs a new handler for sig, returning the previous
// one.
func (r *Receiver) SetSignalAction(sig uint8, action Action) (Action, error) {
	if !validSignal(sig) {
		return Action{}, kernel.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catcher == nil {
		return Action{}, kernel.ErrNotSupported
	}
	return r.catcher.setAction(sig, action), nil
}

// deliverSignals is the asynchronous-procedure-call body arch.
// RequestFunctionExecution arms to run on the target thread's own
// goroutine at its next return-to-thread checkpoint. It loops accepting
// pending-and-unblocked signals, invoking each one's handler under a
// temporarily widened mask, until acceptance finds nothing left.
func (r *Receiver) deliverSignals() {
	for {
		r.mu.Lock()
		if r.catcher == nil {
			r.mu.Unlock()
			return
		}
		mask := r.catcher.getMask()
		unblocked := mask ^ Full // signals NOT currently masked
		info, ok := r.acceptAnyLocked(unblocked)
		if !ok {
			r.mu.Unlock()
			return
		}
		action := r.catcher.getAction(info.Number)
		r.mu.Unlock()

		if action.isDefault() {
			continue
		}

		newMask := mask.Union(action.Mask)
		newMask, _ = newMask.Add(info.Number)

		r.mu.Lock()
		prevMask := r.catcher.setMask(newMask)
		r.mu.Unlock()

		action.Handler(info.Number, info.Payload)

		r.mu.Lock()
		if r.catcher != nil {
			r.catcher.setMask(prevMask)
		}
		r.mu.Unlock()
	}
}
