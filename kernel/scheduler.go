package kernel

import (
	"sync"
	"time"

	"github.com/distortos-go/kernel/internal/imcs"
	"github.com/distortos-go/kernel/kernel/timer"
)

// Scheduler owns the runnable list, the current-thread pointer and the
// monotonic tick counter. There is exactly one Scheduler per process,
// placement-initialized at startup and never torn down (see Init and
// Instance), matching the Design Note on the global scheduler instance's
// two-phase lifecycle.
type Scheduler struct {
	lock imcs.Lock

	runnable *orderedList
	current  *TCB

	tickCount uint64

	timers *timer.Engine
}

var (
	instance     *Scheduler
	instanceOnce sync.Once
)

// Init placement-initializes the global scheduler. It must be called
// exactly once, before any thread runs, matching the Design Note's
// two-phase lifecycle: a bare struct has no valid current thread, and
// calling any scheduling operation before Init is a programming error.
func Init() *Scheduler {
	instanceOnce.Do(func() {
		instance = newScheduler()
	})
	return instance
}

// newScheduler builds a bare, unregistered Scheduler. Split out from Init so
// package-internal tests can construct an isolated instance per test case
// instead of sharing the one process-wide singleton Instance() hands out.
func newScheduler() *Scheduler {
	return &Scheduler{
		runnable: newOrderedList(Runnable),
		timers:   timer.NewEngine(),
	}
}

// NewTestScheduler is newScheduler, exported so tests in other packages
// (kernel/queue, kernel/signal) can get the same per-test-case isolation
// this package's own tests get, instead of sharing the one process-wide
// singleton Init hands out. Not meant for production use: a real program
// has exactly one Scheduler, per the Design Note on its two-phase
// lifecycle that Init/Instance implement.
func NewTestScheduler() *Scheduler {
	return newScheduler()
}

// Instance returns the single process-wide Scheduler. Panics if Init has
// not run yet, since every other kernel object's constructor assumes a
// scheduler already exists to register against.
func Instance() *Scheduler {
	if instance == nil {
		abortHook("kernel.Instance called before kernel.Init")
	}
	return instance
}

// Timers returns the scheduler's software-timer engine, so higher-level
// primitives outside this package (kernel/queue, kernel/signal) can arm
// their own one-shot expiries against the same tick source.
func (s *Scheduler) Timers() *timer.Engine { return s.timers }

// Add inserts tcb into the runnable list. It aborts if tcb is already
// owned by a list; its caller (Thread.Start) only ever adds a freshly
// constructed TCB. Init preloads no main or idle thread: those are added
// through Thread.Start like any other thread.
func (s *Scheduler) Add(t *TCB) {
	release := s.lock.Acquire()
	defer release()
	s.addLocked(t)
}

func (s *Scheduler) addLocked(t *TCB) {
	s.runnable.Insert(t)
}

// Current returns the TCB the scheduler currently considers "running".
func (s *Scheduler) Current() *TCB {
	release := s.lock.Acquire()
	defer release()
	return s.current
}

// TickCount returns the monotonic tick counter. Reading it always goes
// through IMCS, per spec: on a 32-bit target a 64-bit counter cannot be
// read atomically without masking interrupts around the read.
func (s *Scheduler) TickCount() uint64 {
	release := s.lock.Acquire()
	defer release()
	return s.tickCount
}

// Start selects the head of the runnable list (main and idle threads must
// already have been preloaded via Add) and hands control to the
// architecture's scheduling entry point. Start never returns on real
// hardware; in this Go port it blocks until the architecture layer's
// dispatch loop for the chosen thread exits.
func (s *Scheduler) Start(dispatch func(t *TCB)) {
	release := s.lock.Acquire()
	if s.runnable.Empty() {
		release()
		abortHook("Scheduler.Start called with an empty runnable list")
	}
	s.current = s.runnable.Front()
	current := s.current
	release()
	dispatch(current)
}

// Block removes self from the runnable list, splices it into waitList
// (which stamps its state), and waits for whichever primitive holds
// waitList to unblock it. self must be the TCB of the goroutine actually
// calling Block: unlike a real single-core kernel, this Go port runs every
// thread as its own concurrently-live goroutine, so "the calling thread"
// cannot be recovered from scheduler bookkeeping alone (Current reports
// only the scheduler's priority-based notion of who *should* run, which
// can race ahead of which goroutine is really executing). It returns the
// reason recorded by that unblock: nil on a plain wakeup, ErrTimedOut or
// ErrInterrupted if the wait was cancelled by a timeout or a signal.
//
// Block releases IMCS before actually parking, mirroring gopark releasing
// its caller-supplied lock only after the thread is safely off the run
// queue: the thread must be fully spliced into waitList, and therefore
// visible to a racing Post/Unblock, before anything stops protecting
// kernel state.
func (s *Scheduler) Block(waitList *orderedList, self *TCB) error {
	release := s.lock.Acquire()
	s.runnable.SpliceTo(self, waitList)
	s.scheduleNextLocked()
	release()

	reason := <-self.resumeCh
	for _, fn := range self.takePendingReturns() {
		fn()
	}
	switch reason {
	case wakeTimedOut:
		return ErrTimedOut
	case wakeInterrupted:
		return ErrInterrupted
	default:
		return nil
	}
}

// Unblock splices t out of waitList and into the runnable list with the
// given wake reason, and preempts the running thread if t now outranks it.
// Safe to call from ISR-equivalent context (Semaphore.Post, signal
// generation), since it never itself blocks. A no-op if t has already left
// waitList: see claimUnblock for why this can legitimately happen and must
// not abort.
func (s *Scheduler) Unblock(waitList *orderedList, t *TCB, reason error) {
	wake := wakeSuccess
	switch reason {
	case ErrTimedOut:
		wake = wakeTimedOut
	case ErrInterrupted:
		wake = wakeInterrupted
	}
	preempt, ok := s.claimUnblock(waitList, t)
	if !ok {
		return
	}
	s.wake(t, wake, preempt)
}

// claimUnblock splices t out of waitList and into the runnable list, but
// only if t is still a member of waitList at the moment IMCS is acquired.
// It reports whether it did so.
//
// This exists because two independent paths can race to unblock the same
// waiter: e.g. Semaphore.Post reads its wait list's front TCB and releases
// IMCS before calling Unblock (semaphore.go's Post/Interrupt), and
// blockWithTimeout's armed timer fires on its own schedule and likewise
// only holds IMCS for a membership check before deciding to act. Checking
// membership and splicing must happen as a single critical section so that
// whichever path reaches here first is the one that actually moves t;
// orderedList.Remove aborts if asked to remove a TCB from a list it no
// longer belongs to, so the loser of the race must observe that t has
// already left waitList and back out cleanly instead of re-splicing it.
func (s *Scheduler) claimUnblock(waitList *orderedList, t *TCB) (preempt, ok bool) {
	release := s.lock.Acquire()
	defer release()
	if t.handle.list != waitList {
		return false, false
	}
	waitList.SpliceTo(t, s.runnable)
	preempt = s.current != nil && t.effectivePriority > s.current.effectivePriority
	return preempt, true
}

// wake delivers reason on t's resume channel and requests a context switch
// if t now outranks the running thread. Split out of Unblock so
// blockWithTimeout's timer callback can interpose onTimeout between the
// claim and the wake (see claimUnblock).
func (s *Scheduler) wake(t *TCB, reason wakeReason, preempt bool) {
	select {
	case t.resumeCh <- reason:
	default:
		// Buffered at size 1; a pending send from a stale wake is
		// impossible because a TCB only leaves a wait list once
		// (claimUnblock's membership check enforces that here).
		abortHook("resumeCh send would have blocked")
	}
	if preempt {
		s.requestContextSwitchLocked()
	}
}

// Yield rotates the head of the runnable list to the tail of its own
// priority band and then requests a context switch.
func (s *Scheduler) Yield() {
	release := s.lock.Acquire()
	s.runnable.RotateBand()
	release()
	s.requestContextSwitchLocked()
}

// scheduleNextLocked picks the new current thread from the head of the
// runnable list. Caller holds IMCS.
func (s *Scheduler) scheduleNextLocked() {
	s.current = s.runnable.Front()
}

// requestContextSwitchLocked records the head of the runnable list as the
// current thread. It wakes nothing: every thread runs as its own goroutine,
// and a blocked one resumes only through wake's send on its resumeCh. It
// acquires IMCS itself, so callers must not hold it. Kept as a named step
// so the split mirrors requestContextSwitch in spec.md §6.
func (s *Scheduler) requestContextSwitchLocked() {
	release := s.lock.Acquire()
	next := s.runnable.Front()
	s.current = next
	release()
}

// SwitchContext is called by the architecture trampoline when the
// outgoing thread's stack pointer has been saved (in this port: when the
// outgoing thread's goroutine is about to park). If the outgoing thread is
// still runnable and round-robin, it is rotated past its same-priority
// peers before the new head is selected. Returns the TCB that should now
// run.
func (s *Scheduler) SwitchContext(outgoing *TCB) *TCB {
	release := s.lock.Acquire()
	defer release()
	if outgoing != nil && outgoing.state == Runnable && outgoing.policy == RoundRobin {
		s.runnable.RotateBand()
	}
	s.current = s.runnable.Front()
	return s.current
}

// TickInterruptHandler advances the tick counter, drives software-timer
// expiries, and rotates the running thread's priority band if its
// round-robin slice has elapsed. Returns whether a context switch is now
// required (the caller, the architecture's tick ISR epilogue, acts on it).
func (s *Scheduler) TickInterruptHandler() bool {
	release := s.lock.Acquire()
	s.tickCount++
	tick := s.tickCount
	timers := s.timers
	before := s.runnable.Front()
	release()

	if timers != nil {
		timers.ExpireUpTo(tick)
	}

	release = s.lock.Acquire()
	if s.current != nil && s.current.policy == RoundRobin {
		s.runnable.RotateBand()
	}
	after := s.runnable.Front()
	release()

	return before != after
}

// Remove is used by Thread termination to take a TCB permanently out of
// scheduling.
func (s *Scheduler) Remove(t *TCB) {
	release := s.lock.Acquire()
	defer release()
	if t.handle.list != nil {
		t.handle.list.Remove(t)
	}
	t.state = Terminated
}

// blockWithTimeout is Block plus a one-shot timer armed at expiry: if the
// timer fires before some other unblock wins the race, onTimeout runs
// (restoring whatever side effect the caller made in anticipation of
// immediate success — e.g. Semaphore.Wait's speculative decrement) and the
// thread is unblocked with ErrTimedOut. If the ordinary unblock wins
// first, the timer is cancelled and never fires. This backs every timed
// wait in the kernel (Semaphore.TryWaitFor/Until, Mutex's timed locks,
// ConditionVariable's timed waits, queue push/pop timed variants).
func (s *Scheduler) blockWithTimeout(waitList *orderedList, expiry uint64, onTimeout func(), self *TCB) error {
	release := s.lock.Acquire()
	s.runnable.SpliceTo(self, waitList)
	s.scheduleNextLocked()
	release()

	id := s.timers.Arm(expiry, func() {
		preempt, ok := s.claimUnblock(waitList, self)
		if !ok {
			// Some other path (a Post, an Interrupt, an ordinary
			// Unblock) already moved self out of waitList in the
			// same IMCS window; that path owns the wake and
			// onTimeout must not run, or the semaphore's restored
			// value would double-count the resource handoff.
			return
		}
		if onTimeout != nil {
			onTimeout()
		}
		s.wake(self, wakeTimedOut, preempt)
	})

	reason := <-self.resumeCh
	if reason != wakeTimedOut {
		s.timers.Cancel(id)
	}
	for _, fn := range self.takePendingReturns() {
		fn()
	}
	switch reason {
	case wakeTimedOut:
		return ErrTimedOut
	case wakeInterrupted:
		return ErrInterrupted
	default:
		return nil
	}
}

// TickRateHz is the kernel's compile-time timebase, matching spec.md §6's
// "tick rate in Hz" configuration constant. A real port selects this to
// match its hardware timer; the Go simulation fixes it so TryWaitFor/Until
// callers get a deterministic tick count from a wall-clock duration.
const TickRateHz = 1000

func ticksFromDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ticks := uint64(d / (time.Second / TickRateHz))
	return ticks
}

func tickFromTime(t time.Time) uint64 {
	return ticksFromDuration(time.Until(t))
}

// expiryFromDuration is a small convenience used by TryWaitFor-style
// callers: expiry = current tick + ticks(d) + 1, the single-tick overshoot
// spec.md's Open Question documents as the half-open tick boundary on
// insertion into the timer wheel (a wait armed at tick T for duration D
// reports timedOut no earlier than T+D+1, never before).
func (s *Scheduler) expiryFromDuration(d time.Duration) uint64 {
	return s.TickCount() + ticksFromDuration(d) + 1
}

func (s *Scheduler) expiryFromTime(t time.Time) uint64 {
	return s.expiryFromDuration(time.Until(t))
}
