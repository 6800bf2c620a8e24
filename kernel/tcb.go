package kernel

import "github.com/google/uuid"

// Policy is a thread's scheduling policy within its priority band.
type Policy uint8

const (
	// FIFO threads keep the CPU until they block or a higher-priority
	// thread becomes runnable; no implicit rotation happens among them.
	FIFO Policy = iota
	// RoundRobin threads are rotated to the tail of their priority band
	// once per elapsed time slice (one tick, per spec).
	RoundRobin
)

// State is the lifecycle state of a TCB. It must always match the tag of
// the list currently holding the TCB: Runnable threads live in the
// scheduler's runnable list, Sleeping/BlockedOnX threads live in the
// matching primitive's wait list.
type State uint8

const (
	Runnable State = iota
	Sleeping
	BlockedOnSemaphore
	BlockedOnMutex
	BlockedOnConditionVariable
	BlockedOnSignalWait
	Terminated
)

// listHandle is a TCB's position within whichever orderedList currently
// holds it. Per the design note on back-pointers and strict aliasing, a TCB
// never stores a raw pointer into a list node; it stores the owning list's
// identity plus a stable handle that list hands out and later uses to
// locate the node in O(1) without walking.
type listHandle struct {
	list *orderedList
	node *listNode
}

// TCB is a thread control block: the kernel's view of one schedulable
// thread. All fields are protected by IMCS; nothing here is safe to read or
// write without holding the kernel lock, except fields documented
// immutable.
type TCB struct {
	id uuid.UUID // debug identity only, never used for scheduling decisions

	// Immutable after construction.
	sched        *Scheduler
	basePriority uint8
	policy       Policy
	run          func(*TCB) // the thread's entry point, set once at construction

	// Mutated under IMCS.
	effectivePriority uint8
	state             State
	handle            listHandle
	ownedMutexes      []*Mutex
	blockedOnMutex    *Mutex // set while state == BlockedOnMutex, for inheritance chains

	// resumeCh is this TCB's stand-in for a saved stack pointer: parking
	// is blocking on a receive from resumeCh, and unblocking is an
	// unblocking send to it. See kernel/arch for the full justification.
	resumeCh chan wakeReason

	// wake is not read or written anywhere: the reason a Block call
	// returns travels over resumeCh instead.
	wake wakeReason

	joinCh chan struct{}

	// pendingReturn holds asynchronous handler-delivery requests armed by
	// arch.RequestFunctionExecution (see kernel/signal); drained by the
	// scheduler at the next return-to-thread checkpoint (today: whenever
	// Block/blockWithTimeout resume this TCB).
	pendingReturn []func()
}

// wakeReason records why Scheduler.Block returned, so the primitive that
// had parked the thread can translate it into the right error.
type wakeReason uint8

const (
	wakeSuccess wakeReason = iota
	wakeTimedOut
	wakeInterrupted
)

// NewTCB constructs a thread control block. priority is the base priority
// (0..255, higher runs first); run is the thread's entry point, invoked by
// the architecture shim once the thread is started.
func NewTCB(priority uint8, policy Policy, run func(*TCB)) *TCB {
	return &TCB{
		id:                uuid.New(),
		basePriority:      priority,
		effectivePriority: priority,
		policy:            policy,
		run:               run,
		state:             Terminated,
		resumeCh:          make(chan wakeReason, 1),
		joinCh:            make(chan struct{}),
	}
}

// ID returns the thread's debug identity.
func (t *TCB) ID() uuid.UUID { return t.id }

// Run invokes the thread's entry point. Called once, by the goroutine
// arch.InitializeStack spawns for this TCB.
func (t *TCB) Run() { t.run(t) }

// ArmReturnToThread queues fn to run the next time this TCB reaches a
// return-to-thread checkpoint (today: the next time a kernel Block call
// resumes it). Used by kernel/signal to implement asynchronous handler
// delivery without an architecture-level exception frame to rewrite.
func (t *TCB) ArmReturnToThread(fn func()) {
	release := t.sched.lock.Acquire()
	t.pendingReturn = append(t.pendingReturn, fn)
	release()
}

// takePendingReturns drains and returns the queued return-to-thread
// functions. Caller must not hold IMCS (the functions themselves may
// acquire it).
func (t *TCB) takePendingReturns() []func() {
	release := t.sched.lock.Acquire()
	fns := t.pendingReturn
	t.pendingReturn = nil
	release()
	return fns
}

// BasePriority returns the thread's configured priority.
func (t *TCB) BasePriority() uint8 { return t.basePriority }

// EffectivePriority returns the thread's current scheduling priority,
// which can exceed BasePriority while it owns a priority-boosting mutex.
func (t *TCB) EffectivePriority() uint8 { return t.effectivePriority }

// State returns the thread's current lifecycle state.
func (t *TCB) State() State { return t.state }

// setEffectivePriorityLocked updates effective priority and, if the TCB is
// currently in a list, resorts it to preserve that list's ordering
// invariant. Caller must hold IMCS.
func (t *TCB) setEffectivePriorityLocked(priority uint8) {
	if priority < t.basePriority {
		priority = t.basePriority
	}
	if priority == t.effectivePriority {
		return
	}
	t.effectivePriority = priority
	if t.handle.list != nil {
		t.handle.list.resortLocked(t.handle.node)
	}
}
