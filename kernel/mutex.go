package kernel

import "time"

// Type selects a Mutex's recursive-lock behavior.
type Type uint8

const (
	// Normal performs no owner check; a recursive lock by the owner
	// deadlocks against itself, exactly like a bare binary semaphore.
	Normal Type = iota
	// ErrorChecking returns ErrDeadlock instead of deadlocking when the
	// owner attempts to lock again.
	ErrorChecking
	// Recursive lets the owner lock repeatedly, tracking a recursion
	// count; it must unlock the same number of times to release.
	Recursive
)

// Protocol selects a Mutex's priority-inversion avoidance strategy.
type Protocol uint8

const (
	// None is a straight binary semaphore with owner tracking.
	None Protocol = iota
	// PriorityInheritance boosts the owner's effective priority to the
	// highest priority among threads currently blocked on this mutex,
	// transitively across a chain of owned mutexes.
	PriorityInheritance
	// PriorityProtect raises the owner's effective priority to the
	// mutex's configured Ceiling for as long as it is held, and refuses
	// a lock attempt from a thread whose base priority exceeds Ceiling.
	PriorityProtect
)

// Mutex is built over a binary Semaphore with an owner TCB, a recursion
// count, and protocol state integrating with the scheduler to boost or
// restore effective priority.
type Mutex struct {
	sched    *Scheduler
	sem      *Semaphore
	lockType Type
	protocol Protocol
	ceiling  uint8

	owner     *TCB
	recursion int
}

// NewMutex constructs a mutex of the given type and protocol. ceiling is
// only meaningful for PriorityProtect.
func NewMutex(sched *Scheduler, lockType Type, protocol Protocol, ceiling uint8) *Mutex {
	return &Mutex{
		sched:    sched,
		sem:      newTaggedSemaphore(sched, 1, 1, BlockedOnMutex),
		lockType: lockType,
		protocol: protocol,
		ceiling:  ceiling,
	}
}

// Lock acquires the mutex, blocking if it is held by another thread. self
// must be the TCB of the calling thread: see Scheduler.Block's doc comment
// for why the mutex cannot infer this from scheduler bookkeeping alone.
func (m *Mutex) Lock(self *TCB) error {
	return m.lock(self, func() error { return m.sem.Wait(self) })
}

// TryLock attempts a non-blocking lock.
func (m *Mutex) TryLock(self *TCB) error {
	return m.lock(self, func() error { return m.sem.TryWait() })
}

// TryLockFor attempts to lock within d.
func (m *Mutex) TryLockFor(self *TCB, d time.Duration) error {
	return m.lock(self, func() error { return m.sem.TryWaitFor(self, d) })
}

// TryLockUntil attempts to lock until t.
func (m *Mutex) TryLockUntil(self *TCB, t time.Time) error {
	return m.lock(self, func() error { return m.sem.TryWaitUntil(self, t) })
}

func (m *Mutex) lock(self *TCB, acquire func() error) error {
	release := m.sched.lock.Acquire()
	sameOwner := m.owner == self
	release()

	if sameOwner {
		switch m.lockType {
		case Recursive:
			release := m.sched.lock.Acquire()
			m.recursion++
			release()
			return nil
		case ErrorChecking:
			return ErrDeadlock
		}
		// Normal: no owner check, so the owner falls through to the
		// semaphore below and blocks on itself.
	}

	if m.protocol == PriorityProtect {
		if self.BasePriority() > m.ceiling {
			return ErrInvalidArgument
		}
	}

	if m.protocol == PriorityInheritance {
		m.pushInheritanceLocked(self)
	}

	release = m.sched.lock.Acquire()
	self.blockedOnMutex = m
	release()

	err := acquire()

	release = m.sched.lock.Acquire()
	self.blockedOnMutex = nil
	release()

	if err != nil {
		if m.protocol == PriorityInheritance {
			m.popInheritanceLocked(self)
		}
		return err
	}

	release = m.sched.lock.Acquire()
	m.owner = self
	m.recursion = 1
	self.ownedMutexes = append(self.ownedMutexes, m)
	release()

	if m.protocol == PriorityProtect {
		release = m.sched.lock.Acquire()
		self.setEffectivePriorityLocked(max8(self.effectivePriority, m.ceiling))
		release()
	}

	return nil
}

// pushInheritanceLocked records that self is about to contend for m and, if
// m already has an owner, boosts that owner's (and transitively, anything
// it is itself blocked on) effective priority to at least self's. Unlike
// most "Locked" helpers, it must be called without IMCS held: it acquires
// IMCS itself.
func (m *Mutex) pushInheritanceLocked(waiter *TCB) {
	release := m.sched.lock.Acquire()
	owner := m.owner
	priority := waiter.effectivePriority
	release()

	// Walk the ownership chain: if the owner is itself blocked on another
	// inheritance mutex, the boost propagates, per spec.md §4.6
	// "transitive inheritance is supported".
	for owner != nil {
		release := m.sched.lock.Acquire()
		changed := priority > owner.effectivePriority
		if changed {
			owner.setEffectivePriorityLocked(priority)
		}
		next := owner.blockedOnMutexOwner()
		release()
		if !changed {
			return
		}
		owner = next
	}
}

// popInheritanceLocked recomputes the owner's effective priority after a
// waiter gives up (lock failed or timed out) without acquiring. Only
// matters if that waiter's priority was the one currently boosting the
// mutex's owner.
func (m *Mutex) popInheritanceLocked(waiter *TCB) {
	release := m.sched.lock.Acquire()
	owner := m.owner
	release()
	if owner != nil {
		m.recomputeOwnerPriority(owner)
	}
}

// Unlock releases the mutex. For a Recursive mutex held more than once,
// only the outermost Unlock actually releases it. self must be the TCB of
// the calling thread, same caveat as Lock.
func (m *Mutex) Unlock(self *TCB) error {
	release := m.sched.lock.Acquire()
	owner := m.owner
	release()

	if owner == nil {
		return ErrOwnerDead
	}
	if owner != self {
		return ErrInvalidArgument
	}

	release = m.sched.lock.Acquire()
	if m.lockType == Recursive && m.recursion > 1 {
		m.recursion--
		release()
		return nil
	}
	m.owner = nil
	m.recursion = 0
	self.ownedMutexes = removeMutex(self.ownedMutexes, m)
	release()

	if m.protocol != None {
		m.recomputeOwnerPriority(self)
	}

	return m.sem.Post()
}

// recomputeOwnerPriority restores t's effective priority to the maximum of
// its base priority and whatever boost its remaining owned mutexes still
// justify, per spec.md §4.6 "on unlock, recompute effective priority from
// remaining owned mutexes."
func (m *Mutex) recomputeOwnerPriority(t *TCB) {
	release := m.sched.lock.Acquire()
	priority := t.basePriority
	mutexes := append([]*Mutex(nil), t.ownedMutexes...)
	release()

	for _, held := range mutexes {
		switch held.protocol {
		case PriorityProtect:
			if held.ceiling > priority {
				priority = held.ceiling
			}
		case PriorityInheritance:
			if p := held.highestWaiterPriority(); p > priority {
				priority = p
			}
		}
	}

	release = m.sched.lock.Acquire()
	t.setEffectivePriorityLocked(priority)
	release()
}

// highestWaiterPriority returns the effective priority of the highest
// priority thread currently blocked on this mutex, or 0 if none.
func (m *Mutex) highestWaiterPriority() uint8 {
	release := m.sched.lock.Acquire()
	defer release()
	if m.sem.wait.Empty() {
		return 0
	}
	return m.sem.wait.Front().effectivePriority
}

// blockedOnMutexOwner returns the owner of the mutex t is itself blocked
// on, if t's current state is BlockedOnMutex, to let inheritance boosts
// propagate transitively. Caller holds IMCS.
func (t *TCB) blockedOnMutexOwner() *TCB {
	if t.state != BlockedOnMutex || t.blockedOnMutex == nil {
		return nil
	}
	return t.blockedOnMutex.owner
}

func max8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func removeMutex(list []*Mutex, m *Mutex) []*Mutex {
	for i, v := range list {
		if v == m {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
