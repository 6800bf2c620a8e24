package kernel

import "time"

// Semaphore is the kernel's universal blocking primitive: a counting
// semaphore over a signed value, with a priority-ordered wait list. Higher
// level primitives (Mutex, ConditionVariable, queue.FifoBase) are thin
// compositions over it.
//
// Invariant: value >= 0 iff the wait list is empty; when value < 0, |value|
// equals the number of blocked threads.
type Semaphore struct {
	sched *Scheduler
	wait  *orderedList
	value int
	// max bounds Post; zero means unbounded. Supplements the distillation
	// with the bounded semaphore the "overflow" error code in spec.md §7
	// implies existed upstream.
	max int
}

// NewSemaphore constructs a semaphore with the given initial value and an
// optional bound (0 = unbounded).
func NewSemaphore(sched *Scheduler, value int, max int) *Semaphore {
	return newTaggedSemaphore(sched, value, max, BlockedOnSemaphore)
}

// NewSignalWaitSemaphore constructs the dedicated zero-value semaphore
// backing a single signal receiver's synchronous Wait. It is exported for
// kernel/signal: unlike a general-purpose Semaphore, it is never Post()ed,
// only Interrupt()ed, which is otherwise an unexported capability.
func NewSignalWaitSemaphore(sched *Scheduler) *Semaphore {
	return newTaggedSemaphore(sched, 0, 0, BlockedOnSignalWait)
}

// newTaggedSemaphore is the constructor Mutex and ConditionVariable use so
// that a thread blocked via their embedded semaphore is reported with the
// caller's own state tag (BlockedOnMutex, BlockedOnConditionVariable)
// rather than the generic BlockedOnSemaphore, matching the State enum in
// spec.md §3's data model.
func newTaggedSemaphore(sched *Scheduler, value, max int, tag State) *Semaphore {
	return &Semaphore{
		sched: sched,
		wait:  newOrderedList(tag),
		value: value,
		max:   max,
	}
}

// GetValue returns the current counter value.
func (sem *Semaphore) GetValue() int {
	release := sem.sched.lock.Acquire()
	defer release()
	return sem.value
}

// Post increments the value and, if a thread is waiting, unblocks the
// highest-priority one (FIFO among equals). Safe to call from ISR context:
// it acquires IMCS and never itself blocks.
func (sem *Semaphore) Post() error {
	release := sem.sched.lock.Acquire()
	if sem.max > 0 && sem.value >= sem.max {
		release()
		return ErrOverflow
	}
	sem.value++
	var woken *TCB
	if !sem.wait.Empty() {
		woken = sem.wait.Front()
	}
	release()

	if woken != nil {
		sem.sched.Unblock(sem.wait, woken, nil)
	}
	return nil
}

// Wait decrements the value, blocking self if the result is negative. self
// must be the TCB of the goroutine actually calling Wait: see
// Scheduler.Block's doc comment for why it cannot be inferred from
// scheduler bookkeeping alone. Standard semaphore waits are not
// interruptible by signals, per the Open Question preserved from the
// original kernel: only the dedicated signal-wait path (kernel/signal) can
// be aborted early.
func (sem *Semaphore) Wait(self *TCB) error {
	release := sem.sched.lock.Acquire()
	sem.value--
	block := sem.value < 0
	release()

	if !block {
		return nil
	}
	return sem.sched.Block(sem.wait, self)
}

// Interrupt aborts exactly one blocked waiter with ErrInterrupted, undoing
// the speculative decrement Wait made before parking. It exists solely for
// kernel/signal's synchronous signal-wait: ordinary semaphore waits are not
// interruptible (see Wait's doc comment), but a thread parked in
// Receiver.Wait must be woken the instant a matching signal arrives even
// though nothing "posted" in the usual sense. A no-op if nothing is
// waiting (the receiver's own bookkeeping decides whether to call this at
// all).
func (sem *Semaphore) Interrupt() {
	release := sem.sched.lock.Acquire()
	if sem.wait.Empty() {
		release()
		return
	}
	sem.value++
	woken := sem.wait.Front()
	release()

	sem.sched.Unblock(sem.wait, woken, ErrInterrupted)
}

// TryWait attempts a non-blocking acquire: succeeds only if value > 0.
func (sem *Semaphore) TryWait() error {
	release := sem.sched.lock.Acquire()
	defer release()
	if sem.value > 0 {
		sem.value--
		return nil
	}
	return ErrBusy
}

// TryWaitFor waits up to d for the semaphore to become available.
func (sem *Semaphore) TryWaitFor(self *TCB, d time.Duration) error {
	return sem.tryWaitUntilTick(self, sem.sched.expiryFromDuration(d))
}

// TryWaitUntil waits until the scheduler's tick counter reaches the tick
// corresponding to t.
func (sem *Semaphore) TryWaitUntil(self *TCB, t time.Time) error {
	return sem.tryWaitUntilTick(self, sem.sched.expiryFromTime(t))
}

func (sem *Semaphore) tryWaitUntilTick(self *TCB, expiry uint64) error {
	release := sem.sched.lock.Acquire()
	sem.value--
	block := sem.value < 0
	release()

	if !block {
		return nil
	}

	return sem.sched.blockWithTimeout(sem.wait, expiry, func() {
		release := sem.sched.lock.Acquire()
		sem.value++
		release()
	}, self)
}
