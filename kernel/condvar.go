package kernel

import "time"

// ConditionVariable is built over an internal wait list: waiters block
// directly on that list through the scheduler, and there is no private
// semaphore per waiter. Unlike a Semaphore, a condition
// variable carries no memory of missed notifications: a thread that calls
// Wait after NotifyAll already ran simply blocks until the next
// notification.
type ConditionVariable struct {
	sched *Scheduler
	wait  *orderedList
}

// NewConditionVariable constructs an empty condition variable.
func NewConditionVariable(sched *Scheduler) *ConditionVariable {
	return &ConditionVariable{sched: sched, wait: newOrderedList(BlockedOnConditionVariable)}
}

// Wait atomically unlocks m and blocks self until notified, then relocks m
// before returning. Mirrors std::condition_variable::wait. self must be
// the TCB of the calling thread, same caveat as Mutex.Lock.
func (cv *ConditionVariable) Wait(m *Mutex, self *TCB) error {
	if err := m.Unlock(self); err != nil {
		return err
	}
	err := cv.sched.Block(cv.wait, self)
	if lockErr := m.Lock(self); lockErr != nil && err == nil {
		err = lockErr
	}
	return err
}

// WaitFor is Wait with a timeout.
func (cv *ConditionVariable) WaitFor(m *Mutex, self *TCB, d time.Duration) error {
	return cv.waitUntilTick(m, self, cv.sched.expiryFromDuration(d))
}

// WaitUntil is Wait with an absolute deadline.
func (cv *ConditionVariable) WaitUntil(m *Mutex, self *TCB, t time.Time) error {
	return cv.waitUntilTick(m, self, cv.sched.expiryFromTime(t))
}

func (cv *ConditionVariable) waitUntilTick(m *Mutex, self *TCB, expiry uint64) error {
	if err := m.Unlock(self); err != nil {
		return err
	}
	err := cv.sched.blockWithTimeout(cv.wait, expiry, func() {}, self)
	if lockErr := m.Lock(self); lockErr != nil && err == nil {
		err = lockErr
	}
	return err
}

// NotifyOne wakes the highest-priority waiter, if any.
func (cv *ConditionVariable) NotifyOne() {
	release := cv.sched.lock.Acquire()
	var woken *TCB
	if !cv.wait.Empty() {
		woken = cv.wait.Front()
	}
	release()
	if woken != nil {
		cv.sched.Unblock(cv.wait, woken, nil)
	}
}

// NotifyAll wakes every currently blocked waiter.
func (cv *ConditionVariable) NotifyAll() {
	for {
		release := cv.sched.lock.Acquire()
		if cv.wait.Empty() {
			release()
			return
		}
		woken := cv.wait.Front()
		release()
		cv.sched.Unblock(cv.wait, woken, nil)
	}
}
