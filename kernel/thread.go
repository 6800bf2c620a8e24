package kernel

import "time"

// Thread is the public handle to a TCB: construct it with the thread's
// priority, scheduling policy and entry function, then Start it. The
// architecture shim (kernel/arch) supplies the goroutine that actually
// calls into the entry function, playing the role a real stack and
// initializeStack() play on hardware.
type Thread struct {
	tcb   *TCB
	start func(*TCB) // provided by kernel/arch, runs the goroutine
}

// NewThread constructs a thread. entry receives the Thread so it can call
// back into sleep/signal operations on itself.
func NewThread(sched *Scheduler, priority uint8, policy Policy, entry func(*Thread), launch func(*TCB)) *Thread {
	th := &Thread{start: launch}
	th.tcb = NewTCB(priority, policy, func(t *TCB) {
		entry(th)
		sched.Remove(t)
		close(t.joinCh)
	})
	th.tcb.sched = sched
	return th
}

// Start registers the thread with the scheduler and launches its
// goroutine.
func (th *Thread) Start() {
	th.tcb.sched.Add(th.tcb)
	th.start(th.tcb)
}

// Join blocks the calling goroutine (not a kernel thread operation; used
// by host/test code to wait for simulated-thread completion) until the
// thread terminates.
func (th *Thread) Join() {
	<-th.tcb.joinCh
}

// GetPriority returns the thread's base priority.
func (th *Thread) GetPriority() uint8 { return th.tcb.BasePriority() }

// SetPriority changes the thread's base priority. If preserveRoundRobin is
// false and the thread uses RoundRobin policy, it is also moved to the
// back of its new priority band (as if it had just been unblocked there);
// if true, its position within the band is left alone.
func (th *Thread) SetPriority(newPriority uint8, preserveRoundRobin bool) {
	sched := th.tcb.sched
	release := sched.lock.Acquire()
	t := th.tcb
	t.basePriority = newPriority
	t.setEffectivePriorityLocked(newPriority)
	if !preserveRoundRobin && t.policy == RoundRobin && t.handle.list != nil {
		t.handle.list.resortLocked(t.handle.node)
	}
	release()
}

// SleepFor blocks the calling thread for d, implemented as a timed wait on
// a private semaphore that nothing ever posts, per spec.md §6.
func (th *Thread) SleepFor(d time.Duration) error {
	sleeper := NewSemaphore(th.tcb.sched, 0, 0)
	err := sleeper.TryWaitFor(th.tcb, d)
	if err == ErrTimedOut {
		return nil
	}
	return err
}

// SleepUntil blocks the calling thread until t.
func (th *Thread) SleepUntil(t time.Time) error {
	sleeper := NewSemaphore(th.tcb.sched, 0, 0)
	err := sleeper.TryWaitUntil(th.tcb, t)
	if err == ErrTimedOut {
		return nil
	}
	return err
}

// TCB exposes the underlying control block for higher-level packages
// (kernel/signal, kernel/queue) that need to address a specific thread.
func (th *Thread) TCB() *TCB { return th.tcb }
