package kernel

import (
	"testing"
	"time"
)

func TestConditionVariableNotifyOne(t *testing.T) {
	sched := newScheduler()
	m := NewMutex(sched, Normal, None, 0)
	cv := NewConditionVariable(sched)

	ready := false
	done := make(chan error, 1)
	waiter := NewThread(sched, 1, FIFO, func(th *Thread) {
		if err := m.Lock(th.TCB()); err != nil {
			done <- err
			return
		}
		for !ready {
			if err := cv.Wait(m, th.TCB()); err != nil {
				done <- err
				m.Unlock(th.TCB())
				return
			}
		}
		done <- m.Unlock(th.TCB())
	}, testLaunch)
	waiter.Start()
	waitForState(t, waiter.TCB(), BlockedOnConditionVariable)

	// A throwaway TCB standing in for the test harness's own identity: the
	// harness goroutine is not a registered kernel thread, but Mutex still
	// needs some self to compare against the owner it is about to record.
	main := NewTCB(0, FIFO, func(*TCB) {})
	if err := m.Lock(main); err != nil {
		t.Fatalf("main lock: %v", err)
	}
	ready = true
	if err := m.Unlock(main); err != nil {
		t.Fatalf("main unlock: %v", err)
	}
	cv.NotifyOne()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter finished with %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after NotifyOne")
	}
}

func TestConditionVariableWaitFor(t *testing.T) {
	sched := newScheduler()
	m := NewMutex(sched, Normal, None, 0)
	cv := NewConditionVariable(sched)

	done := make(chan error, 1)
	waiter := NewThread(sched, 1, FIFO, func(th *Thread) {
		if err := m.Lock(th.TCB()); err != nil {
			done <- err
			return
		}
		err := cv.WaitFor(m, th.TCB(), 3*(time.Second/TickRateHz))
		done <- err
		m.Unlock(th.TCB())
	}, testLaunch)
	waiter.Start()
	waitForState(t, waiter.TCB(), BlockedOnConditionVariable)

	for i := 0; i < 4; i++ {
		sched.TickInterruptHandler()
	}

	select {
	case err := <-done:
		if err != ErrTimedOut {
			t.Fatalf("WaitFor returned %v, want ErrTimedOut", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never timed out")
	}
}
