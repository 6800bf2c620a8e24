package kernel

import (
	"testing"
	"time"
)

// TestMutexPriorityInheritance is scenario 3 from spec.md §8: thread L
// (priority 1) locks an inheriting mutex; thread H (priority 5) blocks on
// it. L's effective priority must rise to 5 for as long as it holds the
// mutex, then revert to 1 on unlock.
func TestMutexPriorityInheritance(t *testing.T) {
	sched := newScheduler()
	m := NewMutex(sched, Normal, PriorityInheritance, 0)

	release := make(chan struct{})
	low := NewThread(sched, 1, FIFO, func(th *Thread) {
		if err := m.Lock(th.TCB()); err != nil {
			t.Errorf("L lock: %v", err)
			return
		}
		<-release
		if err := m.Unlock(th.TCB()); err != nil {
			t.Errorf("L unlock: %v", err)
		}
	}, testLaunch)
	low.Start()

	deadline := time.Now().Add(time.Second)
	for m.owner != low.TCB() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.owner != low.TCB() {
		t.Fatal("L never became mutex owner")
	}

	high := NewThread(sched, 5, FIFO, func(th *Thread) {
		if err := m.Lock(th.TCB()); err != nil {
			t.Errorf("H lock: %v", err)
			return
		}
		if err := m.Unlock(th.TCB()); err != nil {
			t.Errorf("H unlock: %v", err)
		}
	}, testLaunch)
	high.Start()
	waitForState(t, high.TCB(), BlockedOnMutex)

	deadline = time.Now().Add(time.Second)
	for low.TCB().EffectivePriority() != 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := low.TCB().EffectivePriority(); got != 5 {
		t.Fatalf("L's effective priority = %d while H waits, want 5", got)
	}

	close(release)
	low.Join()
	high.Join()

	if got := low.TCB().EffectivePriority(); got != 1 {
		t.Fatalf("L's effective priority after unlock = %d, want 1", got)
	}
}

// TestMutexTimedWait is scenario 4 from spec.md §8: tryLockFor(3 ticks) on
// an already-locked mutex at tick T returns timedOut at tick T+3+1, and the
// speculative decrement made before blocking is restored.
func TestMutexTimedWait(t *testing.T) {
	sched := newScheduler()
	m := NewMutex(sched, Normal, None, 0)

	holder := NewThread(sched, 1, FIFO, func(th *Thread) {
		if err := m.Lock(th.TCB()); err != nil {
			t.Errorf("holder lock: %v", err)
		}
	}, testLaunch)
	holder.Start()
	holder.Join() // returns once the entry function (and its Lock) completes

	if m.owner != holder.TCB() {
		t.Fatal("holder never became mutex owner")
	}
	if got := m.sem.GetValue(); got != 0 {
		t.Fatalf("sem value after lock = %d, want 0", got)
	}

	result := make(chan error, 1)
	contender := NewThread(sched, 2, FIFO, func(th *Thread) {
		result <- m.TryLockFor(th.TCB(), 3*(time.Second/TickRateHz))
	}, testLaunch)
	contender.Start()
	waitForState(t, contender.TCB(), BlockedOnMutex)

	for i := 0; i < 4; i++ {
		sched.TickInterruptHandler()
	}

	select {
	case err := <-result:
		if err != ErrTimedOut {
			t.Fatalf("TryLockFor returned %v, want ErrTimedOut", err)
		}
	case <-time.After(time.Second):
		t.Fatal("TryLockFor never returned after 4 ticks")
	}

	if got := m.sem.GetValue(); got != 0 {
		t.Fatalf("sem value after timeout = %d, want 0 (restored)", got)
	}
}
