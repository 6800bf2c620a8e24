package kernel

import (
	"testing"
	"time"
)

func TestSemaphoreTryWait(t *testing.T) {
	sched := newScheduler()
	sem := NewSemaphore(sched, 1, 1)

	if err := sem.TryWait(); err != nil {
		t.Fatalf("TryWait on value=1: %v", err)
	}
	if err := sem.TryWait(); err != ErrBusy {
		t.Fatalf("TryWait on value=0 = %v, want ErrBusy", err)
	}
	if err := sem.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got := sem.GetValue(); got != 1 {
		t.Fatalf("value after post = %d, want 1", got)
	}
}

func TestSemaphoreOverflow(t *testing.T) {
	sched := newScheduler()
	sem := NewSemaphore(sched, 1, 1)
	if err := sem.Post(); err != ErrOverflow {
		t.Fatalf("Post past max = %v, want ErrOverflow", err)
	}
}

// TestSemaphoreWaitBlocksAndWakes exercises the invariant from spec.md §8:
// value < 0 while a thread is blocked, and Post wakes it.
func TestSemaphoreWaitBlocksAndWakes(t *testing.T) {
	sched := newScheduler()
	sem := NewSemaphore(sched, 0, 0)

	done := make(chan error, 1)
	waiter := NewThread(sched, 1, FIFO, func(th *Thread) {
		done <- sem.Wait(th.TCB())
	}, testLaunch)
	waiter.Start()
	waitForState(t, waiter.TCB(), BlockedOnSemaphore)

	if got := sem.GetValue(); got != -1 {
		t.Fatalf("value while one waiter blocked = %d, want -1", got)
	}

	if err := sem.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter's Wait returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Post")
	}
}

func TestSemaphoreInterrupt(t *testing.T) {
	sched := newScheduler()
	sem := NewSignalWaitSemaphore(sched)

	done := make(chan error, 1)
	waiter := NewThread(sched, 1, FIFO, func(th *Thread) {
		done <- sem.Wait(th.TCB())
	}, testLaunch)
	waiter.Start()
	waitForState(t, waiter.TCB(), BlockedOnSignalWait)

	sem.Interrupt()

	select {
	case err := <-done:
		if err != ErrInterrupted {
			t.Fatalf("waiter's Wait returned %v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Interrupt")
	}
	if got := sem.GetValue(); got != 0 {
		t.Fatalf("value after Interrupt = %d, want 0 (restored)", got)
	}
}
