package queue

import (
	"bytes"
	"testing"
	"time"

	"github.com/distortos-go/kernel/kernel"
)

// harnessTCB stands in for the test goroutine's own identity: it is never
// added to a scheduler and never blocks, but FifoBase's internal mutex
// still needs some self to compare against the owner it records, same as
// every other kernel blocking primitive (see kernel.Scheduler.Block's doc
// comment).
func harnessTCB() *kernel.TCB {
	return kernel.NewTCB(0, kernel.FIFO, func(*kernel.TCB) {})
}

func TestFifoBasePushPopOrder(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewFifoBase(sched, 4, 4)
	self := harnessTCB()

	want := [][]byte{{1, 0, 0, 0}, {2, 0, 0, 0}, {3, 0, 0, 0}}
	for _, msg := range want {
		if err := q.Push(self, msg); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	for i, msg := range want {
		got := make([]byte, 4)
		if err := q.Pop(self, got); err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("Pop %d = %v, want %v", i, got, msg)
		}
	}
}

func TestFifoBaseWrongSize(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewFifoBase(sched, 2, 4)
	if err := q.Push(harnessTCB(), []byte{1, 2}); err != kernel.ErrMessageSize {
		t.Fatalf("Push wrong-size = %v, want ErrMessageSize", err)
	}
}

func TestFifoBaseTryPushFull(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewFifoBase(sched, 1, 1)
	self := harnessTCB()
	if err := q.TryPush(self, []byte{1}); err != nil {
		t.Fatalf("first TryPush: %v", err)
	}
	if err := q.TryPush(self, []byte{2}); err != kernel.ErrBusy {
		t.Fatalf("TryPush on full queue = %v, want ErrBusy", err)
	}
}

func TestFifoBasePopBlocksUntilPush(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewFifoBase(sched, 1, 1)

	result := make(chan byte, 1)
	popDone := make(chan struct{})
	popper := kernel.NewThread(sched, 1, kernel.FIFO, func(th *kernel.Thread) {
		buf := make([]byte, 1)
		if err := q.Pop(th.TCB(), buf); err != nil {
			t.Errorf("Pop: %v", err)
		}
		result <- buf[0]
		close(popDone)
	}, func(t *kernel.TCB) { go t.Run() })
	popper.Start()

	pushDone := make(chan struct{})
	pusher := kernel.NewThread(sched, 1, kernel.FIFO, func(th *kernel.Thread) {
		if err := q.Push(th.TCB(), []byte{42}); err != nil {
			t.Errorf("Push: %v", err)
		}
		close(pushDone)
	}, func(t *kernel.TCB) { go t.Run() })
	pusher.Start()

	select {
	case got := <-result:
		if got != 42 {
			t.Fatalf("popped %d, want 42", got)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Pop never returned after Push")
	}
	<-popDone
	<-pushDone
}
