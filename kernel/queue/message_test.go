package queue

import (
	"bytes"
	"testing"

	"github.com/distortos-go/kernel/kernel"
)

func TestMessageQueuePriorityOrder(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewMessageQueue(sched, 4, 1)
	self := harnessTCB()

	// Pushed out of order; Pop must return highest priority first, and
	// FIFO among the two priority-5 entries.
	pushes := []struct {
		data     byte
		priority uint8
	}{
		{1, 1},
		{2, 5},
		{3, 3},
		{4, 5},
	}
	for _, p := range pushes {
		if err := q.Push(self, []byte{p.data}, p.priority); err != nil {
			t.Fatalf("Push priority %d: %v", p.priority, err)
		}
	}

	want := []byte{2, 4, 3, 1}
	for i, w := range want {
		buf := make([]byte, 1)
		if _, err := q.Pop(self, buf); err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		if !bytes.Equal(buf, []byte{w}) {
			t.Fatalf("Pop %d = %v, want %v", i, buf, w)
		}
	}
}

func TestMessageQueueWrongSize(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewMessageQueue(sched, 2, 4)
	if err := q.Push(harnessTCB(), []byte{1, 2}, 0); err != kernel.ErrMessageSize {
		t.Fatalf("Push wrong-size = %v, want ErrMessageSize", err)
	}
}

func TestMessageQueueCapacityStableAcrossChurn(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewMessageQueue(sched, 2, 1)
	self := harnessTCB()

	want := q.Capacity()
	for i := 0; i < 50; i++ {
		if err := q.Push(self, []byte{byte(i)}, 0); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if _, err := q.Pop(self, make([]byte, 1)); err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		if got := q.Capacity(); got != want {
			t.Fatalf("Capacity after %d push/pop cycles = %d, want %d (shrunk backing array)", i+1, got, want)
		}
	}
}

func TestMessageQueueTryPopEmpty(t *testing.T) {
	sched := kernel.NewTestScheduler()
	q := NewMessageQueue(sched, 2, 1)
	if _, err := q.TryPop(harnessTCB(), make([]byte, 1)); err != kernel.ErrBusy {
		t.Fatalf("TryPop on empty queue = %v, want ErrBusy", err)
	}
}
