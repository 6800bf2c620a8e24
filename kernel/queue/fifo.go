// Package queue implements the kernel's FIFO and priority message queues:
// fixed-capacity, fixed-slot-size inter-thread mailboxes built as thin
// compositions over kernel.Semaphore, per spec.md §4.7.
package queue

import (
	"time"

	"github.com/distortos-go/kernel/kernel"
)

// FifoBase is a fixed-capacity circular buffer of N slots, each exactly
// slotSize bytes. It is the undecorated FIFO queue; MessageQueue layers
// per-element priority on top of the same two-semaphore skeleton.
//
// popSem counts readable slots (elements waiting to be popped); pushSem
// counts writable slots (free capacity). Both start life with the
// capacity split appropriately and are never reset, mirroring the
// teacher's treatment of sync.Mutex's embedded semaphore as the sole
// source of blocking truth rather than a separately maintained flag.
type FifoBase struct {
	sched *kernel.Scheduler

	slotSize int
	buffer   [][]byte
	head     int // next slot to pop
	tail     int // next slot to push
	bufLock  *kernel.Mutex

	popSem  *kernel.Semaphore // value = elements available to pop
	pushSem *kernel.Semaphore // value = free slots available to push into
}

// NewFifoBase constructs an empty queue of capacity slots, each exactly
// slotSize bytes wide.
func NewFifoBase(sched *kernel.Scheduler, capacity, slotSize int) *FifoBase {
	buf := make([][]byte, capacity)
	for i := range buf {
		buf[i] = make([]byte, slotSize)
	}
	return &FifoBase{
		sched:    sched,
		slotSize: slotSize,
		buffer:   buf,
		bufLock:  kernel.NewMutex(sched, kernel.Normal, kernel.None, 0),
		popSem:   kernel.NewSemaphore(sched, 0, capacity),
		pushSem:  kernel.NewSemaphore(sched, capacity, capacity),
	}
}

func (f *FifoBase) checkSize(data []byte) error {
	if len(data) != f.slotSize {
		return kernel.ErrMessageSize
	}
	return nil
}

func (f *FifoBase) copyIn(self *kernel.TCB, data []byte) error {
	if err := f.bufLock.Lock(self); err != nil {
		return err
	}
	copy(f.buffer[f.tail], data)
	f.tail = (f.tail + 1) % len(f.buffer)
	return f.bufLock.Unlock(self)
}

func (f *FifoBase) copyOut(self *kernel.TCB, data []byte) error {
	if err := f.bufLock.Lock(self); err != nil {
		return err
	}
	copy(data, f.buffer[f.head])
	f.head = (f.head + 1) % len(f.buffer)
	return f.bufLock.Unlock(self)
}

// Push blocks until a slot is free, then enqueues data. self must be the
// TCB of the calling thread (see kernel.Scheduler.Block's doc comment for
// why the queue cannot infer this from scheduler bookkeeping alone).
func (f *FifoBase) Push(self *kernel.TCB, data []byte) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.pushSem.Wait(self); err != nil {
		return err
	}
	if err := f.copyIn(self, data); err != nil {
		return err
	}
	return f.popSem.Post()
}

// TryPush enqueues data only if a slot is immediately free.
func (f *FifoBase) TryPush(self *kernel.TCB, data []byte) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.pushSem.TryWait(); err != nil {
		return err
	}
	if err := f.copyIn(self, data); err != nil {
		return err
	}
	return f.popSem.Post()
}

// TryPushFor is Push bounded by a timeout.
func (f *FifoBase) TryPushFor(self *kernel.TCB, data []byte, d time.Duration) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.pushSem.TryWaitFor(self, d); err != nil {
		return err
	}
	if err := f.copyIn(self, data); err != nil {
		return err
	}
	return f.popSem.Post()
}

// TryPushUntil is Push bounded by an absolute deadline.
func (f *FifoBase) TryPushUntil(self *kernel.TCB, data []byte, t time.Time) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.pushSem.TryWaitUntil(self, t); err != nil {
		return err
	}
	if err := f.copyIn(self, data); err != nil {
		return err
	}
	return f.popSem.Post()
}

// Pop blocks until an element is available, then copies it into data. self
// must be the TCB of the calling thread, same caveat as Push.
func (f *FifoBase) Pop(self *kernel.TCB, data []byte) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.popSem.Wait(self); err != nil {
		return err
	}
	if err := f.copyOut(self, data); err != nil {
		return err
	}
	return f.pushSem.Post()
}

// TryPop copies the next element into data only if one is immediately
// available.
func (f *FifoBase) TryPop(self *kernel.TCB, data []byte) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.popSem.TryWait(); err != nil {
		return err
	}
	if err := f.copyOut(self, data); err != nil {
		return err
	}
	return f.pushSem.Post()
}

// TryPopFor is Pop bounded by a timeout.
func (f *FifoBase) TryPopFor(self *kernel.TCB, data []byte, d time.Duration) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.popSem.TryWaitFor(self, d); err != nil {
		return err
	}
	if err := f.copyOut(self, data); err != nil {
		return err
	}
	return f.pushSem.Post()
}

// TryPopUntil is Pop bounded by an absolute deadline.
func (f *FifoBase) TryPopUntil(self *kernel.TCB, data []byte, t time.Time) error {
	if err := f.checkSize(data); err != nil {
		return err
	}
	if err := f.popSem.TryWaitUntil(self, t); err != nil {
		return err
	}
	if err := f.copyOut(self, data); err != nil {
		return err
	}
	return f.pushSem.Post()
}

// Length returns the number of elements currently queued.
func (f *FifoBase) Length() int { return f.popSem.GetValue() }

// Capacity returns the fixed slot count the queue was constructed with.
func (f *FifoBase) Capacity() int { return len(f.buffer) }
