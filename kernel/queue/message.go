package queue

import (
	"time"

	"github.com/distortos-go/kernel/kernel"
)

// entry is one priority-tagged element of a MessageQueue's
// priority-sorted slice.
type entry struct {
	priority uint8
	data     []byte
}

// MessageQueue layers per-element priority on top of the same
// two-semaphore skeleton as FifoBase: Push still blocks on a free slot and
// Pop still blocks on an available element, but Pop always returns the
// highest-priority element currently queued, FIFO among equal priorities —
// grounded on the scheduler's own ordered-list splice discipline, reused
// here as a small priority-sorted slice since a message queue's bounded
// capacity makes insertion-sort cheap enough to do under the same buffer
// lock FifoBase already takes.
type MessageQueue struct {
	sched *kernel.Scheduler

	slotSize int
	entries  []entry // sorted descending by priority, FIFO within a priority
	bufLock  *kernel.Mutex

	popSem  *kernel.Semaphore
	pushSem *kernel.Semaphore
}

// NewMessageQueue constructs an empty priority queue of capacity slots,
// each exactly slotSize bytes wide.
func NewMessageQueue(sched *kernel.Scheduler, capacity, slotSize int) *MessageQueue {
	return &MessageQueue{
		sched:    sched,
		slotSize: slotSize,
		entries:  make([]entry, 0, capacity),
		bufLock:  kernel.NewMutex(sched, kernel.Normal, kernel.None, 0),
		popSem:   kernel.NewSemaphore(sched, 0, capacity),
		pushSem:  kernel.NewSemaphore(sched, capacity, capacity),
	}
}

func (q *MessageQueue) checkSize(data []byte) error {
	if len(data) != q.slotSize {
		return kernel.ErrMessageSize
	}
	return nil
}

// insertLocked inserts e after every existing entry of priority >= e's, so
// the slice stays sorted descending by priority with insertion order
// preserved among equals.
func (q *MessageQueue) insertLocked(e entry) {
	i := len(q.entries)
	for i > 0 && q.entries[i-1].priority < e.priority {
		i--
	}
	q.entries = append(q.entries, entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

func (q *MessageQueue) pushEntry(self *kernel.TCB, data []byte, priority uint8) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	if err := q.bufLock.Lock(self); err != nil {
		return err
	}
	q.insertLocked(entry{priority: priority, data: buf})
	return q.bufLock.Unlock(self)
}

func (q *MessageQueue) popEntry(self *kernel.TCB, data []byte) (uint8, error) {
	if err := q.bufLock.Lock(self); err != nil {
		return 0, err
	}
	head := q.entries[0]
	copy(q.entries, q.entries[1:])
	q.entries = q.entries[:len(q.entries)-1]
	if err := q.bufLock.Unlock(self); err != nil {
		return 0, err
	}

	copy(data, head.data)
	return head.priority, nil
}

// Push blocks until a slot is free, then enqueues data at priority. self
// must be the TCB of the calling thread (see kernel.Scheduler.Block's doc
// comment for why the queue cannot infer this from scheduler bookkeeping
// alone).
func (q *MessageQueue) Push(self *kernel.TCB, data []byte, priority uint8) error {
	if err := q.checkSize(data); err != nil {
		return err
	}
	if err := q.pushSem.Wait(self); err != nil {
		return err
	}
	if err := q.pushEntry(self, data, priority); err != nil {
		return err
	}
	return q.popSem.Post()
}

// TryPush enqueues data only if a slot is immediately free.
func (q *MessageQueue) TryPush(self *kernel.TCB, data []byte, priority uint8) error {
	if err := q.checkSize(data); err != nil {
		return err
	}
	if err := q.pushSem.TryWait(); err != nil {
		return err
	}
	if err := q.pushEntry(self, data, priority); err != nil {
		return err
	}
	return q.popSem.Post()
}

// TryPushFor is Push bounded by a timeout.
func (q *MessageQueue) TryPushFor(self *kernel.TCB, data []byte, priority uint8, d time.Duration) error {
	if err := q.checkSize(data); err != nil {
		return err
	}
	if err := q.pushSem.TryWaitFor(self, d); err != nil {
		return err
	}
	if err := q.pushEntry(self, data, priority); err != nil {
		return err
	}
	return q.popSem.Post()
}

// TryPushUntil is Push bounded by an absolute deadline.
func (q *MessageQueue) TryPushUntil(self *kernel.TCB, data []byte, priority uint8, t time.Time) error {
	if err := q.checkSize(data); err != nil {
		return err
	}
	if err := q.pushSem.TryWaitUntil(self, t); err != nil {
		return err
	}
	if err := q.pushEntry(self, data, priority); err != nil {
		return err
	}
	return q.popSem.Post()
}

// Pop blocks until an element is available, then copies the
// highest-priority one into data and returns its priority. self must be
// the TCB of the calling thread, same caveat as Push.
func (q *MessageQueue) Pop(self *kernel.TCB, data []byte) (uint8, error) {
	if err := q.checkSize(data); err != nil {
		return 0, err
	}
	if err := q.popSem.Wait(self); err != nil {
		return 0, err
	}
	priority, err := q.popEntry(self, data)
	if err != nil {
		return 0, err
	}
	return priority, q.pushSem.Post()
}

// TryPop copies the highest-priority element into data only if one is
// immediately available.
func (q *MessageQueue) TryPop(self *kernel.TCB, data []byte) (uint8, error) {
	if err := q.checkSize(data); err != nil {
		return 0, err
	}
	if err := q.popSem.TryWait(); err != nil {
		return 0, err
	}
	priority, err := q.popEntry(self, data)
	if err != nil {
		return 0, err
	}
	return priority, q.pushSem.Post()
}

// TryPopFor is Pop bounded by a timeout.
func (q *MessageQueue) TryPopFor(self *kernel.TCB, data []byte, d time.Duration) (uint8, error) {
	if err := q.checkSize(data); err != nil {
		return 0, err
	}
	if err := q.popSem.TryWaitFor(self, d); err != nil {
		return 0, err
	}
	priority, err := q.popEntry(self, data)
	if err != nil {
		return 0, err
	}
	return priority, q.pushSem.Post()
}

// TryPopUntil is Pop bounded by an absolute deadline.
func (q *MessageQueue) TryPopUntil(self *kernel.TCB, data []byte, t time.Time) (uint8, error) {
	if err := q.checkSize(data); err != nil {
		return 0, err
	}
	if err := q.popSem.TryWaitUntil(self, t); err != nil {
		return 0, err
	}
	priority, err := q.popEntry(self, data)
	if err != nil {
		return 0, err
	}
	return priority, q.pushSem.Post()
}

// Length returns the number of elements currently queued.
func (q *MessageQueue) Length() int { return q.popSem.GetValue() }

// Capacity returns the fixed slot count the queue was constructed with.
func (q *MessageQueue) Capacity() int { return cap(q.entries) }
