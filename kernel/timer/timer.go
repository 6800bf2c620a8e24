// Package timer implements the kernel's software-timer engine: an ordered
// set of time-point -> callback entries, driven by the tick interrupt
// handler, that every timed-wait operation in the kernel package arms a
// one-shot entry against.
package timer

import (
	"sync"

	"github.com/google/btree"
)

// ID identifies an armed timer so it can be cancelled before it fires (the
// usual case: a concurrent Post/Unblock won the race and the timeout must
// not also fire).
type ID uint64

// entry is one node of the engine's ordered set, ordered by (expiry, seq)
// so that entries with equal expiry still have a total, stable order —
// btree.BTreeG requires a strict weak ordering and ties would otherwise be
// ambiguous.
type entry struct {
	expiry uint64
	seq    uint64
	id     ID
	fn     func()
}

func less(a, b entry) bool {
	if a.expiry != b.expiry {
		return a.expiry < b.expiry
	}
	return a.seq < b.seq
}

// Engine is the kernel's ordered time-point -> callback set. Picked over a
// container/heap because the kernel also needs to cancel an armed timer by
// identity before it fires (a losing race between a timed wait and a
// concurrent Post), which a btree supports in O(log n) without the
// "find-then-fix-up" dance a heap needs; see DESIGN.md.
type Engine struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[entry]
	byID   map[ID]entry
	nextID ID
	seq    uint64
}

// NewEngine constructs an empty timer engine.
func NewEngine() *Engine {
	return &Engine{
		tree: btree.NewG(32, less),
		byID: make(map[ID]entry),
	}
}

// Arm schedules fn to run the next time ExpireUpTo observes a tick >=
// expiry. fn must be short and non-blocking: it runs synchronously from
// ExpireUpTo, which does not hold IMCS while calling it, so fn acquires
// IMCS itself for any kernel state it touches.
func (e *Engine) Arm(expiry uint64, fn func()) ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.seq++
	ent := entry{expiry: expiry, seq: e.seq, id: e.nextID, fn: fn}
	e.tree.ReplaceOrInsert(ent)
	e.byID[ent.id] = ent
	return ent.id
}

// Cancel removes a still-pending timer. Returns false if it already fired
// (or never existed), matching "if a concurrent post wins, the timer is
// cancelled" from spec.md §4.3 — the caller is expected to treat a false
// return as "too late, the expiry callback already ran or is about to."
func (e *Engine) Cancel(id ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return false
	}
	delete(e.byID, id)
	e.tree.Delete(ent)
	return true
}

// ExpireUpTo runs and removes every entry with expiry <= tick, in expiry
// order. Called from the scheduler's TickInterruptHandler outside of IMCS:
// each fn is responsible for acquiring IMCS itself for whatever kernel
// state it touches, the same way a real tick ISR's timer callbacks run
// with interrupts already unmasked for nested higher-priority interrupts.
func (e *Engine) ExpireUpTo(tick uint64) {
	for {
		e.mu.Lock()
		min, ok := e.tree.Min()
		if !ok || min.expiry > tick {
			e.mu.Unlock()
			return
		}
		e.tree.Delete(min)
		delete(e.byID, min.id)
		e.mu.Unlock()

		min.fn()
	}
}
