// Package arch is the architecture shim spec.md §6 asks an implementer to
// provide: stack initialization, the scheduling entry point, context-switch
// and asynchronous-function-execution requests, and the interrupt-masking
// lock. On real hardware these are a handful of assembly trampolines; here,
// where a "CPU core" is simulated by a goroutine, they are the thin layer
// translating kernel.TCB bookkeeping into actual goroutine lifecycles.
package arch

import (
	"github.com/distortos-go/kernel/internal/imcs"
	"github.com/distortos-go/kernel/kernel"
)

// InitializeStack is the Go-port equivalent of
// architecture::initializeStack(buffer, size, entry, threadArg): instead
// of carving a stack frame that leaves the CPU ready to resume into entry,
// it returns a launch function that spawns a goroutine running the TCB's
// entry point straight away; the goroutine is not held back until the
// scheduler dispatches it. The returned function is what kernel.NewThread's
// launch parameter expects.
func InitializeStack() func(*kernel.TCB) {
	return func(t *kernel.TCB) {
		go t.Run()
	}
}

// StartScheduling is the architecture's entry point into multitasking,
// called once at process startup after main/idle threads are preloaded.
// On hardware this never returns; here it simply hands control to
// whichever TCB ends up at the head of the runnable list, by relying on
// that TCB's own goroutine (already spawned by InitializeStack's launch
// function) to make progress once it is scheduled.
func StartScheduling(sched *kernel.Scheduler) {
	sched.Start(func(t *kernel.TCB) {
		// The calling goroutine *is* conceptually the first dispatched
		// thread's execution context on bare metal; in the Go port every
		// thread already runs as its own goroutine, so there is nothing
		// further to hand off here beyond having selected `t` as current.
	})
}

// RequestContextSwitch is the lowest-priority-exception trigger real
// hardware uses to eventually call Scheduler.switchContext. The Go port
// folds context switching into channel-based parking inside
// Scheduler.Block/Unblock, so this is kept only as the named extension
// point spec.md §6 calls out, for an architecture port that wants to
// observe "a switch is now due" (e.g. to yield a real OS thread back to
// the Go runtime's scheduler promptly instead of waiting for the next
// preemption point).
func RequestContextSwitch() {}

// RequestFunctionExecution arranges for fn to run on tcb's own goroutine
// the next time it returns to "thread mode" — here, the next time it
// resumes from a kernel block point. See kernel/signal for the consumer
// of this (asynchronous signal handler delivery).
func RequestFunctionExecution(t *kernel.TCB, fn func()) {
	t.ArmReturnToThread(fn)
}

// InterruptMaskingLock is the IMCS type architecture code external to the
// kernel package (ISR simulators, the tick source) acquires directly.
type InterruptMaskingLock = imcs.Lock
