//go:build simhost

package imcs

import (
	"sync"

	"golang.org/x/sys/unix"
)

// hostInterruptMask lists the signals the simhost architecture
// (cmd/simhost) treats as "maskable interrupts": the tick source delivers
// SIGALRM to emulate the hardware timer ISR, so Acquire blocks SIGALRM on
// the calling OS thread (pthread_sigmask, not a process-wide mask) around
// kernel-state mutation, playing the role real IMCS plays on ARMv7-M
// (PRIMASK/BASEPRI).
var hostInterruptMask = []int{int(unix.SIGALRM)}

// Acquire masks delivery of the simulated tick signal for the duration of
// the critical section, then takes the same mutex the default build's
// Acquire uses, so a tick "interrupt" can never observe kernel state
// mid-mutation even when the Go scheduler itself preempts the holder
// between instructions. cmd/simhost's tick source self-delivers SIGALRM
// through a real signal.Notify channel rather than calling
// Scheduler.TickInterruptHandler straight off a ticker, so this mask is
// the thing standing between a tick and a torn read of scheduler state,
// not a decoration alongside it.
func (l *Lock) Acquire() func() {
	var set unix.Sigset_t
	for _, sig := range hostInterruptMask {
		addSignal(&set, sig)
	}
	var oldset unix.Sigset_t
	_ = unix.PthreadSigmask(unix.SIG_BLOCK, &set, &oldset)

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		_ = unix.PthreadSigmask(unix.SIG_SETMASK, &oldset, nil)
	}
}

var addSignalMu sync.Mutex

func addSignal(set *unix.Sigset_t, sig int) {
	addSignalMu.Lock()
	defer addSignalMu.Unlock()
	// unix.Sigset_t's layout is platform-specific; sigsetAdd hides the bit
	// arithmetic behind the narrow helper the platform file provides.
	sigsetAdd(set, sig)
}
