//go:build simhost

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/distortos-go/kernel/kernel"
)

// runTickSource models the hardware timer interrupt as a real SIGALRM: a
// wall-clock ticker self-delivers SIGALRM to this process at TickRateHz,
// and Scheduler.TickInterruptHandler only runs once that signal is actually
// received, rather than straight off the ticker. This is what makes
// internal/imcs's simhost Acquire load-bearing: every kernel-state mutation
// masks SIGALRM for its duration, so the "interrupt" this tick source
// raises can never land in the middle of one, the same guarantee
// PRIMASK/BASEPRI gives a real Cortex-M port against its timer ISR.
func runTickSource(ctx context.Context, sched *kernel.Scheduler) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGALRM)
	defer signal.Stop(sigCh)

	pid := os.Getpid()
	ticker := time.NewTicker(time.Second / kernel.TickRateHz)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := unix.Kill(pid, unix.SIGALRM); err != nil {
				return err
			}
		case <-sigCh:
			sched.TickInterruptHandler()
		}
	}
}
