//go:build !simhost

package main

import (
	"context"
	"time"

	"github.com/distortos-go/kernel/kernel"
)

// runTickSource calls Scheduler.TickInterruptHandler straight off a
// time.Ticker. This is the default build's tick source: with no real
// maskable interrupt to simulate, there is nothing for internal/imcs's
// plain-mutex Lock to mask, so the tick handler runs as an ordinary
// function call.
func runTickSource(ctx context.Context, sched *kernel.Scheduler) error {
	ticker := time.NewTicker(time.Second / kernel.TickRateHz)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sched.TickInterruptHandler()
		}
	}
}
