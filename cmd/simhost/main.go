// Command simhost is a worked example of the kernel running on the
// goroutine-backed "simhost" architecture: a tick source standing in for a
// hardware timer interrupt, a handful of threads exercising the scheduler,
// a message queue and the signal subsystem.
package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/distortos-go/kernel/kernel"
	"github.com/distortos-go/kernel/kernel/arch"
	"github.com/distortos-go/kernel/kernel/queue"
	"github.com/distortos-go/kernel/kernel/signal"
)

// main builds the demo threads, starts them, and runs runTickSource (which
// drives Scheduler.TickInterruptHandler at TickRateHz, standing in for the
// hardware timer ISR a real architecture port wires to the same call) as
// the only leg of an errgroup, so main can collect its first unexpected
// error; the demo threads are not in the group and are waited for with
// Join. See ticksource_default.go and ticksource_simhost.go for the two
// build-tag-selected runTickSource implementations.
func main() {
	sched := kernel.Init()

	mq := queue.NewMessageQueue(sched, 4, 8)

	idle := kernel.NewThread(sched, 0, kernel.RoundRobin, func(th *kernel.Thread) {
		for {
			if err := th.SleepFor(time.Hour); err != nil {
				return
			}
		}
	}, arch.InitializeStack())

	var sigReceiver *signal.Receiver

	watcher := kernel.NewThread(sched, 8, kernel.FIFO, func(th *kernel.Thread) {
		info, err := sigReceiver.TryWaitFor(signal.Full, 50*time.Millisecond)
		if err != nil {
			fmt.Println("signal wait failed:", err)
			return
		}
		fmt.Printf("received signal %d (code %d)\n", info.Number, info.Code)
	}, arch.InitializeStack())
	// No catcher: the watcher only ever consumes signals synchronously
	// through TryWaitFor, so asynchronous delivery has nothing to wire up.
	sigReceiver = signal.NewReceiver(sched, watcher.TCB(), nil, 4)

	producer := kernel.NewThread(sched, 10, kernel.FIFO, func(th *kernel.Thread) {
		for i := 0; i < 5; i++ {
			msg := make([]byte, 8)
			msg[0] = byte(i)
			priority := uint8(i % 3)
			if err := mq.Push(th.TCB(), msg, priority); err != nil {
				fmt.Println("push failed:", err)
				return
			}
			if err := th.SleepFor(2 * time.Millisecond); err != nil {
				return
			}
		}
		_ = sigReceiver.Generate(3)
	}, arch.InitializeStack())

	consumer := kernel.NewThread(sched, 9, kernel.FIFO, func(th *kernel.Thread) {
		buf := make([]byte, 8)
		for i := 0; i < 5; i++ {
			priority, err := mq.Pop(th.TCB(), buf)
			if err != nil {
				fmt.Println("pop failed:", err)
				return
			}
			fmt.Printf("consumed message %d at priority %d\n", buf[0], priority)
		}
	}, arch.InitializeStack())

	idle.Start()
	watcher.Start()
	consumer.Start()
	producer.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runTickSource(gctx, sched) })

	go arch.StartScheduling(sched)

	producer.Join()
	consumer.Join()
	watcher.Join()

	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		fmt.Println("tick source exited:", err)
	}
}
