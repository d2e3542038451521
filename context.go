package ioengine

import (
	"github.com/NaturalIO/io-engine/internal/driver/aio"
	"github.com/NaturalIO/io-engine/internal/driver/ring"
	"github.com/NaturalIO/io-engine/internal/event"
)

// DriverKind selects which kernel submission mechanism a Context uses.
type DriverKind int

const (
	// DriverAIO uses the legacy Linux AIO interface.
	DriverAIO DriverKind = iota
	// DriverRing uses io_uring.
	DriverRing
)

// ingressDriver is satisfied by either backend's Driver type.
type ingressDriver interface {
	Wait()
}

// Ingress is the producer-facing handle for a Context: a bounded, blocking
// channel of events. Closing it (via Close) is the sole shutdown trigger.
type Ingress struct {
	ch chan *event.Event
}

// Send enqueues ev, blocking if the channel is full. Implements
// merge.Sender so a MergeSubmitter can forward directly to a Context.
func (in *Ingress) Send(ev *event.Event) error {
	in.ch <- ev
	return nil
}

// Close signals shutdown: the submit thread observes channel closure,
// emits the sentinel completion, and the driver tears itself down once
// in-flight work drains.
func (in *Ingress) Close() {
	close(in.ch)
}

// Context is one engine instance: a fixed concurrency budget, one kernel
// submission context, and a worker sink for completions.
type Context struct {
	depth       int
	ingres      *Ingress
	driver      ingressDriver
	sinkDrained chan struct{}
}

// NewContext constructs a Context with the given depth (> 0), a worker
// sink, a driver selection, and an Observer for per-completion metrics (nil
// selects NoOpObserver). The returned Ingress is the producer-facing
// handle; closing it initiates shutdown.
func NewContext(depth int, wsink WorkerSink, kind DriverKind, obs Observer) (*Context, *Ingress, error) {
	if depth <= 0 {
		return nil, nil, NewError("NewContext", ErrCodeInvalidParameters, "depth must be > 0")
	}
	if kind != DriverAIO && kind != DriverRing {
		return nil, nil, NewError("NewContext", ErrCodeInvalidParameters, "unknown driver kind")
	}
	if obs == nil {
		obs = NoOpObserver{}
	}

	ch := make(chan *event.Event, depth)
	in := &Ingress{ch: ch}

	sinkCh := make(chan *event.Event, depth)

	var d ingressDriver
	var err error
	switch kind {
	case DriverAIO:
		d, err = aio.New(&aio.Config{Depth: depth}, ch, sinkCh)
	case DriverRing:
		d, err = ring.New(&ring.Config{Entries: uint32(depth)}, ch, sinkCh)
	}
	if err != nil {
		close(sinkCh)
		return nil, nil, WrapError("NewContext", err)
	}

	sinkDrained := make(chan struct{})
	go func() {
		for ev := range sinkCh {
			observeCompletion(ev, obs)
			obs.ObserveQueueDepth(uint32(inFlight(d, depth)))
			wsink.Done(ev)
		}
		wsink.Close()
		close(sinkDrained)
	}()

	return &Context{depth: depth, ingres: in, driver: d, sinkDrained: sinkDrained}, in, nil
}

// observeCompletion reports a finished event's outcome to obs, skipping the
// internal shutdown sentinel. It fires once per driver completion -- for a
// merged master this is the coalesced transfer as submitted to the kernel,
// before CallbackMerged fans the result out to its children.
func observeCompletion(ev *event.Event, obs Observer) {
	if ev.IsSentinel {
		return
	}
	latency := ev.LatencyNs()
	result := ev.PeekResult()
	success := result >= 0
	var bytes uint64
	if success {
		bytes = uint64(result)
	}
	switch ev.Action {
	case event.Read:
		obs.ObserveRead(bytes, latency, success)
	case event.Write:
		obs.ObserveWrite(bytes, latency, success)
	case event.Allocate:
		obs.ObserveAllocate(latency, success)
	case event.Sync:
		obs.ObserveSync(latency, success)
	}
}

// Depth returns the configured concurrency budget.
func (c *Context) Depth() int {
	return c.depth
}

// InFlight returns the number of events currently occupying a driver slot:
// depth minus free slots for the AIO driver. The Ring driver exposes no
// slot count, so for it InFlight always reports 0.
func (c *Context) InFlight() int {
	return inFlight(c.driver, c.depth)
}

// inFlight reports depth minus free slots for drivers that track a slot
// table (currently AIO; io_uring has no equivalent fixed table since the
// kernel submission queue already provides its own backpressure).
func inFlight(d ingressDriver, depth int) int {
	if dd, ok := d.(interface{ FreeSlotsCount() int }); ok {
		n := depth - dd.FreeSlotsCount()
		if n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// Wait blocks until the Context's driver has torn down its kernel
// resources and every completion has been handed to the worker sink.
func (c *Context) Wait() {
	c.driver.Wait()
	<-c.sinkDrained
}
