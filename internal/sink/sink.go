// Package sink provides the worker-sink abstraction: where finished events
// go to have their callbacks invoked. Three realisations are provided:
// Inline (caller's goroutine), Pool (bounded queue + N goroutines), and
// Channel (a caller-supplied channel).
package sink

import (
	"sync"

	"github.com/NaturalIO/io-engine/internal/constants"
	"github.com/NaturalIO/io-engine/internal/event"
)

// Sink receives finished events from a driver and dispatches their
// callbacks, possibly fanning out across merged sub-tasks.
type Sink interface {
	// Done is called by the driver's completion thread for every
	// finished event (master or plain). Must not block indefinitely --
	// it may apply brief backpressure via a bounded queue.
	Done(ev *event.Event)

	// Close signals that no further events will arrive and waits for any
	// already-queued work to drain.
	Close()
}

// Inline dispatches callbacks directly on the caller's goroutine -- the
// driver's completion thread pays the callback cost itself.
type Inline struct{}

// NewInline returns an Inline sink.
func NewInline() *Inline {
	return &Inline{}
}

func (Inline) Done(ev *event.Event) {
	ev.CallbackMerged()
}

func (Inline) Close() {}

// Pool drains a bounded shared queue with N worker goroutines, each
// invoking CallbackMerged on the events it receives.
type Pool struct {
	queue chan *event.Event
	wg    sync.WaitGroup
}

// NewPool starts a Pool sink with workers goroutines draining a queue of
// the given depth. A non-positive workers selects the package's default
// worker-pool size; a non-positive depth selects its default queue depth.
func NewPool(workers int, depth int) *Pool {
	if workers <= 0 {
		workers = constants.DefaultWorkerPoolSize
	}
	if depth <= 0 {
		depth = constants.DefaultWorkerQueueDepth
	}
	p := &Pool{queue: make(chan *event.Event, depth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for ev := range p.queue {
		ev.CallbackMerged()
	}
}

func (p *Pool) Done(ev *event.Event) {
	p.queue <- ev
}

// Close closes the queue and blocks until every worker has drained it.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// Channel forwards finished events to a caller-supplied channel rather
// than invoking callbacks itself; the caller is responsible for calling
// CallbackMerged (or equivalent) on what it receives.
type Channel struct {
	out chan<- *event.Event
}

// NewChannel wraps an existing channel as a Sink.
func NewChannel(out chan<- *event.Event) *Channel {
	return &Channel{out: out}
}

func (c *Channel) Done(ev *event.Event) {
	c.out <- ev
}

func (c *Channel) Close() {
	close(c.out)
}

var (
	_ Sink = (*Inline)(nil)
	_ Sink = (*Pool)(nil)
	_ Sink = (*Channel)(nil)
)
