package ioengine

import "github.com/NaturalIO/io-engine/internal/sink"

// WorkerSink receives finished events from a Context's driver and
// dispatches their callbacks, fanning out across merged sub-tasks where
// present.
type WorkerSink = sink.Sink

// NewInlineSink returns a WorkerSink that invokes callbacks directly on
// the calling goroutine -- the Context's internal forwarder pays the cost.
func NewInlineSink() WorkerSink {
	return sink.NewInline()
}

// NewPoolSink starts a WorkerSink backed by workers goroutines draining a
// bounded queue of the given depth.
func NewPoolSink(workers int, depth int) WorkerSink {
	return sink.NewPool(workers, depth)
}

// NewChannelSink wraps a caller-supplied channel as a WorkerSink; the
// caller is responsible for invoking CallbackMerged on what it receives.
func NewChannelSink(out chan<- *Event) WorkerSink {
	return sink.NewChannel(out)
}
