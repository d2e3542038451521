// Package ioengine implements an asynchronous block-I/O engine for Linux
// that unifies the legacy AIO interface and io_uring behind a single
// ingress channel and callback-driven completion path.
//
// Producers construct Events and hand them to a Context's ingress channel,
// optionally staging them through a per-(fd, action) MergeSubmitter so
// contiguous small requests coalesce into fewer, larger kernel
// submissions. A Context drains the channel onto one of two driver
// backends (AIO or Ring) and dispatches completions to a WorkerSink, which
// invokes each event's callback exactly once.
package ioengine
