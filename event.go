package ioengine

import (
	"github.com/NaturalIO/io-engine/internal/alignedbuf"
	"github.com/NaturalIO/io-engine/internal/event"
)

// Action identifies the kind of operation an Event carries.
type Action = event.Action

const (
	Read     = event.Read
	Write    = event.Write
	Allocate = event.Allocate
	Sync     = event.Sync
)

// Event is the engine's request record: fd, action, offset, payload,
// accumulated result, callback, and (for merged masters) child sub-tasks.
type Event = event.Event

// Callback is invoked exactly once per event, with the finished event.
type Callback = event.Callback

// Buffer is an owned, aligned byte allocation suitable for direct I/O.
type Buffer = alignedbuf.Buffer

// AllocBuffer returns an aligned buffer of exactly size bytes, suitable
// for a Read or Write event's payload.
func AllocBuffer(size int) (*Buffer, error) {
	return alignedbuf.Alloc(size)
}

// NewEvent constructs a buffered Read/Write event.
func NewEvent(fd int, buf *Buffer, action Action, offset int64) *Event {
	return event.New(fd, buf, action, offset)
}

// NewSizedEvent constructs a buffer-less Allocate or Sync event.
func NewSizedEvent(fd int, action Action, offset int64, length int64) *Event {
	return event.NewSized(fd, action, offset, length)
}
