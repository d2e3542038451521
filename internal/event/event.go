// Package event defines the request record that flows from producer to
// driver to worker sink: a single heap-stable Event carrying buffer, offset,
// fd, action, accumulated result, callback, and (for merged masters) an
// ordered list of children.
package event

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/NaturalIO/io-engine/internal/alignedbuf"
)

// Action identifies the kind of operation an Event carries.
type Action int

const (
	Read Action = iota
	Write
	Allocate
	Sync
)

func (a Action) String() string {
	switch a {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case Allocate:
		return "Allocate"
	case Sync:
		return "Sync"
	default:
		return "Unknown"
	}
}

// NotDone is the sentinel "not-done" result value. Any other value, once
// stored, marks the event as complete.
const NotDone int32 = math.MinInt32

// Callback is invoked exactly once per event, with the finished event.
type Callback func(*Event)

// Event is the central request record. The zero value is not valid; use
// New, NewSized, or NewSentinel.
type Event struct {
	Fd     int
	Action Action
	Offset int64

	buf *alignedbuf.Buffer // owned for Read/Write; nil for Allocate/Sync
	len int64              // length-only payload for Allocate

	result atomic.Int32

	callback Callback

	SubTasks []*Event

	IsSentinel bool

	submittedAt int64 // unix nanos, set by the driver on first submit
}

// New constructs a buffered Read/Write event. Panics if buf is empty, per
// the invariant that a non-sentinel Read/Write event always carries a
// positive-length buffer.
func New(fd int, buf *alignedbuf.Buffer, action Action, offset int64) *Event {
	if action != Read && action != Write {
		panic(fmt.Sprintf("event: New called with non-I/O action %s", action))
	}
	if buf == nil || buf.Len() == 0 {
		panic("event: New requires a non-empty buffer")
	}
	e := &Event{Fd: fd, Action: action, Offset: offset, buf: buf}
	e.result.Store(NotDone)
	return e
}

// NewSized constructs a buffer-less Allocate or Sync event.
func NewSized(fd int, action Action, offset int64, length int64) *Event {
	if action != Allocate && action != Sync {
		panic(fmt.Sprintf("event: NewSized called with buffered action %s", action))
	}
	e := &Event{Fd: fd, Action: action, Offset: offset, len: length}
	e.result.Store(NotDone)
	return e
}

// NewSentinel constructs the internal shutdown sentinel. Only the engine
// should call this.
func NewSentinel(fd int) *Event {
	e := &Event{Fd: fd, Action: Read, IsSentinel: true}
	e.result.Store(NotDone)
	return e
}

// SetCallback attaches the consumer invoked on completion. Exactly one
// consumer per event; callers must not call this more than once.
func (e *Event) SetCallback(cb Callback) {
	e.callback = cb
}

// MarkSubmitted records the time the driver first handed ev to the kernel.
// A resumed short transfer does not call this again, so the recorded
// latency spans the full request, not just its final leg.
func (e *Event) MarkSubmitted() {
	if e.submittedAt == 0 {
		e.submittedAt = time.Now().UnixNano()
	}
}

// LatencyNs returns elapsed time since MarkSubmitted, or 0 if it was never
// called (e.g. the internal shutdown sentinel).
func (e *Event) LatencyNs() uint64 {
	if e.submittedAt == 0 {
		return 0
	}
	return uint64(time.Now().UnixNano() - e.submittedAt)
}

// Size returns the buffer length for Read/Write, the reserved length for
// Allocate, or 0 for Sync.
func (e *Event) Size() int64 {
	switch e.Action {
	case Read, Write:
		return int64(e.buf.Len())
	case Allocate:
		return e.len
	default:
		return 0
	}
}

// Buffer returns the backing byte slice for a Read/Write event, or nil.
func (e *Event) Buffer() []byte {
	if e.buf == nil {
		return nil
	}
	return e.buf.Bytes()
}

// SetCopied records a successful transfer of n bytes: if the result is
// still sentinel it is set to n; otherwise n is added to the accumulated
// total. Used by the AIO driver's short-transfer resume path.
func (e *Event) SetCopied(n int32) {
	for {
		cur := e.result.Load()
		if cur == NotDone {
			if e.result.CompareAndSwap(cur, n) {
				return
			}
			continue
		}
		if e.result.CompareAndSwap(cur, cur+n) {
			return
		}
	}
}

// SetError normalises and stores a completion error. A zero errno is
// substituted with EINVAL (ambiguous zero-byte completions must not be
// confused with the sentinel); a positive errno is negated.
func (e *Event) SetError(errno int32) {
	if errno == 0 {
		errno = 22 // EINVAL
	}
	if errno > 0 {
		errno = -errno
	}
	e.result.Store(errno)
}

// IsDone reports whether the event has completed.
func (e *Event) IsDone() bool {
	return e.result.Load() != NotDone
}

// PeekResult returns the current result without requiring completion --
// NotDone while the event is still in flight, or the accumulated partial
// transfer recorded by a short-transfer resume. Drivers use this to bias a
// slot's pointer/length/offset; ordinary consumers should use TakeResult.
func (e *Event) PeekResult() int32 {
	return e.result.Load()
}

// TakeResult reads the completion result once. Panics if called before
// completion.
func (e *Event) TakeResult() (int32, error) {
	r := e.result.Load()
	if r == NotDone {
		panic("event: TakeResult called before completion")
	}
	if r < 0 {
		return 0, fmt.Errorf("event: errno %d", -r)
	}
	return r, nil
}

// TakeBuffer returns the event's buffer for a completed Read, or the error
// if the event failed.
func (e *Event) TakeBuffer() (*alignedbuf.Buffer, error) {
	if _, err := e.TakeResult(); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Callback consumes the event, invoking its attached callback exactly once.
func (e *Event) Callback() {
	cb := e.callback
	e.callback = nil
	if cb != nil {
		cb(e)
	}
}

// CallbackMerged dispatches a (possibly merged) event's completion,
// fanning out across SubTasks when present. The scan over children is
// strictly sequential and every child is dispatched.
func (e *Event) CallbackMerged() {
	if len(e.SubTasks) == 0 {
		e.Callback()
		return
	}

	result := e.result.Load()
	if result >= 0 {
		switch e.Action {
		case Write:
			e.fanOutWrite(result)
		case Read:
			e.fanOutRead(result)
		default:
			for _, child := range e.SubTasks {
				child.result.Store(result)
				child.Callback()
			}
		}
	} else {
		for _, child := range e.SubTasks {
			child.result.Store(result)
			child.Callback()
		}
	}
	e.SubTasks = nil
}

func (e *Event) fanOutWrite(total int32) {
	remaining := total
	for _, child := range e.SubTasks {
		n := child.Size32()
		if n > remaining {
			n = remaining
		}
		child.result.Store(n)
		remaining -= n
		child.Callback()
	}
}

func (e *Event) fanOutRead(total int32) {
	src := e.Buffer()
	cursor := int32(0)
	remaining := total
	for _, child := range e.SubTasks {
		n := child.Size32()
		if n > remaining {
			n = remaining
		}
		if n > 0 {
			dst := child.Buffer()
			copy(dst, src[cursor:cursor+n])
		}
		cursor += child.Size32()
		remaining -= n
		child.result.Store(n)
		child.Callback()
	}
}

// Size32 returns Size() truncated to int32, matching the result field's
// width; merge windows are bounded well below 2^31 bytes in practice.
func (e *Event) Size32() int32 {
	return int32(e.Size())
}

// Release returns the event's owned buffer, if any, to its pool/mapping.
// Callers of a merged master call this once fan-out has finished; plain
// events release their own buffer after their callback returns.
func (e *Event) Release() {
	if e.buf != nil {
		e.buf.Release()
		e.buf = nil
	}
}
