// Package merge implements the per-(fd, action) staging buffer that
// coalesces contiguous events into a single master event with child
// sub-tasks before they reach the engine's ingress channel.
package merge

import (
	"fmt"

	"github.com/NaturalIO/io-engine/internal/alignedbuf"
	"github.com/NaturalIO/io-engine/internal/constants"
	"github.com/NaturalIO/io-engine/internal/event"
	"github.com/NaturalIO/io-engine/internal/logging"
)

// Sender is the ingress channel's send half, as seen by the merge
// submitter. It is the only external collaborator this package touches.
type Sender interface {
	Send(*event.Event) error
}

// Submitter stages events for one (fd, action) pair and flushes them,
// either forwarded unchanged or coalesced into a master+children event.
// Not safe for concurrent use -- each instance is owned by one producer.
type Submitter struct {
	fd             int
	action         event.Action
	sender         Sender
	mergeSizeLimit int64

	staged      []*event.Event
	mergeStart  int64
	stagedSize  int64
}

// New creates a submitter for the given fd and action. A non-positive
// mergeSizeLimit selects the package's default merge window.
func New(fd int, sender Sender, mergeSizeLimit int64, action event.Action) *Submitter {
	if mergeSizeLimit <= 0 {
		mergeSizeLimit = constants.DefaultMergeSizeLimit
	}
	return &Submitter{fd: fd, action: action, sender: sender, mergeSizeLimit: mergeSizeLimit}
}

// MayAdd reports whether ev can be admitted to the current stage without
// flushing first: the stage is empty, or ev is contiguous with the staged
// run and the combined size stays within the merge window.
func (s *Submitter) MayAdd(ev *event.Event) bool {
	if len(s.staged) == 0 {
		return true
	}
	if s.stagedSize+ev.Size() > s.mergeSizeLimit {
		return false
	}
	return s.mergeStart+s.stagedSize == ev.Offset
}

// AddEvent stages ev, flushing first if it can't be admitted and again
// afterward if the stage has reached the merge window.
func (s *Submitter) AddEvent(ev *event.Event) error {
	s.debugCheck(ev)

	if ev.Size() >= s.mergeSizeLimit || !s.MayAdd(ev) {
		if err := s.Flush(); err != nil {
			ev.SetError(5) // EIO: caller's send target is gone
			ev.Callback()
			return err
		}
	}

	s.push(ev)

	if s.stagedSize >= s.mergeSizeLimit {
		return s.Flush()
	}
	return nil
}

func (s *Submitter) push(ev *event.Event) {
	if len(s.staged) == 0 {
		s.mergeStart = ev.Offset
	}
	s.staged = append(s.staged, ev)
	s.stagedSize += ev.Size()
}

// Flush forwards whatever is currently staged: nothing (no-op), the single
// staged event unchanged, or a newly assembled master+children event.
func (s *Submitter) Flush() error {
	switch len(s.staged) {
	case 0:
		return nil
	case 1:
		ev := s.staged[0]
		ev.Fd = s.fd
		s.reset()
		return s.sender.Send(ev)
	default:
		return s.flushMany()
	}
}

func (s *Submitter) flushMany() error {
	children := s.staged
	start := s.mergeStart
	size := s.stagedSize
	s.reset()

	logging.Default().Debugf("merge: flushing fd=%d action=%s children=%d size=%d", s.fd, s.action, len(children), size)

	buf, err := alignedbuf.Alloc(int(size))
	if err != nil {
		// Out-of-memory: dispatch each child with its own error rather
		// than produce a master. Keeping children offset-contiguous is
		// what made merging possible in the first place -- submitting
		// them unmerged on allocation failure would require
		// re-validating that contiguity at the driver, which the driver
		// does not do.
		logging.Default().Errorf("merge: master allocation of %d bytes failed, abandoning %d children: %v", size, len(children), err)
		for _, c := range children {
			c.SetError(12) // ENOMEM
			c.Callback()
		}
		return nil
	}

	if s.action == event.Write {
		dst := buf.Bytes()
		var off int64
		for _, c := range children {
			alignedbuf.CopyPadded(dst, int(off), c.Buffer())
			off += c.Size()
		}
	}
	// Read direction: leave the master buffer uninitialised; the kernel
	// fills it, and completion fan-out copies it back into each child.

	master := event.New(s.fd, buf, s.action, start)
	master.SubTasks = children
	return s.sender.Send(master)
}

func (s *Submitter) reset() {
	s.staged = nil
	s.mergeStart = 0
	s.stagedSize = 0
}

func (s *Submitter) debugCheck(ev *event.Event) {
	if ev.Fd != s.fd || ev.Action != s.action {
		panic(fmt.Sprintf("merge: event (fd=%d action=%s) does not match submitter (fd=%d action=%s)",
			ev.Fd, ev.Action, s.fd, s.action))
	}
}
