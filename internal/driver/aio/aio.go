// Package aio implements the legacy Linux AIO driver backend: one kernel
// io_setup context per Driver, a depth-sized slot table, and a submit/poll
// thread pair that resumes short transfers transparently.
package aio

import (
	"fmt"
	"sync/atomic"

	"github.com/NaturalIO/io-engine/internal/constants"
	"github.com/NaturalIO/io-engine/internal/event"
	"github.com/NaturalIO/io-engine/internal/logging"
	"golang.org/x/sys/unix"
)

// Config configures a Driver.
type Config struct {
	Depth int
}

// DefaultConfig returns a Config with the package's baseline depth.
func DefaultConfig() *Config {
	return &Config{Depth: constants.DefaultQueueDepth}
}

// slot holds one kernel control block and the event currently assigned to
// it. Touched by the submit thread only while its index sits on the
// free-slot channel, and by the poll thread only after the kernel has
// signalled a completion for it -- no mutex needed.
type slot struct {
	iocb iocb64
	ev   *event.Event

	// original buffer/offset/requested length, captured on first fill so
	// short-transfer resume can rebias from the untouched base instead of
	// accumulating drift across rounds.
	origBuf    []byte
	origOffset int64
	requested  int32
}

// Driver is the AIO backend: one kernel context, depth slots, and a
// submit/poll thread pair.
type Driver struct {
	depth int
	ctx   aioContextT

	slots     []slot
	freeSlots chan int // SPSC: submit thread consumes, poll thread produces

	ingress <-chan *event.Event
	nullFd  int

	freeSlotsCount atomic.Int64
	exitCh         chan struct{}
}

// New opens a kernel AIO context sized to cfg.Depth and spawns the submit
// and poll threads. ingress is the engine's ingress channel; sink receives
// every finished event (master or plain).
func New(cfg *Config, ingress <-chan *event.Event, sink chan<- *event.Event) (*Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Depth <= 0 {
		return nil, fmt.Errorf("aio: depth must be > 0")
	}

	d := &Driver{
		depth:   cfg.Depth,
		slots:   make([]slot, cfg.Depth),
		ingress: ingress,
		exitCh:  make(chan struct{}),
	}

	if err := ioSetup(cfg.Depth, &d.ctx); err != nil {
		return nil, fmt.Errorf("aio: io_setup: %w", err)
	}

	nullFd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	if err != nil {
		_ = ioDestroy(d.ctx)
		return nil, fmt.Errorf("aio: open /dev/null: %w", err)
	}
	d.nullFd = nullFd

	d.freeSlots = make(chan int, cfg.Depth)
	for i := 0; i < cfg.Depth; i++ {
		d.freeSlots <- i
	}
	d.freeSlotsCount.Store(int64(cfg.Depth))

	go d.submitLoop(sink)
	go d.pollLoop(sink)

	return d, nil
}

// FreeSlotsCount returns the number of currently unoccupied slots.
func (d *Driver) FreeSlotsCount() int {
	return int(d.freeSlotsCount.Load())
}

// Depth returns the configured concurrency budget.
func (d *Driver) Depth() int {
	return d.depth
}

// Wait blocks until the driver has torn down its kernel context following
// shutdown.
func (d *Driver) Wait() {
	<-d.exitCh
}

// fillSlot populates a slot's control block for ev. On first use it
// captures the event's original buffer/offset; on a resumed short
// transfer it biases pointer, length, and file offset by the progress
// already recorded via SetCopied.
func (d *Driver) fillSlot(idx int, ev *event.Event) {
	s := &d.slots[idx]
	if s.ev != ev {
		s.ev = ev
		s.origBuf = ev.Buffer()
		s.origOffset = ev.Offset
		s.requested = int32(len(s.origBuf))
		ev.MarkSubmitted()
	}

	written := int32(0)
	if r := ev.PeekResult(); r > 0 {
		written = r
	}

	fillIocb(&s.iocb, idx, ev.Fd, ev.Action, s.origBuf[written:], s.origOffset+int64(written))
}

func (d *Driver) fillSentinelSlot(idx int) {
	s := &d.slots[idx]
	s.ev = nil
	s.origBuf = nil
	s.requested = 0
	fillIocb(&s.iocb, idx, d.nullFd, event.Read, nil, 0)
}

func (d *Driver) submitLoop(sink chan<- *event.Event) {
	for {
		first, ok := <-d.ingress
		if !ok {
			d.submitSentinelAndExit()
			return
		}

		batch := make([]*event.Event, 0, d.depth)
		batch = append(batch, first)

	drain:
		for len(batch) < d.depth {
			select {
			case ev, ok := <-d.ingress:
				if !ok {
					break drain
				}
				batch = append(batch, ev)
			default:
				break drain
			}
		}

		d.submitBatch(batch, sink)
	}
}

func (d *Driver) submitBatch(batch []*event.Event, sink chan<- *event.Event) {
	logging.Default().Debugf("aio: submitting batch of %d", len(batch))
	indices := make([]int, len(batch))
	for i, ev := range batch {
		idx := <-d.freeSlots
		d.freeSlotsCount.Add(-1)
		d.fillSlot(idx, ev)
		indices[i] = idx
	}
	d.submitIndices(indices, sink)
}

// submitIndices issues io_submit for the given slot indices, retrying the
// tail on EINTR and on partial acceptance. A tail-wide failure other than
// EINTR completes the unsubmitted events with the returned errno rather
// than leaking them.
func (d *Driver) submitIndices(indices []int, sink chan<- *event.Event) {
	for len(indices) > 0 {
		iocbs := make([]*iocb64, len(indices))
		for i, idx := range indices {
			iocbs[i] = &d.slots[idx].iocb
		}

		n, err := ioSubmit(d.ctx, iocbs)
		if err == unix.EINTR {
			continue
		}
		if n > 0 {
			indices = indices[n:]
			continue
		}
		if err != nil {
			logging.Default().Errorf("aio: io_submit failed, abandoning %d events: %v", len(indices), err)
			for _, idx := range indices {
				d.completeWithErrno(idx, int32(errnoOf(err)), sink)
			}
		}
		return
	}
}

func (d *Driver) completeWithErrno(idx int, errno int32, sink chan<- *event.Event) {
	s := &d.slots[idx]
	ev := s.ev
	s.ev = nil
	d.freeSlots <- idx
	d.freeSlotsCount.Add(1)
	if ev == nil {
		return
	}
	ev.SetError(errno)
	sink <- ev
}

func (d *Driver) submitSentinelAndExit() {
	idx := <-d.freeSlots
	d.freeSlotsCount.Add(-1)
	d.fillSentinelSlot(idx)
	d.submitIndices([]int{idx}, nil)
}

func (d *Driver) pollLoop(sink chan<- *event.Event) {
	shutdownPending := false

	for {
		events := make([]ioEventT, d.depth)
		n, err := ioGetEvents(d.ctx, 1, events)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			logging.Default().Errorf("aio: io_getevents failed: %v", err)
			continue
		}

		logging.Default().Debugf("aio: polled batch of %d", n)
		for i := 0; i < n; i++ {
			idx := int(events[i].data)
			s := &d.slots[idx]
			res := events[i].res

			if s.ev == nil {
				shutdownPending = true
				d.freeSlots <- idx
				d.freeSlotsCount.Add(1)
				continue
			}

			ev := s.ev
			requested := s.requested

			switch {
			case res < 0:
				s.ev = nil
				d.freeSlots <- idx
				d.freeSlotsCount.Add(1)
				ev.SetError(int32(-res))
				sink <- ev
			case int32(res) > 0 && int32(res) < requested:
				// Short transfer: resume on the same slot until the full
				// request completes. The slot is not returned to the
				// free pool.
				ev.SetCopied(int32(res))
				d.fillSlot(idx, ev)
				d.submitIndices([]int{idx}, sink)
			default:
				ev.SetCopied(int32(res))
				s.ev = nil
				d.freeSlots <- idx
				d.freeSlotsCount.Add(1)
				sink <- ev
			}
		}

		if shutdownPending && d.freeSlotsCount.Load() == int64(d.depth) {
			_ = ioDestroy(d.ctx)
			_ = unix.Close(d.nullFd)
			close(sink)
			close(d.exitCh)
			return
		}
	}
}

func errnoOf(err error) int {
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return int(unix.EIO)
}
