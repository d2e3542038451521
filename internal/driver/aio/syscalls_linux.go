package aio

import (
	"unsafe"

	"github.com/NaturalIO/io-engine/internal/event"
	"golang.org/x/sys/unix"
)

// aioContextT mirrors the kernel's aio_context_t: an opaque handle (in
// practice a pointer-sized value) returned by io_setup.
type aioContextT uintptr

// iocb64 mirrors struct iocb from <linux/aio_abi.h>. Field order and sizes
// are ABI-mandated; this is the x86-64/arm64 little-endian layout the
// kernel expects from Go's pointer-width architecture assumption.
type iocb64 struct {
	aioData      uint64
	aioKey       uint32
	aioRwFlags   uint32
	aioLioOpcode uint16
	aioReqPrio   int16

	aioFildes uint32
	aioBuf    uint64
	aioNbytes uint64
	aioOffset int64

	aioReserved2 uint64
	aioFlags     uint32
	aioResfd     uint32
}

const (
	iocbCmdPread   = 0
	iocbCmdPwrite  = 1
	iocbCmdFsync   = 2
	iocbCmdPwritev = 8 // opcode used for Allocate. The legacy AIO ABI has
	// no fallocate opcode: an Allocate event is submitted as
	// IOCB_CMD_PWRITEV with no vector (fillIocb leaves aio_buf and
	// aio_nbytes at 0 for a buffer-less event), so no space is reserved.
)

// ioEventT mirrors struct io_event.
type ioEventT struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

func fillIocb(cb *iocb64, slotIdx int, fd int, action event.Action, buf []byte, offset int64) {
	*cb = iocb64{}
	cb.aioData = uint64(slotIdx)
	cb.aioReqPrio = 1
	cb.aioFildes = uint32(fd)
	cb.aioOffset = offset

	switch action {
	case event.Read:
		cb.aioLioOpcode = iocbCmdPread
	case event.Write:
		cb.aioLioOpcode = iocbCmdPwrite
	case event.Sync:
		cb.aioLioOpcode = iocbCmdFsync
	case event.Allocate:
		cb.aioLioOpcode = iocbCmdPwritev
	}

	if len(buf) > 0 {
		cb.aioBuf = uint64(uintptr(unsafe.Pointer(&buf[0])))
		cb.aioNbytes = uint64(len(buf))
	}
}

func ioSetup(depth int, ctx *aioContextT) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(depth), uintptr(unsafe.Pointer(ctx)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioDestroy(ctx aioContextT) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, uintptr(ctx), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ioSubmit submits iocbs and returns the number the kernel accepted. A
// negative kernel return surfaces as (0, errno); a positive short count
// surfaces as (n, nil) so the caller can retry the tail.
func ioSubmit(ctx aioContextT, iocbs []*iocb64) (int, error) {
	if len(iocbs) == 0 {
		return 0, nil
	}
	r, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(ctx), uintptr(len(iocbs)), uintptr(unsafe.Pointer(&iocbs[0])))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

// ioGetEvents blocks until at least minEvents completions are available
// (no timeout) and fills events, returning the count retrieved.
func ioGetEvents(ctx aioContextT, minEvents int, events []ioEventT) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, uintptr(ctx),
		uintptr(minEvents), uintptr(len(events)), uintptr(unsafe.Pointer(&events[0])), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}
