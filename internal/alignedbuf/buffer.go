// Package alignedbuf allocates and manipulates the aligned byte buffers the
// merge submitter needs for its master events. Buffers submitted for
// direct-I/O Read/Write must be aligned and sized to MinAlign. Buffers from
// this package always have an aligned base address; their length is
// whatever the caller asked for, so sizing is left to the caller.
package alignedbuf

import (
	"fmt"

	"github.com/NaturalIO/io-engine/internal/bufpool"
	"golang.org/x/sys/unix"
)

// MinAlign is the minimum alignment (and size granularity) direct I/O
// requires on Linux.
const MinAlign = 512

// MaxSize is an upper bound on a single allocation, guarding against
// pathological merge windows swallowing all of memory.
const MaxSize = 1 << 31

func init() {
	bufpool.SetAllocator(mmapAlloc)
}

// mmapAlloc returns anonymous, page-aligned memory (always a multiple of
// MinAlign on every architecture Go targets, since the page size is never
// smaller than 512 bytes).
func mmapAlloc(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("alignedbuf: mmap %d bytes: %w", size, err)
	}
	return b, nil
}

func munmap(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munmap(b[:cap(b)])
}

// Buffer is an owned, aligned byte allocation. The zero value is not valid;
// use Alloc.
type Buffer struct {
	data   []byte
	pooled bool
	mmaped bool
}

// Alloc returns an aligned buffer of exactly size bytes. Size need not be a
// multiple of MinAlign -- only the allocation's base address is guaranteed
// aligned, matching how the merge submitter uses it (a contiguous run of
// already-aligned child transfers).
func Alloc(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alignedbuf: invalid size %d", size)
	}
	if size >= MaxSize {
		return nil, fmt.Errorf("alignedbuf: size %d exceeds maximum %d", size, MaxSize)
	}
	if pooled, ok := bufpool.Get(size); ok {
		return &Buffer{data: pooled, pooled: true}, nil
	}
	raw, err := mmapAlloc(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: raw, mmaped: true}, nil
}

// Bytes returns the buffer's backing slice.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the buffer's length in bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Release returns the buffer to its pool (bucketed allocations) or unmaps it
// (oversized, one-off allocations). Safe to call once; not safe to use the
// buffer afterward.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	switch {
	case b.pooled:
		bufpool.Put(b.data)
	case b.mmaped:
		munmap(b.data)
	}
	b.data = nil
}

// CopyPadded copies src into dst starting at offset, truncating src if it
// would overrun dst and leaving any remaining tail of dst untouched. It
// returns the number of bytes actually copied -- the merge submitter's
// write-side coalescing relies on this truncation behavior rather than
// panicking on a short destination.
func CopyPadded(dst []byte, offset int, src []byte) int {
	if offset < 0 || offset >= len(dst) {
		return 0
	}
	return copy(dst[offset:], src)
}

// Zero fills dst with zero bytes. The merge submitter does not call it:
// read-direction master buffers are handed to the kernel as allocated.
func Zero(dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
}
