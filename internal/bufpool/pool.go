// Package bufpool provides pooled, page-aligned byte slices so the merge
// submitter does not pay an mmap/munmap round trip for every master buffer.
//
// Uses size-bucketed pools (4KB up to 1MB, doubling) to balance memory
// efficiency with allocation reduction. Buckets beyond the largest are not
// pooled; callers fall back to a one-off allocation for oversized requests.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.
package bufpool

import "sync"

// bucket sizes, smallest to largest. All are multiples of the page size,
// so once internal/alignedbuf has installed its mmap allocator, slices the
// pools create are at least 4096-byte aligned -- well within the 512-byte
// direct-I/O requirement.
const (
	size4k   = 4 * 1024
	size8k   = 8 * 1024
	size16k  = 16 * 1024
	size32k  = 32 * 1024
	size64k  = 64 * 1024
	size128k = 128 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
	size1m   = 1024 * 1024
)

var bucketSizes = [...]int{size4k, size8k, size16k, size32k, size64k, size128k, size256k, size512k, size1m}

// allocAligned is replaced through SetAllocator by the alignedbuf package
// to supply the actual aligned-allocation strategy (mmap on Linux); until
// then it falls back to make([]byte). Kept as a package
// variable rather than an import so bufpool has no direct syscall
// dependency of its own.
var allocAligned func(size int) ([]byte, error)

func init() {
	allocAligned = func(size int) ([]byte, error) {
		b := make([]byte, size)
		return b, nil
	}
}

// SetAllocator overrides the underlying aligned-allocation strategy used to
// populate empty buckets. Call once at program start; internal/alignedbuf
// calls this with an mmap-backed allocator on Linux.
func SetAllocator(fn func(size int) ([]byte, error)) {
	allocAligned = fn
}

type bucket struct {
	size int
	pool sync.Pool
}

var buckets = func() [len(bucketSizes)]*bucket {
	var bs [len(bucketSizes)]*bucket
	for i, sz := range bucketSizes {
		sz := sz
		bs[i] = &bucket{size: sz}
		bs[i].pool.New = func() any {
			b, err := allocAligned(sz)
			if err != nil {
				return nil
			}
			return &b
		}
	}
	return bs
}()

func bucketFor(size int) *bucket {
	for _, b := range buckets {
		if size <= b.size {
			return b
		}
	}
	return nil
}

// Get returns a pooled buffer of at least the requested size, sliced to
// exactly that length. ok is false if size exceeds the largest bucket or
// the allocator failed; the caller must allocate directly in that case.
func Get(size int) (buf []byte, ok bool) {
	b := bucketFor(size)
	if b == nil {
		return nil, false
	}
	v := b.pool.Get()
	if v == nil {
		return nil, false
	}
	p := v.(*[]byte)
	return (*p)[:size], true
}

// Put returns a buffer to its bucket. Buffers whose capacity does not match
// a bucket size exactly (e.g. a one-off oversized allocation) are dropped.
func Put(buf []byte) {
	c := cap(buf)
	for _, b := range buckets {
		if b.size == c {
			full := buf[:c]
			b.pool.Put(&full)
			return
		}
	}
}
