package alignedbuf

import "testing"

func TestAllocSizes(t *testing.T) {
	for _, size := range []int{1, MinAlign, 3 * MinAlign, 1 << 20, 3*(1<<20) + 7} {
		buf, err := Alloc(size)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", size, err)
		}
		if buf.Len() != size {
			t.Fatalf("Alloc(%d).Len() = %d", size, buf.Len())
		}
		buf.Release()
	}
}

func TestAllocRejectsNonPositive(t *testing.T) {
	if _, err := Alloc(0); err == nil {
		t.Fatalf("Alloc(0) should fail")
	}
	if _, err := Alloc(-1); err == nil {
		t.Fatalf("Alloc(-1) should fail")
	}
}

func TestCopyPaddedTruncatesOverrun(t *testing.T) {
	dst := make([]byte, 8)
	src := []byte("0123456789")
	n := CopyPadded(dst, 4, src)
	if n != 4 {
		t.Fatalf("CopyPadded returned %d, want 4", n)
	}
	if string(dst[4:8]) != "0123" {
		t.Fatalf("CopyPadded wrote %q", dst[4:8])
	}
}

func TestCopyPaddedOutOfRangeOffset(t *testing.T) {
	dst := make([]byte, 4)
	if n := CopyPadded(dst, 10, []byte("x")); n != 0 {
		t.Fatalf("CopyPadded out-of-range offset should copy 0, got %d", n)
	}
}

func TestZero(t *testing.T) {
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xAA
	}
	Zero(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("Zero left non-zero byte at %d: %x", i, v)
		}
	}
}

func TestReleaseIsIdempotentOnNil(t *testing.T) {
	var b *Buffer
	b.Release()
}
