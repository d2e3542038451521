package aio

import (
	"testing"

	"github.com/NaturalIO/io-engine/internal/alignedbuf"
	"github.com/NaturalIO/io-engine/internal/event"
	"github.com/stretchr/testify/require"
)

func newDriverForFillTest(t *testing.T) *Driver {
	t.Helper()
	return &Driver{depth: 1, slots: make([]slot, 1)}
}

func TestFillSlotCapturesOriginalOnFirstFill(t *testing.T) {
	d := newDriverForFillTest(t)
	buf, err := alignedbuf.Alloc(4096)
	require.NoError(t, err)
	ev := event.New(3, buf, event.Write, 1000)

	d.fillSlot(0, ev)

	s := &d.slots[0]
	require.Equal(t, ev.Buffer(), s.origBuf)
	require.EqualValues(t, 1000, s.origOffset)
	require.EqualValues(t, 4096, s.requested)
	require.EqualValues(t, 1000, s.iocb.aioOffset)
	require.EqualValues(t, 4096, s.iocb.aioNbytes)
}

func TestFillSlotBiasesOnResume(t *testing.T) {
	d := newDriverForFillTest(t)
	buf, err := alignedbuf.Alloc(4096)
	require.NoError(t, err)
	ev := event.New(3, buf, event.Write, 1000)

	d.fillSlot(0, ev)
	ev.SetCopied(1024) // short transfer: 1024 of 4096 written so far

	d.fillSlot(0, ev)

	s := &d.slots[0]
	// Original base is unchanged; the control block's offset/length are
	// rebiased from it by the accumulated progress.
	require.EqualValues(t, 1000, s.origOffset)
	require.EqualValues(t, 4096, s.requested)
	require.EqualValues(t, 1000+1024, s.iocb.aioOffset)
	require.EqualValues(t, 4096-1024, s.iocb.aioNbytes)
}

func TestFillSentinelSlotTargetsNullFdWithZeroLength(t *testing.T) {
	d := newDriverForFillTest(t)
	d.nullFd = 99

	d.fillSentinelSlot(0)

	s := &d.slots[0]
	require.Nil(t, s.ev)
	require.EqualValues(t, iocbCmdPread, s.iocb.aioLioOpcode)
	require.EqualValues(t, 99, s.iocb.aioFildes)
	require.EqualValues(t, 0, s.iocb.aioNbytes)
}
