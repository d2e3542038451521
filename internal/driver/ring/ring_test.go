package ring

import (
	"testing"

	"github.com/NaturalIO/io-engine/internal/alignedbuf"
	"github.com/NaturalIO/io-engine/internal/event"
	"github.com/stretchr/testify/require"
)

func TestEventTokenRoundTrips(t *testing.T) {
	buf, err := alignedbuf.Alloc(512)
	require.NoError(t, err)
	ev := event.New(3, buf, event.Read, 0)

	token := eventToken(ev)
	require.NotZero(t, token)
	require.NotEqual(t, sentinelUserData, token)

	got := tokenToEvent(token)
	require.Same(t, ev, got)
}

func TestBufAddrZeroForEmptySlice(t *testing.T) {
	require.EqualValues(t, 0, bufAddr(nil))
	require.EqualValues(t, 0, bufAddr([]byte{}))
}

func TestBufAddrNonZeroForNonEmptySlice(t *testing.T) {
	buf := make([]byte, 16)
	require.NotZero(t, bufAddr(buf))
}

func TestSentinelUserDataIsMaxUint64(t *testing.T) {
	require.EqualValues(t, ^uint64(0), sentinelUserData)
}
