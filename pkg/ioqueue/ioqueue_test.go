package ioqueue

import (
	"testing"

	"github.com/fastpath/netcore/pkg/pbuf"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPairRoundTrip(t *testing.T) {
	a, b := NewLoopbackPair(16, 2176, 128)

	tx, ok := a.pool.Get()
	require.True(t, ok)
	require.NoError(t, tx.SetLen(5))
	copy(tx.Payload(), []byte("hello"))

	n := a.Transmit([]*pbuf.Buffer{tx})
	require.Equal(t, 1, n)

	dst := make([]*pbuf.Buffer, MaxBurst)
	got := b.Receive(dst)
	require.Equal(t, 1, got)
	require.Equal(t, "hello", string(dst[0].Payload()))
}

func TestLoopbackReceiveEmpty(t *testing.T) {
	a, _ := NewLoopbackPair(4, 2176, 128)
	dst := make([]*pbuf.Buffer, MaxBurst)
	require.Equal(t, 0, a.Receive(dst))
}

func TestNullQueueAlwaysEmpty(t *testing.T) {
	n := NewNull(4, 2176, 128)
	dst := make([]*pbuf.Buffer, MaxBurst)
	require.Equal(t, 0, n.Receive(dst))

	buf := n.Alloc()
	require.NotNil(t, buf)
	require.Equal(t, 1, n.Transmit([]*pbuf.Buffer{buf}))
}
