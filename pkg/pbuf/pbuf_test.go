package pbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckCapacity(t *testing.T) {
	require.NoError(t, CheckCapacity(1500, 1500+HeadroomOverhead))
	require.NoError(t, CheckCapacity(1500, 2176))
	err := CheckCapacity(1500, 1500+HeadroomOverhead-1)
	require.ErrorIs(t, err, ErrCapacityTooSmall)
}

func TestPoolGetPutExhaustion(t *testing.T) {
	p := NewPool(2, 2176, 128)
	require.Equal(t, 2, p.Len())

	b1, ok := p.Get()
	require.True(t, ok)
	require.Equal(t, 1, p.Len())

	b2, ok := p.Get()
	require.True(t, ok)
	require.Equal(t, 0, p.Len())

	_, ok = p.Get()
	require.False(t, ok, "pool must report exhaustion rather than block")

	p.Put(b1)
	p.Put(b2)
	require.Equal(t, 2, p.Len())
}

func TestBufferPayloadAndSetLen(t *testing.T) {
	b := newBuffer(256, 128)
	require.Equal(t, 256, b.Cap())
	require.Equal(t, 128, b.Headroom())
	require.NoError(t, b.SetLen(64))
	require.Equal(t, 64, b.Len())
	require.Len(t, b.Payload(), 64)

	err := b.SetLen(256)
	require.Error(t, err, "SetLen beyond capacity-after-headroom must fail")
}

func TestResetClearsLength(t *testing.T) {
	b := newBuffer(128, 32)
	require.NoError(t, b.SetLen(10))
	b.Reset()
	require.Equal(t, 0, b.Len())
}
