package netapp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/stretchr/testify/require"
)

var errWorkerFailed = errors.New("netapp test: worker failed")

func TestRunRejectsMissingPreconditions(t *testing.T) {
	ctx := context.Background()
	noop := func(ctx context.Context, wc WorkerContext) error { return nil }

	require.ErrorIs(t, NewConfig().Run(ctx, noop), ErrMissingIP)
	require.ErrorIs(t, NewConfig().WithIP([4]byte{10, 0, 0, 1}).Run(ctx, noop), ErrMissingGateway)
	require.ErrorIs(t,
		NewConfig().WithIP([4]byte{10, 0, 0, 1}).WithGateway([4]byte{10, 0, 0, 254}).Run(ctx, noop),
		ErrMissingDriver)
}

func TestRunSingleCoreRunsWorkerOnQueueZero(t *testing.T) {
	driver := NewLoopbackDriver(1, arpcache.MAC{0x02, 0, 0, 0, 0, 1})
	cfg := NewConfig().
		WithIP([4]byte{10, 0, 0, 1}).
		WithGateway([4]byte{10, 0, 0, 254}).
		WithDriver(driver)

	var ran bool
	var wc WorkerContext
	err := cfg.Run(context.Background(), func(ctx context.Context, c WorkerContext) error {
		wc = c
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 0, wc.QueueIndex)
	require.NotNil(t, wc.Reactor)
}

func TestRunMultiCoreRunsEveryWorkerAndStopsCleanly(t *testing.T) {
	const numCores = 3
	driver := NewLoopbackDriver(numCores, arpcache.MAC{0x02, 0, 0, 0, 0, 2})
	cfg := NewConfig().
		WithIP([4]byte{10, 0, 0, 1}).
		WithGateway([4]byte{10, 0, 0, 254}).
		WithDriver(driver)

	var ran atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := cfg.Run(ctx, func(ctx context.Context, wc WorkerContext) error {
		ran.Add(1)
		require.NotNil(t, wc.Reactor)
		require.NotNil(t, wc.Reactor.Stack())
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, numCores, ran.Load())
}

func TestRunPropagatesWorkerError(t *testing.T) {
	driver := NewLoopbackDriver(1, arpcache.MAC{0x02, 0, 0, 0, 0, 3})
	cfg := NewConfig().
		WithIP([4]byte{10, 0, 0, 1}).
		WithGateway([4]byte{10, 0, 0, 254}).
		WithDriver(driver)

	sentinel := errWorkerFailed
	err := cfg.Run(context.Background(), func(ctx context.Context, wc WorkerContext) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestBufCapForMTUFloorsAtMinimum(t *testing.T) {
	require.Equal(t, 2176, BufCapForMTU(1500))
	require.Equal(t, 9000+94, BufCapForMTU(9000))
}
