package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	scheduler "github.com/ArkLabsHQ/bitswap/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

const pollInterval = 20 * time.Millisecond

type mockChain struct {
	height atomic.Uint32
}

func (m *mockChain) GetBlockHeight(context.Context) (uint32, error) {
	return m.height.Load(), nil
}

var schedulerTypes = map[string]func(ports.ChainInfo) ports.SchedulerService{
	"gocron": func(chain ports.ChainInfo) ports.SchedulerService {
		return scheduler.NewScheduler(chain, pollInterval)
	},
}

func TestSchedulerService(t *testing.T) {
	for schedulerType, factory := range schedulerTypes {
		t.Run(schedulerType, func(t *testing.T) {
			testScheduler(t, factory)
		})
	}
}

func testScheduler(t *testing.T, newScheduler func(ports.ChainInfo) ports.SchedulerService) {
	t.Run("schedule after height", func(t *testing.T) {
		chain := &mockChain{}
		chain.height.Store(10)

		svc := newScheduler(chain)
		svc.Start()
		defer svc.Stop()

		done := make(chan struct{}, 1)
		err := svc.ScheduleAfterHeight("refund", 10, func() {
			done <- struct{}{}
		})
		require.NoError(t, err)
		require.Equal(t, 1, svc.Pending())

		// Height equal to the target is not enough.
		select {
		case <-done:
			require.Fail(t, "task executed at target height")
		case <-time.After(5 * pollInterval):
		}

		chain.height.Store(11)
		select {
		case <-done:
			require.Zero(t, svc.Pending())
		case <-time.After(2 * time.Second):
			require.Fail(t, "task did not execute within expected time")
		}
	})

	t.Run("schedule past height", func(t *testing.T) {
		chain := &mockChain{}
		chain.height.Store(100)

		svc := newScheduler(chain)
		svc.Start()
		defer svc.Stop()

		done := make(chan struct{}, 1)
		err := svc.ScheduleAfterHeight("refund", 50, func() {
			done <- struct{}{}
		})
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(time.Second):
			require.Fail(t, "task did not execute")
		}
	})

	t.Run("cancel", func(t *testing.T) {
		chain := &mockChain{}
		chain.height.Store(1)

		svc := newScheduler(chain)
		svc.Start()
		defer svc.Stop()

		var executed atomic.Bool
		require.NoError(t, svc.ScheduleAfterHeight("refund", 5, func() {
			executed.Store(true)
		}))
		svc.Cancel("refund")
		require.Zero(t, svc.Pending())

		chain.height.Store(10)
		time.Sleep(5 * pollInterval)
		require.False(t, executed.Load())
	})

	t.Run("every", func(t *testing.T) {
		svc := newScheduler(&mockChain{})
		svc.Start()
		defer svc.Stop()

		var runs atomic.Int32
		require.NoError(t, svc.Every(pollInterval, func() {
			runs.Add(1)
		}))
		require.Eventually(t, func() bool {
			return runs.Load() >= 2
		}, 2*time.Second, pollInterval)

		require.Error(t, svc.Every(0, func() {}))
	})

	t.Run("invalid task", func(t *testing.T) {
		svc := newScheduler(&mockChain{})
		require.Error(t, svc.ScheduleAfterHeight("", 1, func() {}))
		require.Error(t, svc.ScheduleAfterHeight("id", 1, nil))
	})
}
