package workload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
)

func TestTrackerReserveRelease(t *testing.T) {
	tracker := NewTracker(zap.NewNop())
	require.NoError(t, tracker.Register("a", 3))

	t.Run("reserve within capacity", func(t *testing.T) {
		require.NoError(t, tracker.Reserve("a", 2))
		load, err := tracker.Load("a")
		require.NoError(t, err)
		assert.Equal(t, 2, load)
	})

	t.Run("reserve past capacity fails and leaves load unchanged", func(t *testing.T) {
		err := tracker.Reserve("a", 2)
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)

		load, err := tracker.Load("a")
		require.NoError(t, err)
		assert.Equal(t, 2, load)
	})

	t.Run("release returns load", func(t *testing.T) {
		require.NoError(t, tracker.Release("a", 2))
		load, err := tracker.Load("a")
		require.NoError(t, err)
		assert.Equal(t, 0, load)
	})

	t.Run("over-release clamps to zero", func(t *testing.T) {
		require.NoError(t, tracker.Reserve("a", 1))
		require.NoError(t, tracker.Release("a", 5))
		load, err := tracker.Load("a")
		require.NoError(t, err)
		assert.Equal(t, 0, load)
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		assert.ErrorIs(t, tracker.Reserve("missing", 1), models.ErrBackendUnknown)
		assert.ErrorIs(t, tracker.Release("missing", 1), models.ErrBackendUnknown)
	})

	t.Run("negative amounts rejected", func(t *testing.T) {
		assert.Error(t, tracker.Reserve("a", -1))
		assert.Error(t, tracker.Release("a", -1))
	})
}

func TestTrackerRegister(t *testing.T) {
	tracker := NewTracker(zap.NewNop())

	t.Run("non-positive capacity rejected", func(t *testing.T) {
		assert.Error(t, tracker.Register("a", 0))
	})

	t.Run("re-register preserves load", func(t *testing.T) {
		require.NoError(t, tracker.Register("a", 2))
		require.NoError(t, tracker.Reserve("a", 2))

		require.NoError(t, tracker.Register("a", 5))
		load, err := tracker.Load("a")
		require.NoError(t, err)
		assert.Equal(t, 2, load)

		// New headroom from the raised ceiling is usable
		require.NoError(t, tracker.Reserve("a", 3))
	})
}

func TestTrackerReserveAll(t *testing.T) {
	t.Run("commits every backend", func(t *testing.T) {
		tracker := NewTracker(zap.NewNop())
		require.NoError(t, tracker.Register("a", 2))
		require.NoError(t, tracker.Register("b", 2))

		require.NoError(t, tracker.ReserveAll(map[string]int{"a": 1, "b": 2}))

		snapshot := tracker.SnapshotAll()
		assert.Equal(t, 1, snapshot["a"].Load)
		assert.Equal(t, 2, snapshot["b"].Load)
	})

	t.Run("rolls back on partial failure", func(t *testing.T) {
		tracker := NewTracker(zap.NewNop())
		require.NoError(t, tracker.Register("a", 5))
		require.NoError(t, tracker.Register("b", 1))

		err := tracker.ReserveAll(map[string]int{"a": 2, "b": 3})
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)

		snapshot := tracker.SnapshotAll()
		assert.Equal(t, 0, snapshot["a"].Load, "partial reservation must be rolled back")
		assert.Equal(t, 0, snapshot["b"].Load)
	})
}

func TestTrackerSnapshotAll(t *testing.T) {
	tracker := NewTracker(zap.NewNop())
	require.NoError(t, tracker.Register("a", 4))
	require.NoError(t, tracker.Reserve("a", 3))

	snapshot := tracker.SnapshotAll()
	require.Contains(t, snapshot, "a")
	assert.Equal(t, 3, snapshot["a"].Load)
	assert.Equal(t, 4, snapshot["a"].Capacity)
	assert.Equal(t, 1, snapshot["a"].Remaining())
}

func TestTrackerConcurrentReserve(t *testing.T) {
	tracker := NewTracker(zap.NewNop())
	require.NoError(t, tracker.Register("a", 50))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tracker.Reserve("a", 1)
		}()
	}
	wg.Wait()

	// Exactly the capacity worth of reservations may succeed
	load, err := tracker.Load("a")
	require.NoError(t, err)
	assert.Equal(t, 50, load)
}
