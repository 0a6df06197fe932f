// ABOUTME: Tests for the idempotency result cache.
// ABOUTME: Validates TTL expiry, eviction, error handling and shared concurrent execution.

package dedupe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Do_RemembersResult(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	calls := 0
	fn := func() (string, error) {
		calls++
		return "server_1", nil
	}

	v, shared, err := cache.Do("key", fn)
	require.NoError(t, err)
	assert.Equal(t, "server_1", v)
	assert.False(t, shared)

	v, shared, err = cache.Do("key", fn)
	require.NoError(t, err)
	assert.Equal(t, "server_1", v)
	assert.True(t, shared)
	assert.Equal(t, 1, calls)

	got, ok := cache.Lookup("key")
	assert.True(t, ok)
	assert.Equal(t, "server_1", got)
}

func TestCache_Do_ErrorsAreNotRemembered(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	boom := errors.New("spawn failed")
	_, _, err := cache.Do("key", func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)

	_, ok := cache.Lookup("key")
	assert.False(t, ok)

	v, shared, err := cache.Do("key", func() (string, error) { return "server_2", nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "server_2", v)
}

func TestCache_Do_Expired(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	_, _, err := cache.Do("key", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Lookup("key")
	assert.False(t, ok)

	v, shared, err := cache.Do("key", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 2, v)
}

func TestCache_Do_ConcurrentCallersShareExecution(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (string, error) {
		calls.Add(1)
		<-release
		return "server_once", nil
	}

	const n = 10
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			v, _, err := cache.Do("same", fn)
			assert.NoError(t, err)
			results[i] = v
		})
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		assert.Equal(t, "server_once", v)
	}
}

func TestCache_Lookup_InFlight(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go cache.Do("key", func() (string, error) {
		close(started)
		<-release
		return "v", nil
	})
	<-started

	_, ok := cache.Lookup("key")
	assert.False(t, ok)
	close(release)
	assert.Eventually(t, func() bool {
		_, ok := cache.Lookup("key")
		return ok
	}, time.Second, time.Millisecond)
}

func TestCache_Forget(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	calls := 0
	fn := func() (int, error) {
		calls++
		return calls, nil
	}

	v, _, err := cache.Do("key", fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	cache.Forget("key")
	cache.Forget("missing")
	v, shared, err := cache.Do("key", fn)
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 2, v)
}

func TestCache_Forget_LeavesInFlight(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = cache.Do("key", func() (string, error) {
			close(started)
			<-release
			return "v", nil
		})
	}()
	<-started

	cache.Forget("key")
	close(release)
	<-done

	v, ok := cache.Lookup("key")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_EvictsOldest(t *testing.T) {
	cache := New[int](5*time.Minute, 2)
	defer cache.Close()

	for i, key := range []string{"a", "b", "c"} {
		_, _, err := cache.Do(key, func() (int, error) { return i, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Lookup("a")
	assert.False(t, ok)
	v, ok := cache.Lookup("c")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_RunCleanup(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	_, _, _ = cache.Do("old", func() (int, error) { return 1, nil })
	time.Sleep(20 * time.Millisecond)
	_, _, _ = cache.Do("new", func() (int, error) { return 2, nil })

	cache.runCleanup()
	assert.Equal(t, 1, cache.Len())
}

func TestCache_CloseIdempotent(t *testing.T) {
	cache := New[int](time.Minute, 10)
	cache.Close()
	assert.NotPanics(t, cache.Close)
}
