package loop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-sync/bus/loop"
)

func TestLoop_ExecutesInOrder(t *testing.T) {
	t.Parallel()

	l := loop.New()
	defer l.Stop(context.Background())

	var got []int
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Flush(context.Background()))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostFromTaskDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	l := loop.New()
	defer l.Stop(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, l.Post(func() {
		_ = l.Post(func() { wg.Done() })
	}))

	waitOrFail(t, &wg)
}

func TestLoop_PanicIsIsolated(t *testing.T) {
	t.Parallel()

	l := loop.New()
	defer l.Stop(context.Background())

	var ran bool
	require.NoError(t, l.Post(func() { panic("сбой задачи") }))
	require.NoError(t, l.Post(func() { ran = true }))
	require.NoError(t, l.Flush(context.Background()))

	assert.True(t, ran, "задача после паники должна выполниться")
}

func TestLoop_StopDrainsQueue(t *testing.T) {
	t.Parallel()

	l := loop.New()
	var count int
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Post(func() { count++ }))
	}
	require.NoError(t, l.Stop(context.Background()))

	assert.Equal(t, 10, count)
	assert.ErrorIs(t, l.Post(func() {}), loop.ErrStopped)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("задача не была выполнена")
	}
}
