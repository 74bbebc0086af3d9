package future_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-sync/bus/future"
)

func TestFuture_SettlesExactlyOnce(t *testing.T) {
	t.Parallel()

	f := future.New[int]()
	assert.False(t, f.Settled())

	_, err := f.Result()
	require.ErrorIs(t, err, future.ErrPending)

	assert.True(t, f.Resolve(1), "первая установка должна пройти")
	assert.False(t, f.Resolve(2), "повторная установка должна игнорироваться")
	assert.False(t, f.Reject(errors.New("поздно")), "отказ после успеха должен игнорироваться")

	value, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestFuture_ThenAfterSettlementStillFires(t *testing.T) {
	t.Parallel()

	reason := errors.New("сбой")
	f := future.Rejected[string](reason)

	var called bool
	f.Then(func(value string, err error) {
		called = true
		assert.Empty(t, value)
		assert.ErrorIs(t, err, reason)
	})

	assert.True(t, called, "коллбэк, подключенный после установки, должен быть вызван")
}

func TestFuture_CallbacksRunInAttachOrder(t *testing.T) {
	t.Parallel()

	f := future.New[int]()
	var order []int
	for i := 0; i < 5; i++ {
		f.Then(func(int, error) { order = append(order, i) })
	}
	f.Resolve(42)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFuture_RejectNilUsesSentinel(t *testing.T) {
	t.Parallel()

	f := future.New[int]()
	f.Reject(nil)

	_, err := f.Result()
	assert.ErrorIs(t, err, future.ErrNilReason)
}

func TestFuture_Await(t *testing.T) {
	t.Parallel()

	t.Run("получение результата", func(t *testing.T) {
		t.Parallel()
		f := future.New[string]()
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.Resolve("готово")
		}()

		value, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "готово", value)
	})

	t.Run("отмена контекста", func(t *testing.T) {
		t.Parallel()
		f := future.New[string]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, f.Settled())
	})
}

func TestFuture_ConcurrentSettle(t *testing.T) {
	t.Parallel()

	f := future.New[int]()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "ровно одна установка должна победить")
}

func TestPipeAndMap(t *testing.T) {
	t.Parallel()

	src := future.New[int]()
	dst := future.New[int]()
	future.Pipe(src, dst)
	mapped := future.Map(src, func(v int) (string, error) {
		return strconv.Itoa(v * 2), nil
	})

	src.Resolve(21)

	v, err := dst.Result()
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	s, err := mapped.Result()
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	failed := future.Rejected[int](errors.New("нет связи"))
	mappedFailure := future.Map(failed, func(v int) (int, error) {
		t.Fatal("fn не должна вызываться при отказе")
		return 0, nil
	})
	_, err = mappedFailure.Result()
	assert.EqualError(t, err, "нет связи")
}
