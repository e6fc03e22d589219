package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinear(t *testing.T) {
	b := Linear(time.Second, 60*time.Second)
	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, 2*time.Second, b(1))
	assert.Equal(t, 10*time.Second, b(9))
	assert.Equal(t, 60*time.Second, b(59))
	assert.Equal(t, 60*time.Second, b(500))
}

func TestExponential(t *testing.T) {
	b := Exponential(time.Second, 60*time.Second)
	assert.Equal(t, time.Second, b(-1))
	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, 8*time.Second, b(3))
	assert.Equal(t, 60*time.Second, b(6))
	assert.Equal(t, 60*time.Second, b(31))
}

var errTemp = errors.New("temp")

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, Linear(time.Millisecond, time.Millisecond),
		func(err error) bool { return errors.Is(err, errTemp) },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errTemp
			}
			return nil
		})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	perm := errors.New("perm")
	calls := 0
	err := Do(context.Background(), 5, Linear(time.Millisecond, time.Millisecond),
		func(err error) bool { return errors.Is(err, errTemp) },
		func(context.Context) error {
			calls++
			return perm
		})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDoBounded(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, Linear(time.Millisecond, time.Millisecond),
		func(error) bool { return true },
		func(context.Context) error {
			calls++
			return errTemp
		})
	assert.ErrorIs(t, err, errTemp)
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 0, Linear(time.Hour, time.Hour),
		func(error) bool { return true },
		func(context.Context) error {
			calls++
			cancel()
			return errTemp
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
}
