package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func fast() *Options {
	return DefaultOptions().WithStrategy(NewFixedStrategy(time.Millisecond)).WithTimeout(time.Second)
}

func TestUntilSucceeds(t *testing.T) {
	counter := 0
	err := Until(context.Background(), func(context.Context) (bool, error) {
		counter++
		return counter >= 3, nil
	}, fast())

	require.NoError(t, err)
	assert.Equal(t, 3, counter)
}

func TestUntilMaxRetries(t *testing.T) {
	counter := 0
	err := Until(context.Background(), func(context.Context) (bool, error) {
		counter++
		return false, nil
	}, fast().WithMaxRetries(4))

	assert.ErrorIs(t, err, ErrMaxRetriesReached)
	assert.Equal(t, 4, counter)
}

func TestUntilConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := Until(context.Background(), func(context.Context) (bool, error) {
		return false, boom
	}, fast())

	assert.ErrorIs(t, err, boom)
}

func TestUntilTimeout(t *testing.T) {
	err := Until(context.Background(), func(context.Context) (bool, error) {
		return false, nil
	}, DefaultOptions().WithStrategy(NewFixedStrategy(5*time.Millisecond)).WithTimeout(20*time.Millisecond))

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Until(ctx, func(context.Context) (bool, error) {
		return false, nil
	}, fast())

	assert.ErrorIs(t, err, ErrCanceled)
}

func TestForPing(t *testing.T) {
	p := &flakyPinger{failures: 2}
	require.NoError(t, ForPing(context.Background(), p, fast()))
	assert.Equal(t, 3, p.calls)

	p = &flakyPinger{failures: 100}
	err := ForPing(context.Background(), p, fast().WithMaxRetries(3))
	assert.ErrorIs(t, err, ErrMaxRetriesReached)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExponentialBackoffStrategy(t *testing.T) {
	s := NewExponentialBackoffStrategy(10*time.Millisecond, 2, 50*time.Millisecond, false)

	var got []time.Duration
	for i := 0; i < 4; i++ {
		d, ok := s.Next()
		require.True(t, ok)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond,
	}, got)

	s.Reset()
	d, _ := s.Next()
	assert.Equal(t, 10*time.Millisecond, d)
}
