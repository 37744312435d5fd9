package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpawn_RunsAndDrains(t *testing.T) {
	s := New(time.Second, 0)
	var ran int32
	s.Spawn(context.Background(), "A", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	s.Wait()
	assert.Equal(t, int32(1), ran)
}

func TestSpawn_TimeoutCancelsTaskContext(t *testing.T) {
	s := New(10*time.Millisecond, 0)
	var sawDeadline int32
	s.Spawn(context.Background(), "A", func(ctx context.Context) error {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			atomic.AddInt32(&sawDeadline, 1)
		}
		return ctx.Err()
	})
	s.Wait()
	assert.Equal(t, int32(1), sawDeadline)
}

func TestSpawn_BoundedConcurrencySerializesOverCapacity(t *testing.T) {
	s := New(time.Second, 1)
	var concurrent, maxConcurrent int32
	const tasks = 5
	for i := 0; i < tasks; i++ {
		s.Spawn(context.Background(), "job", func(ctx context.Context) error {
			cur := atomic.AddInt32(&concurrent, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return nil
		})
	}
	s.Wait()
	assert.Equal(t, int32(1), maxConcurrent)
}

func TestWaitWithDeadline_TimesOutOnSlowTask(t *testing.T) {
	s := New(time.Second, 0)
	s.Spawn(context.Background(), "slow", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.False(t, s.WaitWithDeadline(5*time.Millisecond))
	assert.True(t, s.WaitWithDeadline(time.Second))
}
