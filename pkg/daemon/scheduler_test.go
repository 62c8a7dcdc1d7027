package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/config"
)

func TestCronParse(t *testing.T) {
	schedule, err := config.CronParser.Parse("@every 10m")
	require.NoError(t, err)

	next1 := schedule.Next(time.Now())
	next2 := schedule.Next(next1)
	assert.True(t, next2.After(next1), "next1=%v next2=%v", next1, next2)
}

func TestSchedulerScheduleStatus(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil)

	require.NoError(t, s.Schedule("@every 1m"))

	next, running := s.Status()
	assert.False(t, running)
	assert.False(t, next.IsZero())

	assert.Error(t, s.Schedule("every now and then"))
}

func TestSchedulerRunCycle(t *testing.T) {
	taskCh := make(chan struct{}, 4)
	errCh := make(chan error, 4)

	calls := 0
	task := func() error {
		calls++
		taskCh <- struct{}{}
		if calls == 1 {
			return errors.New("prune failed")
		}
		return nil
	}
	onError := func(data any) {
		if err, ok := data.(error); ok {
			errCh <- err
		}
	}

	s := NewScheduler(task, onError)
	require.NoError(t, s.Schedule("@every 1s"))
	s.Start()
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-taskCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("task run %d did not happen", i+1)
		}
	}

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "prune failed")
	case <-time.After(time.Second):
		t.Fatal("error callback was not called")
	}
}

func TestSchedulerReschedule(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	s := NewScheduler(func() error {
		select {
		case taskCh <- struct{}{}:
		default:
		}
		return nil
	}, nil)
	require.NoError(t, s.Schedule("@every 1h"))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Schedule("@every 1s"))
	next, running := s.Status()
	assert.True(t, running)
	assert.WithinDuration(t, time.Now().Add(time.Second), next, time.Second)

	select {
	case <-taskCh:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run on the new schedule")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil)
	s.Start()
	s.Stop()
	assert.NotPanics(t, s.Stop)

	assert.Eventually(t, func() bool {
		_, running := s.Status()
		return !running
	}, time.Second, 10*time.Millisecond)
}
