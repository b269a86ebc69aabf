package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplide/internal/scheduler"
)

func TestTasksRunInOrder(t *testing.T) {
	s := scheduler.NewScheduler(8)
	s.RunScheduler()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, s.ScheduleHighPriorityTask(scheduler.Task{
			Name: name,
			Execute: func(context.Context) error {
				mu.Lock()
				got = append(got, name)
				if len(got) == 3 {
					close(done)
				}
				mu.Unlock()
				return nil
			},
		}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks did not run")
	}
	s.StopScheduler()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStopRejectsNewTasks(t *testing.T) {
	s := scheduler.NewScheduler(1)
	s.RunScheduler()
	s.StopScheduler()
	s.StopScheduler()

	err := s.ScheduleHighPriorityTask(scheduler.Task{Name: "late", Execute: func(context.Context) error { return nil }})
	assert.True(t, errors.Is(err, scheduler.ErrStopped))
}

func TestPeriodicTask(t *testing.T) {
	s := scheduler.NewScheduler(4)
	s.RunScheduler()
	defer s.StopScheduler()

	ticks := make(chan struct{}, 10)
	s.SchedulePeriodicTask(5*time.Millisecond, scheduler.Task{
		Name: "tick",
		Execute: func(context.Context) error {
			select {
			case ticks <- struct{}{}:
			default:
			}
			return nil
		},
	})
	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("periodic task did not run")
		}
	}
}
