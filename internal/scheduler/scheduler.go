package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("simplide.scheduler")

// ErrStopped is returned when scheduling on a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Scheduler runs tasks one at a time on a background goroutine, in the order
// they were scheduled.
type Scheduler struct {
	taskQueue       chan Task
	lowPriorityLock sync.Mutex
	stopChan        chan struct{}
	stopOnce        sync.Once
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// NewScheduler creates a new Scheduler with the specified queue size
func NewScheduler(queueSize int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RunScheduler starts the scheduler loop
func (s *Scheduler) RunScheduler() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case task := <-s.taskQueue:
				s.execute(task)
			case <-s.stopChan:
				// drain what was accepted before the stop
				for {
					select {
					case task := <-s.taskQueue:
						log.Debugf("draining task: %s", task.Name)
						s.execute(task)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Scheduler) execute(task Task) {
	log.Debugf("executing %s task", task.Name)
	if err := task.Execute(s.ctx); err != nil {
		log.Warningf("task %s: %v", task.Name, err)
	}
}

// SchedulePeriodicTask queues task every interval without blocking. A tick is
// skipped when the queue is full.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, task Task) {
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.lowPriorityLock.Lock()
				select {
				case s.taskQueue <- task:
					log.Debugf("scheduled %s", task.Name)
				case <-s.stopChan:
				default:
					log.Debugf("skipped scheduling %s, queue is full", task.Name)
				}
				s.lowPriorityLock.Unlock()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// ScheduleHighPriorityTask queues task, waiting for room if necessary.
func (s *Scheduler) ScheduleHighPriorityTask(task Task) error {
	select {
	case <-s.stopChan:
		return ErrStopped
	default:
	}
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.stopChan:
		return ErrStopped
	}
}

// StopScheduler runs the tasks already queued with a cancelled context and
// waits for the loops to exit.
func (s *Scheduler) StopScheduler() {
	s.stopOnce.Do(func() {
		log.Debugf("stopping scheduler")
		s.cancel()
		close(s.stopChan)
		s.wg.Wait()
		log.Debugf("scheduler stopped")
	})
}
