package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

type heightTask struct {
	after uint32
	fn    func()
}

type service struct {
	scheduler    *gocron.Scheduler
	chain        ports.ChainInfo
	pollInterval time.Duration

	mu      *sync.Mutex
	tasks   map[string]*heightTask
	started bool
}

// NewScheduler returns a scheduler that polls chain every pollInterval and
// fires the tasks whose height has been passed.
func NewScheduler(chain ports.ChainInfo, pollInterval time.Duration) ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{
		scheduler:    svc,
		chain:        chain,
		pollInterval: pollInterval,
		mu:           &sync.Mutex{},
		tasks:        make(map[string]*heightTask),
	}
}

func (s *service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Nothing to do if already started
	if s.started {
		return
	}

	if _, err := s.scheduler.Every(s.pollInterval).SingletonMode().Do(s.poll); err != nil {
		log.WithError(err).Error("failed to schedule height polling")
		return
	}
	s.scheduler.StartAsync()
	s.started = true
}

func (s *service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.scheduler.Stop()
	s.scheduler.Clear()
	s.tasks = make(map[string]*heightTask)
	s.started = false
}

func (s *service) ScheduleAfterHeight(id string, height uint32, task func()) error {
	if id == "" {
		return fmt.Errorf("missing task id")
	}
	if task == nil {
		return fmt.Errorf("missing task")
	}

	s.mu.Lock()
	s.tasks[id] = &heightTask{after: height, fn: task}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	currentHeight, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		// The next poll will take care of it.
		log.WithError(err).Debug("failed to get current block height")
		return nil
	}
	s.fire(currentHeight)
	return nil
}

func (s *service) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *service) Every(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(task)
	return err
}

func (s *service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *service) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval+10*time.Second)
	defer cancel()

	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get block height")
		return
	}
	s.fire(height)
}

func (s *service) fire(height uint32) {
	s.mu.Lock()
	due := make([]func(), 0)
	for id, tsk := range s.tasks {
		if height > tsk.after {
			due = append(due, tsk.fn)
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()

	for _, fn := range due {
		go fn()
	}
}
