package task

import (
	"context"
	"sync"
	"time"
)

// Scheduler owns a set of top-level tasks and advances them on every Tick.
type Scheduler struct {
	mu    sync.Mutex
	tasks []*Task
	hooks []func()
}

// NewScheduler returns an empty scheduler. The hooks run at the beginning of
// every tick, before any task is updated.
func NewScheduler(hooks ...func()) *Scheduler {
	return &Scheduler{hooks: hooks}
}

// Start hands t to the scheduler and returns it. Starting a task twice has
// no effect.
func (s *Scheduler) Start(t *Task) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.tasks {
		if have == t {
			return t
		}
	}
	s.tasks = append(s.tasks, t)
	return t
}

// Len returns the number of unfinished tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tick runs the hooks and updates every task once. Finished tasks are
// dropped.
func (s *Scheduler) Tick() {
	for _, hook := range s.hooks {
		hook()
	}

	s.mu.Lock()
	tasks := append([]*Task(nil), s.tasks...)
	s.mu.Unlock()

	for _, t := range tasks {
		t.Update()
	}

	s.mu.Lock()
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.IsDone() {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
	s.mu.Unlock()
}

// AbortAll aborts every unfinished task.
func (s *Scheduler) AbortAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, t := range tasks {
		t.Abort()
	}
}

// Wait starts t on s and ticks s every interval until t is done. When ctx is
// cancelled first, t is aborted. The failure reason of t is returned.
func (s *Scheduler) Wait(ctx context.Context, t *Task, interval time.Duration) error {
	s.Start(t)
	s.Tick()
	if t.IsDone() {
		return t.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !t.IsDone() {
		select {
		case <-ctx.Done():
			t.Abort()
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}

	return t.Err()
}
