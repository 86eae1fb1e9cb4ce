// Package task implements cancellable, pollable units of work that are
// advanced by an external tick instead of blocking the caller.
//
// A Task is driven by its owner calling Update once per tick. The behaviour
// of a task lives in a Step; the Task only tracks state, progress, the
// failure reason and the children it spawned. Aborting a task aborts all of
// its children first. A child never holds a reference to its parent, so
// aborting a child cannot affect the parent.
package task

import (
	"sync"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a Task.
type Status uint8

// These are the states a task moves through. Succeeded and Failed are
// terminal.
const (
	Pending Status = iota
	Executing
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "invalid"
}

// ErrAborted is the failure reason of a task that was aborted.
var ErrAborted = errors.New("task aborted")

// Step supplies the behaviour of a Task.
type Step interface {
	// Start is called once, on the first Update of the task.
	Start(t *Task)

	// Update is called on every tick while the task is executing, including
	// the tick Start ran in.
	Update(t *Task)

	// Abort releases everything the step holds. It is called exactly once
	// when the task is aborted before reaching a terminal state, whether or
	// not the task was started.
	Abort(t *Task)
}

// Task is a unit of asynchronous work.
type Task struct {
	name string
	step Step

	mu       sync.Mutex
	status   Status
	err      error
	progress float64
	started  bool
	children []*Task
}

// New returns a pending task named name, driven by step.
func New(name string, step Step) *Task {
	return &Task{name: name, step: step}
}

// Completed returns a task that is already terminal. A nil err yields a
// succeeded task.
func Completed(name string, err error) *Task {
	t := &Task{name: name}
	if err != nil {
		t.status = Failed
		t.err = err
	} else {
		t.status = Succeeded
		t.progress = 1
	}
	return t
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Status returns the current state of the task.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsDone returns true once the task reached a terminal state.
func (t *Task) IsDone() bool {
	s := t.Status()
	return s == Succeeded || s == Failed
}

// Err returns the failure reason, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Error returns a human-readable failure reason, or "" if the task did not
// fail.
func (t *Task) Error() string {
	if err := t.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Progress returns the progress of the task in the range [0, 1].
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetProgress records the progress of the task.
func (t *Task) SetProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	t.progress = p
}

// Succeed moves the task to Succeeded. It has no effect on a finished task.
func (t *Task) Succeed() {
	t.finish(Succeeded, nil)
}

// Fail moves the task to Failed with reason err.
func (t *Task) Fail(err error) {
	if err == nil {
		err = errors.New("unknown failure")
	}
	t.finish(Failed, err)
}

func (t *Task) finish(s Status, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == Succeeded || t.status == Failed {
		return false
	}
	t.status = s
	t.err = err
	if s == Succeeded {
		t.progress = 1
	}
	return true
}

// Spawn registers child so that aborting t also aborts child. The parent's
// step remains responsible for updating its children.
func (t *Task) Spawn(child *Task) *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, child)
	return child
}

// Children returns a snapshot of the spawned children.
func (t *Task) Children() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Task(nil), t.children...)
}

// Update advances the task by one tick.
func (t *Task) Update() {
	t.mu.Lock()
	if t.status == Succeeded || t.status == Failed {
		t.mu.Unlock()
		return
	}
	first := !t.started
	t.started = true
	t.status = Executing
	t.mu.Unlock()

	if first {
		t.step.Start(t)
		if t.IsDone() {
			return
		}
	}
	t.step.Update(t)
}

// Abort cancels the task and every child it spawned. Children are aborted
// before the task reports its own terminal state.
func (t *Task) Abort() {
	if t.IsDone() {
		return
	}

	for _, child := range t.Children() {
		child.Abort()
	}

	if t.step != nil {
		t.step.Abort(t)
	}
	t.finish(Failed, ErrAborted)
}
