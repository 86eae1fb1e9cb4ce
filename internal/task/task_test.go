package task

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countStep finishes after n updates and records calls.
type countStep struct {
	n       int
	starts  int
	updates int
	aborts  int
	fail    error
}

func (s *countStep) Start(t *Task) { s.starts++ }

func (s *countStep) Update(t *Task) {
	s.updates++
	t.SetProgress(float64(s.updates) / float64(s.n))
	if s.updates >= s.n {
		if s.fail != nil {
			t.Fail(s.fail)
			return
		}
		t.Succeed()
	}
}

func (s *countStep) Abort(t *Task) { s.aborts++ }

func TestTaskLifecycle(t *testing.T) {
	step := &countStep{n: 3}
	tk := New("count", step)
	assert.Equal(t, Pending, tk.Status())

	tk.Update()
	assert.Equal(t, Executing, tk.Status())
	assert.Equal(t, 1, step.starts)

	tk.Update()
	tk.Update()
	assert.Equal(t, Succeeded, tk.Status())
	assert.True(t, tk.IsDone())
	assert.NoError(t, tk.Err())
	assert.Equal(t, "", tk.Error())
	assert.Equal(t, 1.0, tk.Progress())

	// updates after completion are ignored
	tk.Update()
	assert.Equal(t, 3, step.updates)
	assert.Equal(t, 1, step.starts)
}

func TestTaskFailureReason(t *testing.T) {
	tk := New("fail", &countStep{n: 1, fail: errors.New("boom")})
	tk.Update()
	assert.Equal(t, Failed, tk.Status())
	assert.Equal(t, "boom", tk.Error())
}

func TestCompleted(t *testing.T) {
	ok := Completed("ok", nil)
	assert.Equal(t, Succeeded, ok.Status())

	bad := Completed("bad", errors.New("invalid"))
	assert.Equal(t, Failed, bad.Status())
	bad.Abort()
	assert.Equal(t, "invalid", bad.Error())
}

func TestAbortPropagatesToChildrenOnly(t *testing.T) {
	parentStep := &countStep{n: 10}
	parent := New("parent", parentStep)
	childStep := &countStep{n: 10}
	child := parent.Spawn(New("child", childStep))
	grandStep := &countStep{n: 10}
	grand := child.Spawn(New("grand", grandStep))

	parent.Update()
	child.Update()

	// aborting the child leaves the parent running
	child.Abort()
	assert.Equal(t, Failed, child.Status())
	assert.ErrorIs(t, child.Err(), ErrAborted)
	assert.Equal(t, Failed, grand.Status())
	assert.Equal(t, Executing, parent.Status())
	assert.Equal(t, 0, parentStep.aborts)

	parent.Abort()
	assert.Equal(t, Failed, parent.Status())
	assert.Equal(t, 1, parentStep.aborts)
	// already aborted children are not aborted twice
	assert.Equal(t, 1, childStep.aborts)
	assert.Equal(t, 1, grandStep.aborts)
}

func TestAbortBeforeStartCallsStepAbort(t *testing.T) {
	step := &countStep{n: 1}
	tk := New("never-started", step)
	tk.Abort()
	assert.Equal(t, 1, step.aborts)
	assert.Equal(t, 0, step.starts)

	tk.Abort()
	assert.Equal(t, 1, step.aborts)
}

func TestSchedulerTickDropsFinished(t *testing.T) {
	ticks := 0
	s := NewScheduler(func() { ticks++ })
	short := s.Start(New("short", &countStep{n: 1}))
	long := s.Start(New("long", &countStep{n: 3}))

	s.Tick()
	assert.True(t, short.IsDone())
	assert.Equal(t, 1, s.Len())

	s.Tick()
	s.Tick()
	assert.True(t, long.IsDone())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 3, ticks)
}

func TestSchedulerAbortAll(t *testing.T) {
	s := NewScheduler()
	a := s.Start(New("a", &countStep{n: 5}))
	b := s.Start(New("b", &countStep{n: 5}))
	s.Tick()
	s.AbortAll()
	assert.Equal(t, Failed, a.Status())
	assert.Equal(t, Failed, b.Status())
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerWait(t *testing.T) {
	s := NewScheduler()
	err := s.Wait(context.Background(), New("wait", &countStep{n: 4}), time.Millisecond)
	require.NoError(t, err)
}

func TestSchedulerWaitCancelled(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tk := New("forever", &countStep{n: 1 << 30})
	err := s.Wait(ctx, tk, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, tk.Err(), ErrAborted)
}

func TestSchedulerStartTwice(t *testing.T) {
	s := NewScheduler()
	step := &countStep{n: 2}
	tk := New("twice", step)
	s.Start(tk)
	s.Start(tk)
	assert.Equal(t, 1, s.Len())

	s.Tick()
	assert.Equal(t, 1, step.updates)
}
