package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsPostedInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(8)
	go l.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		l.Post(func() { got = append(got, i) })
	}
	require.True(t, l.Call(func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_AfterFuncPostsToLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(8)
	go l.Run(ctx)

	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoop_StopCancelsQueuedCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(8)
	go l.Run(ctx)

	release := make(chan struct{})
	l.Post(func() { <-release })

	ran := false
	stopped := false
	timer := l.AfterFunc(5*time.Millisecond, func() { ran = true })
	l.Post(func() { stopped = timer.Stop() })
	// The timer fires while the loop is blocked, so its callback is queued
	// behind the Stop above.
	time.Sleep(30 * time.Millisecond)
	close(release)

	require.True(t, l.Call(func() {}))
	assert.True(t, stopped)
	assert.False(t, ran)
	assert.False(t, timer.Stop())
}

func TestLoop_StopAfterRunReportsFalse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(8)
	go l.Run(ctx)

	fired := make(chan struct{})
	timer := l.AfterFunc(time.Millisecond, func() { close(fired) })
	<-fired
	assert.False(t, timer.Stop())
}

func TestLoop_PostAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(1)
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	l.Post(func() {})
	l.Post(func() {})
	assert.False(t, l.Call(func() {}))
}

func TestManual_TimersFireInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.AfterFunc(300*time.Millisecond, func() { got = append(got, "b") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	stopped := m.AfterFunc(200*time.Millisecond, func() { got = append(got, "x") })

	assert.True(t, stopped.Stop())
	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)
	m.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Zero(t, m.PendingTimers())
	assert.False(t, stopped.Stop())
}

func TestManual_Drain(t *testing.T) {
	m := NewManual()
	var got []string
	m.Go(func() {
		got = append(got, "work")
		m.Post(func() { got = append(got, "done") })
	})
	assert.Equal(t, 1, m.PendingWork())
	m.Drain()
	assert.Equal(t, []string{"work", "done"}, got)
}
