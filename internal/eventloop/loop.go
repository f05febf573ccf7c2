// Package eventloop serializes all engine state changes onto one goroutine.
//
// Network calls run on worker goroutines (Go) and hand their results back with
// Post, so completion handlers never race each other or user input.
package eventloop

import (
	"context"
	"sync/atomic"
	"time"
)

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Dispatcher is what engine components need from the loop.
type Dispatcher interface {
	// Post queues fn to run on the loop goroutine.
	Post(fn func())
	// Go runs fn off the loop. fn must not touch loop-owned state; it should
	// Post its result back instead.
	Go(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is the production Dispatcher.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// New returns a loop whose queue holds up to buffer pending closures.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post blocks while the queue is full and drops fn once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

func (l *Loop) Go(fn func()) { go fn() }

// AfterFunc posts fn once d has elapsed. Stopping the timer also cancels a
// callback that already fired but is still waiting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.state.CompareAndSwap(timerPending, timerRan) {
				fn()
			}
		})
	})
	return lt
}

const (
	timerPending int32 = iota
	timerStopped
	timerRan
)

type loopTimer struct {
	t     *time.Timer
	state atomic.Int32
}

func (lt *loopTimer) Stop() bool {
	lt.t.Stop()
	return lt.state.CompareAndSwap(timerPending, timerStopped)
}

// Call runs fn on the loop and waits for it to finish. It returns false if
// the loop stopped first.
func (l *Loop) Call(fn func()) bool {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}
