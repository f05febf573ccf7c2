package scheduler

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketMirror/internal/eventloop"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recorder captures refreshes and lets the test decide when each finishes.
type recorder struct {
	triggers []Trigger
	pending  []func(error)
}

func (r *recorder) refresh(trigger Trigger, done func(error)) {
	r.triggers = append(r.triggers, trigger)
	r.pending = append(r.pending, done)
}

func (r *recorder) complete(err error) {
	done := r.pending[0]
	r.pending = r.pending[1:]
	done(err)
}

func newPoller(r *recorder) *Poller {
	return NewPoller(eventloop.NewManual(), DefaultCycle, r.refresh, quietLogger())
}

func TestPoller_CountdownWrap(t *testing.T) {
	r := &recorder{}
	p := newPoller(r)
	require.Equal(t, 900, p.Countdown())

	for i := 0; i < 899; i++ {
		p.Tick()
	}
	assert.Empty(t, r.triggers)
	assert.Equal(t, 1, p.Countdown())

	p.Tick()
	assert.Equal(t, []Trigger{TriggerAuto}, r.triggers)
	assert.Equal(t, 900, p.Countdown())
	assert.Equal(t, Refreshing, p.State())
}

func TestPoller_ManualRefreshResetsCountdown(t *testing.T) {
	r := &recorder{}
	p := newPoller(r)
	for i := 0; i < 600; i++ {
		p.Tick()
	}

	assert.True(t, p.RequestRefresh())
	assert.Equal(t, 900, p.Countdown())
	assert.Equal(t, []Trigger{TriggerManual}, r.triggers)
}

func TestPoller_ManualRefreshWhileRefreshingIsNoop(t *testing.T) {
	r := &recorder{}
	p := newPoller(r)

	require.True(t, p.RequestRefresh())
	for i := 0; i < 10; i++ {
		p.Tick()
	}
	assert.False(t, p.RequestRefresh())

	assert.Len(t, r.triggers, 1)
	assert.Equal(t, 890, p.Countdown())
	_, _, skipped := p.Stats()
	assert.Equal(t, 1, skipped)

	r.complete(nil)
	assert.Equal(t, Idle, p.State())
	assert.True(t, p.RequestRefresh())
	assert.Len(t, r.triggers, 2)
}

func TestPoller_AutoRefreshSkippedWhileRefreshing(t *testing.T) {
	r := &recorder{}
	p := newPoller(r)
	require.True(t, p.RequestRefresh())

	for i := 0; i < 900; i++ {
		p.Tick()
	}
	assert.Len(t, r.triggers, 1)
	assert.Equal(t, 900, p.Countdown())
}

func TestPoller_FailureKeepsSchedule(t *testing.T) {
	r := &recorder{}
	p := newPoller(r)
	for i := 0; i < 900; i++ {
		p.Tick()
	}
	for i := 0; i < 100; i++ {
		p.Tick()
	}
	r.complete(errors.New("boom"))

	assert.Equal(t, Idle, p.State())
	assert.Equal(t, 800, p.Countdown())

	for i := 0; i < 800; i++ {
		p.Tick()
	}
	assert.Equal(t, []Trigger{TriggerAuto, TriggerAuto}, r.triggers)
	refreshes, failures, _ := p.Stats()
	assert.Equal(t, 2, refreshes)
	assert.Equal(t, 1, failures)
}

func TestPoller_DoneIsIdempotent(t *testing.T) {
	var done func(error)
	p := NewPoller(eventloop.NewManual(), time.Minute, func(_ Trigger, d func(error)) { done = d }, quietLogger())

	var states []State
	p.OnState(func(s State) { states = append(states, s) })
	p.RequestRefresh()
	done(nil)
	done(errors.New("late"))

	assert.Equal(t, []State{Refreshing, Idle}, states)
	_, failures, _ := p.Stats()
	assert.Zero(t, failures)
}

func TestPoller_CountdownCallback(t *testing.T) {
	r := &recorder{}
	p := NewPoller(eventloop.NewManual(), 3*time.Second, r.refresh, quietLogger())
	var seen []int
	p.OnCountdown(func(n int) { seen = append(seen, n) })

	p.Tick()
	p.Tick()
	p.Tick()
	assert.Equal(t, []int{2, 1, 3}, seen)
	assert.Len(t, r.triggers, 1)
}

func TestPoller_ShortCycleFallsBack(t *testing.T) {
	p := NewPoller(eventloop.NewManual(), 0, func(Trigger, func(error)) {}, quietLogger())
	assert.Equal(t, 900, p.Cycle())
}
