package eventloop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Dispatcher for tests. Background work, completions
// and timers are queued and only run when the test asks for it, against a
// virtual clock.
type Manual struct {
	mu          sync.Mutex
	now         time.Duration
	work        []func()
	completions []func()
	timers      []*manualTimer
	seq         int
}

type manualTimer struct {
	m        *Manual
	deadline time.Duration
	order    int
	fn       func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.completions = append(m.completions, fn)
	m.mu.Unlock()
}

func (m *Manual) Go(fn func()) {
	m.mu.Lock()
	m.work = append(m.work, fn)
	m.mu.Unlock()
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, deadline: m.now + d, order: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// PendingWork returns the number of queued background functions.
func (m *Manual) PendingWork() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.work)
}

// PendingTimers returns the number of armed timers.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// RunWork runs the i-th queued background function, letting tests pick the
// order in which in-flight requests complete.
func (m *Manual) RunWork(i int) {
	m.mu.Lock()
	fn := m.work[i]
	m.work = append(m.work[:i], m.work[i+1:]...)
	m.mu.Unlock()
	fn()
}

// RunCompletions runs queued completions, including ones they post, until none remain.
func (m *Manual) RunCompletions() {
	for {
		m.mu.Lock()
		if len(m.completions) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.completions[0]
		m.completions = m.completions[1:]
		m.mu.Unlock()
		fn()
	}
}

// Drain runs background work and completions in FIFO order until both queues are empty.
func (m *Manual) Drain() {
	for {
		m.RunCompletions()
		m.mu.Lock()
		if len(m.work) == 0 {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.RunWork(0)
	}
}

// Advance moves the virtual clock forward and fires due timers in deadline order.
// Fired callbacks run inline, as if posted to the loop.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []*manualTimer
	live := m.timers[:0]
	for _, t := range m.timers {
		switch {
		case t.stopped:
		case t.deadline <= m.now:
			t.fired = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	m.timers = live
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline < due[j].deadline
		}
		return due[i].order < due[j].order
	})
	for _, t := range due {
		t.fn()
	}
}
