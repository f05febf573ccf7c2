// Package scheduler drives the quote refresh cycle: a one-second countdown
// that triggers an automatic refresh at zero, plus user-requested refreshes,
// with at most one refresh in flight.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"MarketMirror/internal/eventloop"
)

// DefaultCycle is the time between automatic refreshes.
const DefaultCycle = 15 * time.Minute

// State is the refresh state of the poller.
type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Trigger says what started a refresh.
type Trigger string

const (
	TriggerAuto   Trigger = "AUTO"
	TriggerManual Trigger = "MANUAL"
)

// RefreshFunc starts one refresh. It must call done exactly once, on the
// loop, when the refresh has finished (successfully or not).
type RefreshFunc func(trigger Trigger, done func(err error))

// Poller owns the countdown and the Idle/Refreshing state. All methods must be
// called on the event loop.
type Poller struct {
	Cron *cron.Cron

	dispatcher eventloop.Dispatcher
	refresh    RefreshFunc
	log        logrus.FieldLogger

	cycle     int
	countdown int
	state     State

	onCountdown func(remaining int)
	onState     func(state State)

	refreshes int
	failures  int
	skipped   int
}

// NewPoller creates a poller with a full countdown. cycle is rounded down to
// whole seconds; anything below one second falls back to DefaultCycle.
func NewPoller(d eventloop.Dispatcher, cycle time.Duration, refresh RefreshFunc, log logrus.FieldLogger) *Poller {
	seconds := int(cycle / time.Second)
	if seconds < 1 {
		seconds = int(DefaultCycle / time.Second)
	}
	return &Poller{
		Cron:       cron.New(cron.WithSeconds()),
		dispatcher: d,
		refresh:    refresh,
		log:        log.WithField("component", "poller"),
		cycle:      seconds,
		countdown:  seconds,
	}
}

// OnCountdown registers a callback invoked after every tick.
func (p *Poller) OnCountdown(fn func(remaining int)) { p.onCountdown = fn }

// OnState registers a callback invoked on every state transition.
func (p *Poller) OnState(fn func(state State)) { p.onState = fn }

func (p *Poller) Countdown() int { return p.countdown }
func (p *Poller) State() State   { return p.state }
func (p *Poller) Cycle() int     { return p.cycle }

// Stats returns how many refreshes started, how many of them failed, and how
// many requests were dropped because one was already in flight.
func (p *Poller) Stats() (refreshes, failures, skipped int) {
	return p.refreshes, p.failures, p.skipped
}

// Tick advances the countdown by one second. At zero the countdown resets to
// a full cycle and an automatic refresh starts unless one is in flight.
func (p *Poller) Tick() {
	p.countdown--
	if p.countdown <= 0 {
		p.countdown = p.cycle
		p.begin(TriggerAuto)
	}
	if p.onCountdown != nil {
		p.onCountdown(p.countdown)
	}
}

// RequestRefresh starts a manual refresh and restarts the countdown. While a
// refresh is in flight the request is ignored and false is returned.
func (p *Poller) RequestRefresh() bool {
	if p.state == Refreshing {
		p.skipped++
		p.log.WithField("trigger", TriggerManual).Debug("refresh already in flight, ignoring request")
		return false
	}
	p.countdown = p.cycle
	if p.onCountdown != nil {
		p.onCountdown(p.countdown)
	}
	return p.begin(TriggerManual)
}

func (p *Poller) begin(trigger Trigger) bool {
	if p.state == Refreshing {
		p.skipped++
		p.log.WithField("trigger", trigger).Warn("previous refresh still running, skipping cycle")
		return false
	}
	p.setState(Refreshing)
	p.refreshes++
	p.log.WithField("trigger", trigger).Info("refresh started")

	settled := false
	p.refresh(trigger, func(err error) {
		if settled {
			return
		}
		settled = true
		p.finish(trigger, err)
	})
	return true
}

func (p *Poller) finish(trigger Trigger, err error) {
	if err != nil {
		p.failures++
		p.log.WithField("trigger", trigger).WithError(err).Warn("refresh failed, next attempt on schedule")
	}
	p.setState(Idle)
}

func (p *Poller) setState(s State) {
	p.state = s
	if p.onState != nil {
		p.onState(s)
	}
}

// Start registers the one-second tick with cron and starts it. Ticks are
// posted onto the event loop.
func (p *Poller) Start() error {
	if _, err := p.Cron.AddFunc("@every 1s", func() {
		p.dispatcher.Post(p.Tick)
	}); err != nil {
		return fmt.Errorf("register countdown tick: %w", err)
	}
	p.Cron.Start()
	p.log.WithField("cycle_seconds", p.cycle).Info("poller started")
	return nil
}

// Stop stops the cron ticker and waits for a running tick job to return.
func (p *Poller) Stop() {
	<-p.Cron.Stop().Done()
	p.log.Info("poller stopped")
}
