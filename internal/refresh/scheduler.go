// Package refresh drives periodic re-fetching of issues that are in
// progress, without blocking user interaction.
package refresh

import (
	"time"

	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/loop"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 5 * time.Second

// Source supplies what the scheduler refreshes. All methods are called
// on the control thread.
type Source interface {
	// Targets returns the RefreshTarget ids currently displayed on the
	// active screen.
	Targets() []int64
	// Pending reports whether id is awaiting confirmation of a mutation.
	Pending(id int64) bool
	// Refresh starts a detail refresh of id and calls done once it has
	// settled, successfully or not.
	Refresh(id int64, done func())
}

// Targets returns the ids of started issues, the ones eligible for
// periodic polling.
func Targets(issues []gateway.Issue) []int64 {
	var ids []int64
	for _, is := range issues {
		if is.Status == gateway.StatusStarted {
			ids = append(ids, is.ID)
		}
	}
	return ids
}

// Scheduler owns a single ticker. Each tick is posted to the control
// thread, where every target without an outstanding refresh is
// refreshed. Ticks for an id whose previous refresh has not settled are
// dropped, so a slow network never builds a queue.
//
// Every method must be called on the control thread. Only the ticker
// goroutine runs elsewhere, and it touches nothing but its channels.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	post     loop.PostFunc
	source   Source

	outstanding map[int64]bool
	suspended   bool
	running     bool
	issued      int
	dropped     int
	ticker      *clock.Ticker
	stopChan    chan struct{}
}

// New creates a scheduler. A non-positive interval selects
// DefaultInterval.
func New(clk clock.Clock, interval time.Duration, post loop.PostFunc, source Source) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		clock:       clk,
		interval:    interval,
		post:        post,
		source:      source,
		outstanding: make(map[int64]bool),
	}
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start launches the ticker goroutine and returns immediately.
func (s *Scheduler) Start() {
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.ticker = s.clock.NewTicker(s.interval)
	if s.suspended {
		s.ticker.Stop()
	}

	logger.Info("refresh.scheduler: starting interval=%s", s.interval)
	go s.loop(s.ticker, s.stopChan)
}

// Stop halts the ticker. It does not wait for the goroutine, which may
// be blocked posting a tick to this very thread; ticks that still arrive
// are ignored. Refreshes already started are left to settle.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stopChan)
	logger.Info("refresh.scheduler: stopped")
}

func (s *Scheduler) loop(ticker *clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			s.post(s.tick)
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	if !s.running {
		return
	}
	s.Tick()
}

// Suspend pauses the timer, e.g. while a modal is on top. Control
// thread only.
func (s *Scheduler) Suspend() {
	if s.suspended {
		return
	}
	s.suspended = true
	if s.running {
		s.ticker.Stop()
	}
	logger.Debug("refresh.scheduler: suspended")
}

// Resume restarts the timer with a full interval. Control thread only.
func (s *Scheduler) Resume() {
	if !s.suspended {
		return
	}
	s.suspended = false
	if s.running {
		s.ticker.Reset(s.interval)
	}
	logger.Debug("refresh.scheduler: resumed")
}

// Suspended reports whether the timer is paused.
func (s *Scheduler) Suspended() bool {
	return s.suspended
}

// Tick refreshes every eligible target once. The ticker goroutine posts
// it to the control thread; it can also be called there directly.
func (s *Scheduler) Tick() {
	if s.suspended {
		return
	}
	for _, id := range s.source.Targets() {
		if s.outstanding[id] || s.source.Pending(id) {
			s.dropped++
			logger.Debug("refresh.scheduler: tick dropped id=%d outstanding=%t", id, s.outstanding[id])
			continue
		}
		s.outstanding[id] = true
		s.issued++
		id := id
		s.source.Refresh(id, func() { delete(s.outstanding, id) })
	}
}

// Outstanding reports whether a refresh for id has not settled yet.
func (s *Scheduler) Outstanding(id int64) bool {
	return s.outstanding[id]
}

// Stats returns how many refreshes ticks have issued and dropped.
func (s *Scheduler) Stats() (issued, dropped int) {
	return s.issued, s.dropped
}
