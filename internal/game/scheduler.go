package game

import (
	"sync"
	"time"
)

// Scheduler drives the two periodic activities of an active round: the
// detection poll and the one-second countdown. Each loop has at most one
// live instance; starting an already-running loop replaces it, stopping a
// stopped one is a no-op. The loops are independent goroutines whose
// relative interleaving is unspecified.
type Scheduler struct {
	pollPeriod time.Duration
	tickPeriod time.Duration

	mu         sync.Mutex
	detectStop chan struct{}
	countStop  chan struct{}
}

// NewScheduler builds a scheduler polling detection every pollPeriod and
// ticking the countdown every tickPeriod (one second in production; tests
// shrink it).
func NewScheduler(pollPeriod, tickPeriod time.Duration) *Scheduler {
	if pollPeriod <= 0 {
		pollPeriod = time.Second
	}
	if tickPeriod <= 0 {
		tickPeriod = time.Second
	}
	return &Scheduler{pollPeriod: pollPeriod, tickPeriod: tickPeriod}
}

// StartDetection runs fn once per poll period until stopped. A prior
// detection loop is stopped first so repeated starts never stack timers.
func (s *Scheduler) StartDetection(fn func()) {
	s.mu.Lock()
	if s.detectStop != nil {
		close(s.detectStop)
	}
	stop := make(chan struct{})
	s.detectStop = stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.pollPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

func (s *Scheduler) StopDetection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detectStop != nil {
		close(s.detectStop)
		s.detectStop = nil
	}
}

// StartCountdown ticks once per tick period. onTick must perform the
// decrement and return the remaining seconds; when it returns zero the loop
// stops itself and fires onDone exactly once.
func (s *Scheduler) StartCountdown(onTick func() int, onDone func()) {
	s.mu.Lock()
	if s.countStop != nil {
		close(s.countStop)
	}
	stop := make(chan struct{})
	s.countStop = stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.tickPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if onTick() > 0 {
					continue
				}
				s.mu.Lock()
				if s.countStop == stop {
					s.countStop = nil
				}
				s.mu.Unlock()
				onDone()
				return
			}
		}
	}()
}

func (s *Scheduler) StopCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countStop != nil {
		close(s.countStop)
		s.countStop = nil
	}
}

// StopAll cancels both loops. Safe to call at any time, from any state.
func (s *Scheduler) StopAll() {
	s.StopDetection()
	s.StopCountdown()
}
