package session

import (
	"context"
	"sync"
)

const tickBufferSize = 4

// Tick is a timer update pushed to stream subscribers.
type Tick struct {
	AssessmentID  uint `json:"assessmentId"`
	TimeRemaining int  `json:"timeRemaining"`
	Expired       bool `json:"expired"`
}

type owner struct {
	userID       uint
	assessmentID uint
}

// Registry tracks the active countdown of every (user, assessment) and fans its
// ticks out to subscribers.
type Registry struct {
	mu          sync.RWMutex
	countdowns  map[owner]*Countdown
	subscribers map[owner]map[chan Tick]struct{}
	newTicker   NewTickerFunc
	base        context.Context
	cancel      context.CancelFunc
}

// NewRegistry constructs an empty registry. A nil newTicker uses WallTicker.
func NewRegistry(newTicker NewTickerFunc) *Registry {
	if newTicker == nil {
		newTicker = WallTicker
	}
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		countdowns:  make(map[owner]*Countdown),
		subscribers: make(map[owner]map[chan Tick]struct{}),
		newTicker:   newTicker,
		base:        base,
		cancel:      cancel,
	}
}

// Start replaces any running countdown of the user for the assessment. Ticks are
// broadcast to subscribers before the caller's OnTick runs.
func (r *Registry) Start(userID, assessmentID uint, cfg CountdownConfig) *Countdown {
	key := owner{userID: userID, assessmentID: assessmentID}
	if previous := r.detach(key, nil); previous != nil {
		previous.Stop()
	}

	onTick, onExpire := cfg.OnTick, cfg.OnExpire
	var countdown *Countdown

	cfg.NewTicker = r.newTicker
	cfg.OnTick = func(remaining int) {
		r.broadcast(key, Tick{AssessmentID: assessmentID, TimeRemaining: remaining})
		if onTick != nil {
			onTick(remaining)
		}
	}
	cfg.OnExpire = func() {
		r.detach(key, countdown)
		r.broadcast(key, Tick{AssessmentID: assessmentID, Expired: true})
		if onExpire != nil {
			onExpire()
		}
	}

	countdown = NewCountdown(cfg)
	r.mu.Lock()
	r.countdowns[key] = countdown
	r.mu.Unlock()

	countdown.Start(r.base)
	return countdown
}

// Get returns the active countdown, if any.
func (r *Registry) Get(userID, assessmentID uint) (*Countdown, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	countdown, ok := r.countdowns[owner{userID: userID, assessmentID: assessmentID}]
	return countdown, ok
}

// Stop cancels the active countdown and returns the seconds it had left.
func (r *Registry) Stop(userID, assessmentID uint) (int, bool) {
	countdown := r.detach(owner{userID: userID, assessmentID: assessmentID}, nil)
	if countdown == nil {
		return 0, false
	}
	return countdown.Stop(), true
}

// StopAll cancels every countdown. Used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	countdowns := make([]*Countdown, 0, len(r.countdowns))
	for key, countdown := range r.countdowns {
		countdowns = append(countdowns, countdown)
		delete(r.countdowns, key)
	}
	r.mu.Unlock()

	r.cancel()
	for _, countdown := range countdowns {
		countdown.Stop()
	}
}

// Active returns the number of running countdowns.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.countdowns)
}

// Subscribe streams ticks of the user's countdown for the assessment. The returned
// function unsubscribes and closes the channel.
func (r *Registry) Subscribe(userID, assessmentID uint) (<-chan Tick, func()) {
	key := owner{userID: userID, assessmentID: assessmentID}
	ch := make(chan Tick, tickBufferSize)

	r.mu.Lock()
	if _, ok := r.subscribers[key]; !ok {
		r.subscribers[key] = make(map[chan Tick]struct{})
	}
	r.subscribers[key][ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if subscribers, ok := r.subscribers[key]; ok {
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					delete(r.subscribers, key)
				}
			}
			close(ch)
		})
	}
}

// detach removes the countdown for key. When expected is non-nil it is only removed
// if it is still the registered one.
func (r *Registry) detach(key owner, expected *Countdown) *Countdown {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.countdowns[key]
	if !ok || (expected != nil && current != expected) {
		return nil
	}
	delete(r.countdowns, key)
	return current
}

func (r *Registry) broadcast(key owner, tick Tick) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subscribers[key] {
		select {
		case ch <- tick:
		default:
		}
	}
}
