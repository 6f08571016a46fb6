package autoclose

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultDelay is how long a room may go without a bid before it is closed.
const DefaultDelay = 30 * time.Second

// Expiry identifies one fired idle period of a room.
type Expiry struct {
	Room       string
	Generation uint64
	At         time.Time
}

// Closer requests that an idle room be ended. Implementations must be idempotent.
// A Closer that hands the expiry to another goroutine should Claim it there before closing.
type Closer interface {
	CloseIdle(ctx context.Context, exp Expiry) error
}

type armedTimer struct {
	timer clockwork.Timer
	gen   uint64
	stop  chan struct{}
	fired bool
}

// Policy keeps at most one one-shot idle timer per room.
type Policy struct {
	clock  clockwork.Clock
	delay  time.Duration
	closer Closer

	mu     sync.Mutex
	timers map[string]*armedTimer
	gen    uint64
}

// NewPolicy creates an idle policy. A non-positive delay falls back to DefaultDelay.
func NewPolicy(clock clockwork.Clock, delay time.Duration, closer Closer) *Policy {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Policy{
		clock:  clock,
		delay:  delay,
		closer: closer,
		timers: make(map[string]*armedTimer),
	}
}

// Delay returns the idle delay in effect.
func (p *Policy) Delay() time.Duration {
	return p.delay
}

// Arm starts the idle timer for room, replacing any timer already running.
func (p *Policy) Arm(ctx context.Context, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.timers[room]; ok {
		stopArmed(existing)
		log.Debug().Str("room", room).Msg("replaced idle timer")
	}

	p.gen++
	armed := &armedTimer{
		timer: p.clock.NewTimer(p.delay),
		gen:   p.gen,
		stop:  make(chan struct{}),
	}
	p.timers[room] = armed

	go p.wait(ctx, room, armed)

	log.Debug().
		Str("room", room).
		Dur("delay", p.delay).
		Uint64("generation", armed.gen).
		Msg("armed idle timer")
}

// Reset restarts the idle countdown. It is Arm under the name callers use after a bid.
func (p *Policy) Reset(ctx context.Context, room string) {
	p.Arm(ctx, room)
}

// Disarm cancels the idle timer for room, if any.
func (p *Policy) Disarm(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.timers[room]; ok {
		stopArmed(existing)
		delete(p.timers, room)
		log.Debug().Str("room", room).Msg("disarmed idle timer")
	}
}

// Armed reports whether a timer is running for room.
func (p *Policy) Armed(room string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.timers[room]
	return ok && !t.fired
}

// Claim consumes a fired expiry. It reports false when the room was re-armed
// or disarmed after the timer fired, or when the expiry was already claimed.
func (p *Policy) Claim(exp Expiry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.timers[exp.Room]
	if !ok || !cur.fired || cur.gen != exp.Generation {
		return false
	}
	delete(p.timers, exp.Room)
	return true
}

// Stop cancels every running timer.
func (p *Policy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for room, t := range p.timers {
		stopArmed(t)
		delete(p.timers, room)
	}
}

func (p *Policy) wait(ctx context.Context, room string, armed *armedTimer) {
	select {
	case <-armed.timer.Chan():
	case <-armed.stop:
		return
	case <-ctx.Done():
		p.mu.Lock()
		if cur, ok := p.timers[room]; ok && cur.gen == armed.gen {
			stopArmed(cur)
			delete(p.timers, room)
		}
		p.mu.Unlock()
		return
	}

	// A Reset may have raced the fire; only the current generation may close.
	// The entry stays until claimed so a later Arm or Disarm still supersedes it.
	p.mu.Lock()
	cur, ok := p.timers[room]
	if !ok || cur.gen != armed.gen {
		p.mu.Unlock()
		log.Debug().Str("room", room).Uint64("generation", armed.gen).Msg("stale idle timer fired - ignoring")
		return
	}
	cur.fired = true
	p.mu.Unlock()

	exp := Expiry{Room: room, Generation: armed.gen, At: p.clock.Now()}
	log.Info().
		Str("room", room).
		Dur("idle", p.delay).
		Uint64("generation", exp.Generation).
		Msg("no bids within idle delay - requesting close")

	if p.closer == nil {
		return
	}
	if err := p.closer.CloseIdle(ctx, exp); err != nil {
		log.Error().Err(err).Str("room", room).Msg("idle close request failed")
	}
}

// stopArmed stops the timer, drains its channel and releases the waiting goroutine.
func stopArmed(t *armedTimer) {
	if !t.timer.Stop() {
		select {
		case <-t.timer.Chan():
		default:
		}
	}
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
