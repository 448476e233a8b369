package gateway

import (
	"sync"
	"time"
)

// DefaultFlashWindow is how long the contention signal stays raised.
const DefaultFlashWindow = time.Second

// ContentionState is the UI feedback state driven by exhausted retries.
type ContentionState int

const (
	Idle ContentionState = iota
	Flashing
)

func (s ContentionState) String() string {
	if s == Flashing {
		return "flashing"
	}
	return "idle"
}

// Contention is the signal raised when a read or write gives up on a held
// clipboard. It clears itself after the flash window whether or not the
// clipboard is touched again. It is safe for concurrent use.
type Contention struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	state  ContentionState
	last   time.Time
	timer  *time.Timer
	gen    uint64 // bumped by every raise; stale timers compare against it
	subs   map[int]chan ContentionState
	nextID int
}

func newContention(window time.Duration, now func() time.Time) *Contention {
	if window <= 0 {
		window = DefaultFlashWindow
	}
	return &Contention{
		window: window,
		now:    now,
		subs:   make(map[int]chan ContentionState),
	}
}

// State returns the current state.
func (c *Contention) State() ContentionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns when contention was last raised, or the zero time.
func (c *Contention) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Subscribe returns a channel receiving every state transition and a func
// that cancels the subscription. Slow receivers miss transitions rather than
// block the gateway; State is authoritative.
func (c *Contention) Subscribe() (<-chan ContentionState, func()) {
	ch := make(chan ContentionState, 4)
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// raise moves to Flashing and restarts the clear timer.
func (c *Contention) raise() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.now()
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, func() { c.clear(gen) })
	if c.state != Flashing {
		c.state = Flashing
		c.publishLocked(Flashing)
	}
}

func (c *Contention) clear(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || gen != c.gen {
		return
	}
	c.state = Idle
	c.timer = nil
	c.publishLocked(Idle)
}

// stop cancels a pending clear and drops an active flash to Idle; used when
// the gateway is discarded.
func (c *Contention) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.state == Flashing {
		c.state = Idle
		c.publishLocked(Idle)
	}
}

func (c *Contention) publishLocked(s ContentionState) {
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
