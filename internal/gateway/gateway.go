// Package gateway reads and writes clipboard text through a contended
// clip.Resource. Each call runs a small state machine:
//
//	Idle -> Attempting -> Succeeded
//	                   -> Retrying -> Attempting ...
//	                   -> Failed
//
// Only ownership contention (clip.ErrAccessDenied) is retried, after a fixed
// delay and for a bounded number of attempts. Running out of attempts raises
// the Contention signal, which clears itself after a short window.
package gateway

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"go.klb.dev/mclip/internal/clip"
)

const (
	DefaultMaxRetries   = 5
	DefaultRetryDelay   = 50 * time.Millisecond
	DefaultMaxTextBytes = 64 * 1024
)

// Config holds the gateway tunables. Zero fields take their defaults.
type Config struct {
	MaxRetries   int           // total acquire attempts per call
	RetryDelay   time.Duration // pause between attempts
	FlashWindow  time.Duration // how long the contention signal stays raised
	MaxTextBytes int           // size guard for text in either direction
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   DefaultMaxRetries,
		RetryDelay:   DefaultRetryDelay,
		FlashWindow:  DefaultFlashWindow,
		MaxTextBytes: DefaultMaxTextBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.FlashWindow <= 0 {
		c.FlashWindow = d.FlashWindow
	}
	if c.MaxTextBytes <= 0 {
		c.MaxTextBytes = d.MaxTextBytes
	}
	return c
}

// State is a step of a single read or write.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithSleep replaces time.Sleep between attempts.
func WithSleep(sleep func(time.Duration)) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithClock replaces time.Now for contention timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway serialises text in and out of a clip.Resource. A Gateway is not
// safe for concurrent use; it belongs to one dispatch goroutine.
type Gateway struct {
	res        clip.Resource
	cfg        Config
	sleep      func(time.Duration)
	now        func() time.Time
	contention *Contention
}

// New returns a Gateway over res.
func New(res clip.Resource, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		res:   res,
		cfg:   cfg.withDefaults(),
		sleep: time.Sleep,
		now:   time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.contention = newContention(g.cfg.FlashWindow, g.now)
	return g
}

// Config returns the effective tunables.
func (g *Gateway) Config() Config { return g.cfg }

// Contention returns the contention signal shared by every call.
func (g *Gateway) Contention() *Contention { return g.contention }

// Close stops the contention timer.
func (g *Gateway) Close() { g.contention.stop() }

// ReadText returns the clipboard text. An empty clipboard, or one holding no
// text, reads as "" with a nil error.
func (g *Gateway) ReadText() (string, error) {
	const op = "read"
	var raw []byte
	err := g.do(op, func() error {
		var err error
		raw, err = g.res.Read()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	text, err := decode(g.res.Encoding(), raw, g.cfg.MaxTextBytes)
	if err != nil {
		g.trace(op, StateFailed, 0)
		return "", &Error{Op: op, Kind: KindEncoding, Err: err}
	}
	return text, nil
}

// WriteText replaces the clipboard contents with text. The clipboard is
// emptied before the new text is stored, so a failure between the two steps
// leaves it empty.
func (g *Gateway) WriteText(text string) error {
	const op = "write"
	if text == "" {
		return &Error{Op: op, Kind: KindEmptyText}
	}
	payload, err := encode(g.res.Encoding(), text, g.cfg.MaxTextBytes)
	if err != nil {
		g.trace(op, StateFailed, 0)
		return &Error{Op: op, Kind: KindEncoding, Err: err}
	}
	return g.do(op, func() error {
		if err := g.res.Clear(); err != nil {
			return err
		}
		return g.res.Set(payload)
	})
}

// do acquires the resource, runs fn while holding it, and releases it.
// Acquire contention is retried; every other failure is terminal.
func (g *Gateway) do(op string, fn func() error) error {
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(g.cfg.RetryDelay),
		uint64(g.cfg.MaxRetries-1),
	)
	policy.Reset()

	g.trace(op, StateIdle, 0)
	for attempt := 1; ; attempt++ {
		g.trace(op, StateAttempting, attempt)
		err := g.res.Acquire()
		if err == nil {
			return g.holding(op, attempt, fn)
		}
		if !errors.Is(err, clip.ErrAccessDenied) {
			g.trace(op, StateFailed, attempt)
			return unexpected(op, attempt, err)
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			g.trace(op, StateFailed, attempt)
			g.contention.raise()
			slog.Warn("clipboard busy, giving up", "op", op, "attempts", attempt)
			return &Error{Op: op, Kind: KindContentionExhausted, Attempts: attempt, Err: err}
		}
		g.trace(op, StateRetrying, attempt)
		g.sleep(delay)
	}
}

func (g *Gateway) holding(op string, attempt int, fn func() error) error {
	opErr := fn()
	if err := g.res.Release(); err != nil {
		slog.Warn("clipboard release failed", "op", op, "err", err)
	}
	if opErr != nil {
		g.trace(op, StateFailed, attempt)
		return unexpected(op, attempt, opErr)
	}
	g.trace(op, StateSucceeded, attempt)
	return nil
}

func (g *Gateway) trace(op string, s State, attempt int) {
	slog.Debug("clipboard", "op", op, "state", s, "attempt", attempt)
}
