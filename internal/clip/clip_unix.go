//go:build !windows

package clip

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	atotto "github.com/atotto/clipboard"
	"golang.design/x/clipboard"
)

const defaultPollInterval = 250 * time.Millisecond

// New returns the best available clipboard backend for this host:
// golang.design/x/clipboard when it can reach the display, else the
// xclip/xsel/pbcopy helpers through github.com/atotto/clipboard, else an
// in-memory clipboard. clipboard.Init is called here rather than in init() so
// that CLI sub-commands that never construct a Backend don't log spurious
// warnings on headless systems. pollInterval <= 0 selects the default.
func New(pollInterval time.Duration) Backend {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	err := clipboard.Init()
	if err == nil {
		return startPoller(&nativeBackend{}, pollInterval)
	}
	if !atotto.Unsupported {
		slog.Warn("native clipboard unavailable, using helper tools", "err", err)
		return startPoller(&helperBackend{}, pollInterval)
	}
	slog.Warn("clipboard unavailable, running headless", "err", err)
	return NewMemory()
}

// textSource is the platform-specific half of a polling backend.
type textSource interface {
	Resource
	Name() string
	peek() []byte
}

// poller adds change notification to a textSource by polling for text
// changes. Neither golang.design/x/clipboard nor the helper tools expose an
// ownership lock, so Acquire only fails if this process already holds it.
type poller struct {
	textSource
	watchCh chan struct{}
	done    chan struct{}
	last    []byte
}

func startPoller(src textSource, interval time.Duration) *poller {
	p := &poller{
		textSource: src,
		watchCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		last:       src.peek(),
	}
	go p.poll(interval)
	return p
}

func (p *poller) poll(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			text := p.peek()
			if !bytes.Equal(text, p.last) {
				p.last = text
				notify(p.watchCh)
			}
		}
	}
}

func (p *poller) Watch() <-chan struct{} { return p.watchCh }
func (p *poller) Close()                 { close(p.done) }

// exclusive implements Acquire/Release for sources without an OS lock.
type exclusive struct {
	mu   sync.Mutex
	held bool
}

func (x *exclusive) Acquire() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.held {
		return fmt.Errorf("clipboard: %w", ErrAccessDenied)
	}
	x.held = true
	return nil
}

func (x *exclusive) Release() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.held {
		return fmt.Errorf("clipboard: release without acquire")
	}
	x.held = false
	return nil
}

// nativeBackend talks to the display server through golang.design/x/clipboard.
type nativeBackend struct {
	exclusive
}

func (b *nativeBackend) Name() string       { return "native clipboard (poll)" }
func (b *nativeBackend) Encoding() Encoding { return UTF8 }
func (b *nativeBackend) peek() []byte       { return clipboard.Read(clipboard.FmtText) }

func (b *nativeBackend) Read() ([]byte, error) {
	return clipboard.Read(clipboard.FmtText), nil
}

// Clear is a no-op: Write replaces the selection as a whole and the library
// has no separate empty operation.
func (b *nativeBackend) Clear() error { return nil }

func (b *nativeBackend) Set(payload []byte) error {
	clipboard.Write(clipboard.FmtText, payload)
	return nil
}

// helperBackend shells out to xclip, xsel, wl-copy or pbcopy.
type helperBackend struct {
	exclusive
}

func (b *helperBackend) Name() string       { return "clipboard helper tools (poll)" }
func (b *helperBackend) Encoding() Encoding { return UTF8 }

func (b *helperBackend) peek() []byte {
	text, err := atotto.ReadAll()
	if err != nil {
		return nil
	}
	return []byte(text)
}

func (b *helperBackend) Read() ([]byte, error) {
	text, err := atotto.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("clipboard helper read: %w", err)
	}
	if text == "" {
		return nil, nil
	}
	return []byte(text), nil
}

func (b *helperBackend) Clear() error {
	if err := atotto.WriteAll(""); err != nil {
		return fmt.Errorf("clipboard helper clear: %w", err)
	}
	return nil
}

func (b *helperBackend) Set(payload []byte) error {
	if err := atotto.WriteAll(string(payload)); err != nil {
		return fmt.Errorf("clipboard helper write: %w", err)
	}
	return nil
}
