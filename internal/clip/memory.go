package clip

import (
	"fmt"
	"sync"
)

// Memory is an in-process clipboard. It backs headless hosts (no X11, Wayland
// or clipboard helper tools) so the daemon still records text pushed through
// "mclip copy", and it is the clipboard used by tests.
type Memory struct {
	mu      sync.Mutex
	held    bool
	data    []byte
	watchCh chan struct{}
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string       { return "in-memory (headless)" }
func (m *Memory) Encoding() Encoding { return UTF8 }

func (m *Memory) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return fmt.Errorf("memory clipboard: %w", ErrAccessDenied)
	}
	m.held = true
	return nil
}

func (m *Memory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return fmt.Errorf("memory clipboard: release without acquire")
	}
	m.held = false
	return nil
}

func (m *Memory) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Set(payload []byte) error {
	m.mu.Lock()
	m.data = append([]byte(nil), payload...)
	m.mu.Unlock()
	notify(m.watchCh)
	return nil
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}
