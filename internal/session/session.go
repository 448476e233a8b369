// Package session owns the history store and clipboard gateway and serialises
// every access to them through one dispatch goroutine. Clipboard change
// notifications, API requests and UI commands all run on that goroutine, so
// neither the store nor the gateway needs a lock.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/mclip/internal/clip"
	"go.klb.dev/mclip/internal/gateway"
	"go.klb.dev/mclip/internal/history"
)

// ErrClosed is returned by requests made after Run has returned.
var ErrClosed = errors.New("session closed")

// Watcher reports clipboard changes. clip.Backend satisfies it.
type Watcher interface {
	Watch() <-chan struct{}
}

// Status is a point-in-time summary of the session.
type Status struct {
	Backend        string
	Count          int
	Capacity       int
	Contention     gateway.ContentionState
	LastContention time.Time
}

// Session is the single dispatch point.
type Session struct {
	store   *history.Store
	gw      *gateway.Gateway
	watcher Watcher
	backend string

	reqCh chan func()
	done  chan struct{}

	// Owned by the dispatch goroutine.
	view viewState

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New wires a session. backendName is reported by Status.
func New(store *history.Store, gw *gateway.Gateway, w Watcher, backendName string) *Session {
	return &Session{
		store:   store,
		gw:      gw,
		watcher: w,
		backend: backendName,
		reqCh:   make(chan func()),
		done:    make(chan struct{}),
		view:    viewState{cursor: -1},
		subs:    make(map[int]chan Event),
	}
}

// Run processes clipboard changes and requests until ctx is cancelled.
// The store is cleared on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.store.Clear()

	contention, cancel := s.gw.Contention().Subscribe()
	defer cancel()

	slog.Info("session started", "backend", s.backend, "capacity", s.store.Capacity())
	for {
		select {
		case <-ctx.Done():
			slog.Info("session stopped", "entries", s.store.Count())
			return nil
		case <-s.watcher.Watch():
			s.onClipboardChanged()
		case st := <-contention:
			slog.Debug("contention signal", "state", st)
			s.publish(Event{Type: EventContention, Contention: st})
		case fn := <-s.reqCh:
			fn()
		}
	}
}

// onClipboardChanged captures the current clipboard text into the store.
func (s *Session) onClipboardChanged() {
	text, err := s.gw.ReadText()
	if err != nil {
		slog.Error("clipboard read failed", "err", err)
		return
	}
	outcome := s.store.Insert(text)
	logCapture(outcome, text, s.store.Count())
	if !outcome.Added() {
		return
	}
	s.view.refresh(s.store)
	s.publish(Event{Type: EventInserted, Text: text, Count: s.store.Count()})
}

// call runs fn on the dispatch goroutine and waits for it to finish.
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.reqCh <- wrapped:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the request always completes; the gateway's retry loop
	// is bounded.
	<-finished
	return nil
}

// Entries returns the newest-first entries matching filter.
func (s *Session) Entries(ctx context.Context, filter string) ([]history.Entry, error) {
	var out []history.Entry
	if err := s.call(ctx, func() { out = s.store.Snapshot(filter) }); err != nil {
		return nil, err
	}
	return out, nil
}

// Commit writes the entry at index of the filtered newest-first view back to
// the clipboard and returns it.
func (s *Session) Commit(ctx context.Context, index int, filter string) (history.Entry, error) {
	var (
		entry history.Entry
		opErr error
	)
	err := s.call(ctx, func() { entry, opErr = s.commit(index, filter) })
	if err != nil {
		return history.Entry{}, err
	}
	return entry, opErr
}

func (s *Session) commit(index int, filter string) (history.Entry, error) {
	e, err := s.store.GetFiltered(filter, index)
	if err != nil {
		return history.Entry{}, err
	}
	if err := s.gw.WriteText(e.Text()); err != nil {
		slog.Error("clipboard write failed", "index", index, "err", err)
		return history.Entry{}, err
	}
	logCommit(index, e.Text())
	return e, nil
}

// Copy writes arbitrary text to the clipboard. The change is captured into
// the history like any other clipboard change.
func (s *Session) Copy(ctx context.Context, text string) error {
	var opErr error
	if err := s.call(ctx, func() { opErr = s.gw.WriteText(text) }); err != nil {
		return err
	}
	if opErr != nil {
		slog.Error("clipboard write failed", "err", opErr)
	}
	return opErr
}

// Status reports store occupancy and the contention signal.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.call(ctx, func() {
		c := s.gw.Contention()
		st = Status{
			Backend:        s.backend,
			Count:          s.store.Count(),
			Capacity:       s.store.Capacity(),
			Contention:     c.State(),
			LastContention: c.Last(),
		}
	})
	return st, err
}

// Subscribe returns a channel of session events and a func that cancels the
// subscription. Events are dropped for receivers that fall behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("session subscriber too slow, dropping event", "type", ev.Type)
		}
	}
}

var _ Watcher = (clip.Backend)(nil)
