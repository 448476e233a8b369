package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.klb.dev/mclip/internal/clip"
	"go.klb.dev/mclip/internal/gateway"
	"go.klb.dev/mclip/internal/history"
)

// busyClipboard is an in-memory clipboard that can be made to refuse Acquire
// as if another process held it.
type busyClipboard struct {
	*clip.Memory
	busy bool
}

func (b *busyClipboard) Acquire() error {
	if b.busy {
		return fmt.Errorf("test: %w", clip.ErrAccessDenied)
	}
	return b.Memory.Acquire()
}

type harness struct {
	s      *Session
	mem    *busyClipboard
	events <-chan Event
}

func start(t *testing.T, capacity int) *harness {
	t.Helper()
	mem := &busyClipboard{Memory: clip.NewMemory()}
	gw := gateway.New(mem, gateway.Config{FlashWindow: 100 * time.Millisecond},
		gateway.WithSleep(func(time.Duration) {}))
	s := New(history.New(capacity), gw, mem, mem.Name())
	events, cancelSub := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run: %v", err)
		}
		cancelSub()
		gw.Close()
	})
	return &harness{s: s, mem: mem, events: events}
}

// push simulates another application copying text and waits for capture.
func (h *harness) push(t *testing.T, text string) {
	t.Helper()
	if err := h.mem.Memory.Set([]byte(text)); err != nil {
		t.Fatal(err)
	}
	for {
		ev := h.next(t)
		if ev.Type == EventInserted && ev.Text == text {
			return
		}
	}
}

func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func texts(entries []history.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text()
	}
	return out
}

func TestCaptureAndList(t *testing.T) {
	h := start(t, 3)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c", "d"} {
		h.push(t, s)
	}
	got, err := h.s.Entries(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"d", "c", "b"}, texts(got)); diff != "" {
		t.Errorf("Entries (-want +got):\n%s", diff)
	}

	st, err := h.s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 3 || st.Capacity != 3 || st.Contention != gateway.Idle {
		t.Errorf("Status = %+v", st)
	}
}

func TestCommitFilteredIndex(t *testing.T) {
	h := start(t, 10)
	ctx := context.Background()
	for _, s := range []string{"Hello", "world", "HELLO again"} {
		h.push(t, s)
	}

	got, err := h.s.Entries(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"HELLO again", "Hello"}, texts(got)); diff != "" {
		t.Errorf("filtered Entries (-want +got):\n%s", diff)
	}

	e, err := h.s.Commit(ctx, 1, "hello")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if e.Text() != "Hello" {
		t.Errorf("Commit returned %q, want Hello", e.Text())
	}
	if b, _ := h.mem.Read(); string(b) != "Hello" {
		t.Errorf("clipboard = %q, want Hello", b)
	}

	if _, err := h.s.Commit(ctx, 2, "hello"); !errors.Is(err, history.ErrIndexOutOfRange) {
		t.Errorf("Commit out of range err = %v", err)
	}
}

func TestCopyCapturesIntoHistory(t *testing.T) {
	h := start(t, 10)
	ctx := context.Background()
	if err := h.s.Copy(ctx, "from cli"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	ev := h.next(t)
	if ev.Type != EventInserted || ev.Text != "from cli" || ev.Count != 1 {
		t.Errorf("event = %+v", ev)
	}
	if err := h.s.Copy(ctx, ""); !errors.Is(err, gateway.ErrEmptyText) {
		t.Errorf("Copy(\"\") err = %v", err)
	}
}

func TestContentionEvents(t *testing.T) {
	h := start(t, 10)
	ctx := context.Background()
	h.mem.busy = true // only read by the dispatch goroutine inside the call below

	if err := h.s.Copy(ctx, "x"); !errors.Is(err, gateway.ErrContentionExhausted) {
		t.Fatalf("Copy err = %v, want contention exhausted", err)
	}
	for _, want := range []gateway.ContentionState{gateway.Flashing, gateway.Idle} {
		ev := h.next(t)
		if ev.Type != EventContention || ev.Contention != want {
			t.Fatalf("event = %+v, want contention %s", ev, want)
		}
	}
}

func TestDispatchNavigation(t *testing.T) {
	h := start(t, 10)
	ctx := context.Background()
	for _, s := range []string{"alpha", "beta", "gamma"} {
		h.push(t, s)
	}

	steps := []struct {
		cmd  Command
		want View
	}{
		{Command{Kind: SetFilter}, View{Cursor: 0, Entries: []string{"gamma", "beta", "alpha"}}},
		{Command{Kind: SelectPrev}, View{Cursor: 0, Entries: []string{"gamma", "beta", "alpha"}}},
		{Command{Kind: SelectNext}, View{Cursor: 1, Entries: []string{"gamma", "beta", "alpha"}}},
		{Command{Kind: SelectNext}, View{Cursor: 2, Entries: []string{"gamma", "beta", "alpha"}}},
		{Command{Kind: SelectNext}, View{Cursor: 2, Entries: []string{"gamma", "beta", "alpha"}}},
		{Command{Kind: ToggleVisibility}, View{Cursor: 2, Entries: []string{"gamma", "beta", "alpha"}, Visible: true}},
		{Command{Kind: SetFilter, Filter: "A"}, View{Filter: "A", Cursor: 0, Entries: []string{"gamma", "beta", "alpha"}, Visible: true}},
		{Command{Kind: SetFilter, Filter: "ph"}, View{Filter: "ph", Cursor: 0, Entries: []string{"alpha"}, Visible: true}},
		{Command{Kind: SetFilter, Filter: "zzz"}, View{Filter: "zzz", Cursor: -1, Entries: []string{}, Visible: true}},
		{Command{Kind: SelectNext}, View{Filter: "zzz", Cursor: -1, Entries: []string{}, Visible: true}},
	}
	for i, st := range steps {
		got, err := h.s.Dispatch(ctx, st.cmd)
		if err != nil {
			t.Fatalf("step %d %s: %v", i, st.cmd.Kind, err)
		}
		if diff := cmp.Diff(st.want, got); diff != "" {
			t.Fatalf("step %d %s (-want +got):\n%s", i, st.cmd.Kind, diff)
		}
	}
}

func TestDispatchCommit(t *testing.T) {
	h := start(t, 10)
	ctx := context.Background()
	for _, s := range []string{"one", "two"} {
		h.push(t, s)
	}
	if _, err := h.s.Dispatch(ctx, Command{Kind: SetFilter}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.Dispatch(ctx, Command{Kind: SelectNext}); err != nil {
		t.Fatal(err)
	}
	v, err := h.s.Dispatch(ctx, Command{Kind: Commit})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if b, _ := h.mem.Read(); string(b) != "one" {
		t.Errorf("clipboard = %q, want one", b)
	}
	// Committing an existing entry does not reorder history.
	if diff := cmp.Diff([]string{"two", "one"}, v.Entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}

	if _, err := h.s.Dispatch(ctx, Command{Kind: SetFilter, Filter: "none"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.Dispatch(ctx, Command{Kind: Commit}); !errors.Is(err, history.ErrIndexOutOfRange) {
		t.Errorf("Commit with no selection err = %v", err)
	}
}

func TestRequestsAfterRunReturn(t *testing.T) {
	mem := clip.NewMemory()
	gw := gateway.New(mem, gateway.DefaultConfig())
	defer gw.Close()
	s := New(history.New(4), gw, mem, mem.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Entries(context.Background(), ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Entries after Run err = %v, want ErrClosed", err)
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	long := make([]rune, previewRunes+5)
	for i := range long {
		long[i] = 'é'
	}
	got := []rune(preview(string(long)))
	if len(got) != previewRunes+1 || got[previewRunes] != '…' {
		t.Errorf("preview length = %d", len(got))
	}
	if preview("short") != "short" {
		t.Error("short text altered")
	}
}

func TestParseCommandKind(t *testing.T) {
	for _, k := range []CommandKind{SetFilter, SelectNext, SelectPrev, Commit, ToggleVisibility} {
		got, err := ParseCommandKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseCommandKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	aliases := map[string]CommandKind{"filter": SetFilter, "Next": SelectNext, " prev ": SelectPrev, "toggle": ToggleVisibility}
	for in, want := range aliases {
		if got, err := ParseCommandKind(in); err != nil || got != want {
			t.Errorf("ParseCommandKind(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseCommandKind("jump"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("ParseCommandKind(jump) err = %v, want ErrUnknownCommand", err)
	}
}
