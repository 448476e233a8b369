package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.klb.dev/mclip/internal/history"
)

// CommandKind names a discrete UI action.
type CommandKind int

const (
	SetFilter CommandKind = iota + 1
	SelectNext
	SelectPrev
	Commit
	ToggleVisibility
)

func (k CommandKind) String() string {
	switch k {
	case SetFilter:
		return "set-filter"
	case SelectNext:
		return "select-next"
	case SelectPrev:
		return "select-prev"
	case Commit:
		return "commit"
	case ToggleVisibility:
		return "toggle-visibility"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// ErrUnknownCommand is returned for a command kind Dispatch does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommandKind accepts a kind's String form or its short alias
// (filter, next, prev, toggle).
func ParseCommandKind(s string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "set-filter", "filter":
		return SetFilter, nil
	case "select-next", "next":
		return SelectNext, nil
	case "select-prev", "prev":
		return SelectPrev, nil
	case "commit":
		return Commit, nil
	case "toggle-visibility", "toggle":
		return ToggleVisibility, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownCommand, s)
}

// Command is one UI action. Filter is only read by SetFilter.
type Command struct {
	Kind   CommandKind
	Filter string
}

// View is what a picker should display after a command.
type View struct {
	Filter  string
	Cursor  int // -1 when nothing matches
	Entries []string
	Visible bool
}

// viewState is the picker state kept between commands.
type viewState struct {
	filter  string
	cursor  int
	visible bool
}

// refresh re-runs the filter and selects the first match.
func (v *viewState) refresh(store *history.Store) {
	v.cursor = -1
	if len(store.Snapshot(v.filter)) > 0 {
		v.cursor = 0
	}
}

func (v *viewState) render(store *history.Store) View {
	entries := store.Snapshot(v.filter)
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text()
	}
	return View{Filter: v.filter, Cursor: v.cursor, Entries: texts, Visible: v.visible}
}

// Dispatch applies cmd to the picker state and returns the resulting view.
// Navigation stops at either end of the list. A Commit error is returned
// alongside the unchanged view.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (View, error) {
	var (
		view  View
		opErr error
	)
	err := s.call(ctx, func() { view, opErr = s.dispatch(cmd) })
	if err != nil {
		return View{}, err
	}
	return view, opErr
}

func (s *Session) dispatch(cmd Command) (View, error) {
	v := &s.view
	n := len(s.store.Snapshot(v.filter))
	var err error
	switch cmd.Kind {
	case SetFilter:
		v.filter = cmd.Filter
		v.refresh(s.store)
	case SelectNext:
		if n > 0 && v.cursor < n-1 {
			v.cursor++
		}
	case SelectPrev:
		if v.cursor > 0 {
			v.cursor--
		}
	case Commit:
		if v.cursor < 0 {
			err = history.ErrIndexOutOfRange
			break
		}
		_, err = s.commit(v.cursor, v.filter)
	case ToggleVisibility:
		v.visible = !v.visible
	default:
		err = fmt.Errorf("%w %s", ErrUnknownCommand, cmd.Kind)
	}
	return v.render(s.store), err
}
