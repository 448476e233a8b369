// Package clip provides access to the system clipboard as a contended,
// text-only resource. Build constraints select the implementation:
//
//	clip_windows.go: Win32 OpenClipboard/GetClipboardData via golang.org/x/sys/windows
//	clip_unix.go:    golang.design/x/clipboard, then github.com/atotto/clipboard,
//	                 then an in-memory clipboard when no display is available
//
// The clipboard is a single systemwide resource that another process may hold
// open. Callers Acquire it, do one Read or Clear+Set, and Release it. Acquire
// reports transient ownership contention as ErrAccessDenied; retrying is the
// caller's business (see package gateway).
package clip

import "errors"

// ErrAccessDenied is returned (wrapped) by Acquire when another owner holds
// the clipboard.
var ErrAccessDenied = errors.New("clipboard held by another owner")

// Encoding names the native text representation a Resource reads and writes.
type Encoding int

const (
	// UTF8 payloads are UTF-8 bytes with no terminator.
	UTF8 Encoding = iota
	// UTF16LE payloads are little-endian UTF-16 code units. Read payloads are
	// the raw native buffer and must contain a NUL terminator; Set payloads
	// carry no terminator.
	UTF16LE
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16le"
	default:
		return "unknown"
	}
}

// Resource is exclusive-access text storage. Read, Clear and Set are only
// valid between a successful Acquire and the matching Release.
type Resource interface {
	// Encoding reports the payload encoding used by Read and Set.
	Encoding() Encoding

	// Acquire takes exclusive access. Errors wrapping ErrAccessDenied are
	// transient; anything else is not.
	Acquire() error

	// Release gives up exclusive access.
	Release() error

	// Read returns the current text payload, or nil when the clipboard holds
	// no text.
	Read() ([]byte, error)

	// Clear empties the clipboard.
	Clear() error

	// Set stores a text payload, replacing whatever is there.
	Set(payload []byte) error
}

// Backend is a Resource bound to the running platform, with change
// notification.
type Backend interface {
	Resource

	// Name returns a human-readable name for the backend.
	Name() string

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. Bursts of changes may coalesce
	// into one signal; the receiver should read the clipboard when it fires.
	Watch() <-chan struct{}

	// Close stops change notification and releases backend resources.
	Close()
}

// notify performs a non-blocking send on a 1-buffered watch channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
