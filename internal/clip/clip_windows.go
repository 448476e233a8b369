//go:build windows

package clip

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002

	windowsPollInterval = 50 * time.Millisecond
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procEmptyClipboard             = user32.NewProc("EmptyClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procSetClipboardData           = user32.NewProc("SetClipboardData")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procGetClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")

	procGlobalAlloc  = kernel32.NewProc("GlobalAlloc")
	procGlobalFree   = kernel32.NewProc("GlobalFree")
	procGlobalLock   = kernel32.NewProc("GlobalLock")
	procGlobalUnlock = kernel32.NewProc("GlobalUnlock")
	procGlobalSize   = kernel32.NewProc("GlobalSize")
)

type windowsBackend struct {
	watchCh chan struct{}
	done    chan struct{}
	lastSeq uintptr
}

// New returns the Win32 clipboard backend. Change notification polls
// GetClipboardSequenceNumber, which needs no window or message pump.
// pollInterval <= 0 selects the default.
func New(pollInterval time.Duration) Backend {
	if pollInterval <= 0 {
		pollInterval = windowsPollInterval
	}
	seq, _, _ := procGetClipboardSequenceNumber.Call()
	b := &windowsBackend{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
		lastSeq: seq,
	}
	go b.poll(pollInterval)
	return b
}

func (b *windowsBackend) Name() string       { return "Windows Clipboard" }
func (b *windowsBackend) Encoding() Encoding { return UTF16LE }

func (b *windowsBackend) poll(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			seq, _, _ := procGetClipboardSequenceNumber.Call()
			if seq != b.lastSeq {
				b.lastSeq = seq
				notify(b.watchCh)
			}
		}
	}
}

func (b *windowsBackend) Acquire() error {
	r1, _, err := procOpenClipboard.Call(0)
	if r1 != 0 {
		return nil
	}
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return fmt.Errorf("OpenClipboard: %w: %w", ErrAccessDenied, err)
	}
	return fmt.Errorf("OpenClipboard: %w", err)
}

func (b *windowsBackend) Release() error {
	if r1, _, err := procCloseClipboard.Call(); r1 == 0 {
		return fmt.Errorf("CloseClipboard: %w", err)
	}
	return nil
}

// Read returns the raw CF_UNICODETEXT global block, terminator included.
func (b *windowsBackend) Read() ([]byte, error) {
	if r1, _, _ := procIsClipboardFormatAvailable.Call(cfUnicodeText); r1 == 0 {
		return nil, nil
	}
	h, _, err := procGetClipboardData.Call(cfUnicodeText)
	if h == 0 {
		return nil, fmt.Errorf("GetClipboardData: %w", err)
	}
	ptr, _, err := procGlobalLock.Call(h)
	if ptr == 0 {
		return nil, fmt.Errorf("GlobalLock: %w", err)
	}
	defer procGlobalUnlock.Call(h)

	size, _, _ := procGlobalSize.Call(h)
	if size == 0 {
		return nil, nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	return append([]byte(nil), src...), nil
}

func (b *windowsBackend) Clear() error {
	if r1, _, err := procEmptyClipboard.Call(); r1 == 0 {
		return fmt.Errorf("EmptyClipboard: %w", err)
	}
	return nil
}

// Set copies payload plus a UTF-16 terminator into a movable global block and
// hands it to the clipboard. The system owns the block once SetClipboardData
// succeeds.
func (b *windowsBackend) Set(payload []byte) error {
	size := uintptr(len(payload) + 2)
	h, _, err := procGlobalAlloc.Call(gmemMoveable, size)
	if h == 0 {
		return fmt.Errorf("GlobalAlloc: %w", err)
	}
	ptr, _, err := procGlobalLock.Call(h)
	if ptr == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("GlobalLock: %w", err)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	n := copy(dst, payload)
	dst[n], dst[n+1] = 0, 0
	procGlobalUnlock.Call(h)

	if r1, _, err := procSetClipboardData.Call(cfUnicodeText, h); r1 == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("SetClipboardData: %w", err)
	}
	return nil
}

func (b *windowsBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *windowsBackend) Close()                { close(b.done) }
