//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

const pipeName = `\\.\pipe\mclip`

func socketPath() string { return pipeName }

// Named pipes vanish with their last handle; there is nothing stale to remove.
func removeStale(string) error { return nil }

func listenIPC(path string) (net.Listener, error) {
	// Default security descriptor grants the creating user full control.
	return winio.ListenPipe(path, nil)
}

func dialIPC(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}
