// Package ipc locates the local socket the mclip daemon serves its API on.
//
// The channel is gRPC (plus an HTTP/JSON mirror) over a Unix domain socket,
// or a named pipe on Windows. CLI sub-commands dial it; the daemon listens.
package ipc

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"time"
)

// EnvSocket overrides the socket path.
const EnvSocket = "MCLIP_SOCKET"

// SocketPath returns the platform-appropriate path for the IPC socket.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/mclip.sock, else $TMPDIR/mclip.sock
//   - Windows:       \\.\pipe\mclip
//
// $MCLIP_SOCKET overrides both.
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a daemon appears to be listening on path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := dialIPC(ctx, path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// ErrAlreadyRunning is returned by Listen when a live daemon owns path.
var ErrAlreadyRunning = errors.New("mclip daemon already running")

// Listen creates a listener on path, removing a stale socket left by a
// crashed run. It refuses to replace a socket a live daemon is serving.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, ErrAlreadyRunning
	}
	if err := removeStale(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return listenIPC(path)
}

// Dial connects to the daemon on path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	return dialIPC(ctx, path)
}
