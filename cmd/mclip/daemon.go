package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/mclip/internal/clip"
	"go.klb.dev/mclip/internal/gateway"
	"go.klb.dev/mclip/internal/history"
	"go.klb.dev/mclip/internal/ipc"
	"go.klb.dev/mclip/internal/rpc"
	"go.klb.dev/mclip/internal/session"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Record clipboard history and serve it on the local socket",
		Long: `Starts the mclip daemon. It watches the system clipboard, keeps the most
recent distinct text snippets in memory, and serves gRPC and HTTP/JSON on the
local socket for the other sub-commands.

History lives in memory only and is discarded when the daemon exits.

Precedence (lowest → highest): defaults → config file → MCLIP_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	f := cmd.Flags()
	f.Int("capacity", history.DefaultCapacity, "number of entries kept")
	f.Int("max-entry-bytes", history.DefaultMaxEntryBytes, "largest text accepted into history")
	f.Int("max-retries", gateway.DefaultMaxRetries, "clipboard open attempts per read or write")
	f.Duration("retry-delay", gateway.DefaultRetryDelay, "pause between clipboard open attempts")
	f.Duration("contention-flash", gateway.DefaultFlashWindow, "how long the busy signal stays raised")
	f.Duration("poll-interval", 250*time.Millisecond, "clipboard change polling interval")
	f.String("socket", "", "socket path (default "+ipc.SocketPath()+")")
	f.String("token", "", "shared secret required from clients (empty = no auth)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

// daemonLimits validates the sizing flags. max-entry-bytes bounds both the
// history and the clipboard gateway and must be positive.
func daemonLimits(v *viper.Viper) (capacity, maxEntryBytes int, err error) {
	capacity = v.GetInt("capacity")
	if capacity <= 0 {
		return 0, 0, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	maxEntryBytes = v.GetInt("max-entry-bytes")
	if maxEntryBytes <= 0 {
		return 0, 0, fmt.Errorf("max-entry-bytes must be positive, got %d", maxEntryBytes)
	}
	return capacity, maxEntryBytes, nil
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	capacity, maxEntryBytes, err := daemonLimits(v)
	if err != nil {
		return err
	}
	path := socketPath(v)
	token := v.GetString("token")

	backend := clip.New(v.GetDuration("poll-interval"))
	defer backend.Close()

	store := history.New(capacity, history.WithMaxEntryBytes(maxEntryBytes))
	gw := gateway.New(backend, gateway.Config{
		MaxRetries:   v.GetInt("max-retries"),
		RetryDelay:   v.GetDuration("retry-delay"),
		FlashWindow:  v.GetDuration("contention-flash"),
		MaxTextBytes: maxEntryBytes,
	})
	defer gw.Close()
	sess := session.New(store, gw, backend, backend.Name())

	svc := rpc.New(sess, token)
	httpMux, err := rpc.NewHTTPMux(svc)
	if err != nil {
		return err
	}

	ln, err := ipc.Listen(path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}

	cfg := gw.Config()
	slog.Info("mclip daemon starting",
		"version", Version,
		"socket", path,
		"backend", backend.Name(),
		"capacity", capacity,
		"max_retries", cfg.MaxRetries,
		"retry_delay", cfg.RetryDelay,
		"auth", token != "",
	)

	// gRPC and the HTTP/JSON mirror share the socket.
	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())

	grpcSrv := grpc.NewServer()
	rpc.Register(grpcSrv, svc)
	httpSrv := &http.Server{Handler: httpMux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Servers report an error when their listener closes at shutdown; only
	// failures before then matter.
	serve := func(name string, fn func() error) {
		g.Go(func() error {
			err := fn()
			if ctx.Err() != nil || err == nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}
	serve("session", func() error { return sess.Run(ctx) })
	serve("grpc", func() error { return grpcSrv.Serve(grpcL) })
	serve("http", func() error { return httpSrv.Serve(httpL) })
	serve("mux", m.Serve)

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("mclip daemon shutting down")
		grpcSrv.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		m.Close()
		return nil
	})

	return g.Wait()
}
