package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/mclip/internal/ipc"
	"go.klb.dev/mclip/internal/rpc"
)

const defaultTimeout = 5 * time.Second

// dialDaemon returns a client connected to the daemon's local socket. The
// socket is owner-restricted, so the connection carries no TLS; the token,
// when set, travels as a bearer credential.
func dialDaemon(v *viper.Viper) (*rpc.Client, func(), error) {
	path := socketPath(v)
	if !ipc.IsRunning(path) {
		return nil, nil, fmt.Errorf("no mclip daemon listening on %s (start one with \"mclip daemon\")", path)
	}
	opts := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx, path)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if token := v.GetString("token"); token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&clientCreds{token: token}))
	}
	conn, err := grpc.NewClient("passthrough:///mclip", opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return rpc.NewClient(conn), func() { _ = conn.Close() }, nil
}

// requestContext bounds a unary call by --timeout.
func requestContext(v *viper.Viper) (context.Context, context.CancelFunc) {
	d := v.GetDuration("timeout")
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(context.Background(), d)
}

type clientCreds struct {
	token string
}

func (c *clientCreds) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.token}, nil
}

func (c *clientCreds) RequireTransportSecurity() bool { return false }

// oneLine renders an entry for a single terminal row.
func oneLine(text string, width int) string {
	text = strings.NewReplacer("\r\n", "⏎", "\n", "⏎", "\r", "⏎", "\t", " ").Replace(text)
	r := []rune(text)
	if width > 1 && len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return text
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Local().Format("15:04:05")
}
