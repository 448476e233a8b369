package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/mclip/internal/clip"
	"go.klb.dev/mclip/internal/gateway"
	"go.klb.dev/mclip/internal/history"
	"go.klb.dev/mclip/internal/session"
)

type fixture struct {
	sess   *session.Session
	mem    *clip.Memory
	svc    *Service
	client *Client
	events <-chan session.Event
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	mem := clip.NewMemory()
	gw := gateway.New(mem, gateway.DefaultConfig(), gateway.WithSleep(func(time.Duration) {}))
	sess := session.New(history.New(8), gw, mem, mem.Name())
	events, unsub := sess.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = sess.Run(ctx)
	}()

	svc := New(sess, token)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		cancel()
		<-runDone
		unsub()
		gw.Close()
	})
	return &fixture{sess: sess, mem: mem, svc: svc, client: NewClient(conn), events: events}
}

// capture simulates an external copy and waits for the session to record it.
func (f *fixture) capture(t *testing.T, texts ...string) {
	t.Helper()
	for _, text := range texts {
		if err := f.mem.Set([]byte(text)); err != nil {
			t.Fatal(err)
		}
		for done := false; !done; {
			select {
			case ev := <-f.events:
				done = ev.Type == session.EventInserted && ev.Text == text
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out capturing %q", text)
			}
		}
	}
}

func TestListAndSelect(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.capture(t, "Hello", "world", "HELLO again")

	got, err := f.client.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"HELLO again", "world", "Hello"}, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}

	text, err := f.client.Select(ctx, 1, "hello")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if text != "Hello" {
		t.Errorf("Select = %q, want Hello", text)
	}
	if b, _ := f.mem.Read(); string(b) != "Hello" {
		t.Errorf("clipboard = %q", b)
	}
}

func TestStatusCodes(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.capture(t, "only")

	_, err := f.client.Select(ctx, 5, "")
	if got := status.Code(err); got != codes.OutOfRange {
		t.Errorf("Select out of range code = %s, want OutOfRange", got)
	}
	err = f.client.Copy(ctx, "")
	if got := status.Code(err); got != codes.InvalidArgument {
		t.Errorf("Copy empty code = %s, want InvalidArgument", got)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{history.ErrIndexOutOfRange, codes.OutOfRange},
		{&gateway.Error{Op: "write", Kind: gateway.KindContentionExhausted, Attempts: 5}, codes.Unavailable},
		{&gateway.Error{Op: "read", Kind: gateway.KindEncoding}, codes.InvalidArgument},
		{&gateway.Error{Op: "write", Kind: gateway.KindEmptyText}, codes.InvalidArgument},
		{&gateway.Error{Op: "read", Kind: gateway.KindUnexpected, Code: 5}, codes.Internal},
		{session.ErrClosed, codes.Unavailable},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestCopyAndStatus(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	if err := f.client.Copy(ctx, "via rpc"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	select {
	case ev := <-f.events:
		if ev.Text != "via rpc" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("copy not captured")
	}

	st, err := f.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := StatusReply{Backend: f.mem.Name(), Count: 1, Capacity: 8, Contention: "idle"}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("Status (-want +got):\n%s", diff)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "s3cret")
	ctx := context.Background()

	if _, err := f.client.List(ctx, ""); status.Code(err) != codes.Unauthenticated {
		t.Errorf("no token: code = %s", status.Code(err))
	}
	bad := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer nope")
	if _, err := f.client.List(bad, ""); status.Code(err) != codes.Unauthenticated {
		t.Errorf("bad token: code = %s", status.Code(err))
	}
	good := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer s3cret")
	if _, err := f.client.List(good, ""); err != nil {
		t.Errorf("good token: %v", err)
	}
}

func TestWatch(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan WatchEvent, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- f.client.Watch(ctx, func(ev WatchEvent) error {
			got <- ev
			return errors.New("stop")
		})
	}()

	// Keep copying until the stream is subscribed and reports the insert.
	deadline := time.After(4 * time.Second)
	for i := 0; ; i++ {
		text := fmt.Sprintf("watched %d", i)
		_ = f.mem.Set([]byte(text))
		select {
		case ev := <-got:
			if ev.Type != "inserted" || !strings.HasPrefix(ev.Text, "watched ") || ev.Count < 1 {
				t.Errorf("event = %+v", ev)
			}
			if err := <-watchErr; err == nil || err.Error() != "stop" {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no watch event")
		}
	}
}

func TestHTTPMirror(t *testing.T) {
	f := newFixture(t, "tok")
	f.capture(t, "first", "second")

	mux, err := NewHTTPMux(f.svc)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	do := func(method, path, body string) (*http.Response, []byte) {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer tok")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp, b
	}

	resp, body := do(http.MethodGet, "/v1/entries", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/entries = %d %s", resp.StatusCode, body)
	}
	var entries []string
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if diff := cmp.Diff([]string{"second", "first"}, entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}

	resp, body = do(http.MethodPost, "/v1/entries/1/select", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select = %d %s", resp.StatusCode, body)
	}
	var selected string
	if err := json.Unmarshal(body, &selected); err != nil || selected != "first" {
		t.Errorf("select body = %s (%v)", body, err)
	}

	resp, body = do(http.MethodPost, "/v1/entries/9/select", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out of range select = %d %s, want 400", resp.StatusCode, body)
	}

	resp, body = do(http.MethodPost, "/v1/entries/x/select", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad index = %d %s, want 400", resp.StatusCode, body)
	}

	resp, body = do(http.MethodGet, "/v1/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	var st map[string]any
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st["count"] != float64(2) || st["contention"] != "idle" {
		t.Errorf("status body = %v", st)
	}

	resp, body = do(http.MethodPost, "/v1/entries", "posted")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("copy = %d %s", resp.StatusCode, body)
	}
	if b, _ := f.mem.Read(); string(b) != "posted" {
		t.Errorf("clipboard = %q", b)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/status", nil)
	unauth, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	unauth.Body.Close()
	if unauth.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", unauth.StatusCode)
	}
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.capture(t, "alpha", "beta", "gamma")

	view, err := f.client.Dispatch(ctx, "next", "")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := ViewReply{Cursor: 1, Entries: []string{"gamma", "beta", "alpha"}}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("next (-want +got):\n%s", diff)
	}

	view, err = f.client.Dispatch(ctx, "filter", "AL")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	want = ViewReply{Filter: "AL", Cursor: 0, Entries: []string{"alpha"}}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("filter (-want +got):\n%s", diff)
	}

	if _, err := f.client.Dispatch(ctx, "commit", ""); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if b, _ := f.mem.Read(); string(b) != "alpha" {
		t.Errorf("clipboard = %q, want alpha", b)
	}

	if _, err := f.client.Dispatch(ctx, "filter", "nothing"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.Dispatch(ctx, "commit", ""); status.Code(err) != codes.OutOfRange {
		t.Errorf("commit with no match: code = %s, want OutOfRange", status.Code(err))
	}
	if _, err := f.client.Dispatch(ctx, "jump", ""); status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown kind: code = %s, want InvalidArgument", status.Code(err))
	}

	mux, err := NewHTTPMux(f.svc)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/v1/view/toggle", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["visible"] != true || body["filter"] != "nothing" {
		t.Errorf("POST /v1/view/toggle = %d %v", resp.StatusCode, body)
	}
}
