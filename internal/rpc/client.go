package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// StatusReply is the decoded Status response.
type StatusReply struct {
	Backend        string
	Count          int
	Capacity       int
	Contention     string
	LastContention time.Time
}

// ViewReply is the decoded Dispatch response.
type ViewReply struct {
	Filter  string
	Cursor  int // -1 when nothing matches
	Entries []string
	Visible bool
}

// WatchEvent is one decoded Watch message.
type WatchEvent struct {
	Type       string
	Text       string
	Count      int
	Contention string
}

// Client calls mclip.v1.HistoryService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// List returns the newest-first entries matching filter.
func (c *Client) List(ctx context.Context, filter string, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listMethod, wrapperspb.String(filter), out, opts...); err != nil {
		return nil, err
	}
	entries := make([]string, len(out.GetValues()))
	for i, v := range out.GetValues() {
		entries[i] = v.GetStringValue()
	}
	return entries, nil
}

// Select puts entry index of the filtered view back on the clipboard and
// returns its text.
func (c *Client) Select(ctx context.Context, index int, filter string, opts ...grpc.CallOption) (string, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"index":  structpb.NewNumberValue(float64(index)),
		"filter": structpb.NewStringValue(filter),
	}}
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, selectMethod, in, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Copy writes text to the clipboard.
func (c *Client) Copy(ctx context.Context, text string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, copyMethod, wrapperspb.String(text), new(emptypb.Empty), opts...)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (StatusReply, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, new(emptypb.Empty), out, opts...); err != nil {
		return StatusReply{}, err
	}
	f := out.GetFields()
	r := StatusReply{
		Backend:    f["backend"].GetStringValue(),
		Count:      int(f["count"].GetNumberValue()),
		Capacity:   int(f["capacity"].GetNumberValue()),
		Contention: f["contention"].GetStringValue(),
	}
	if s := f["last_contention"].GetStringValue(); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			r.LastContention = t
		}
	}
	return r, nil
}

// Dispatch applies a picker command (kind as accepted by
// session.ParseCommandKind) and returns the resulting view. filter is only
// read by set-filter.
func (c *Client) Dispatch(ctx context.Context, kind, filter string, opts ...grpc.CallOption) (ViewReply, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":   structpb.NewStringValue(kind),
		"filter": structpb.NewStringValue(filter),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, dispatchMethod, in, out, opts...); err != nil {
		return ViewReply{}, err
	}
	f := out.GetFields()
	values := f["entries"].GetListValue().GetValues()
	r := ViewReply{
		Filter:  f["filter"].GetStringValue(),
		Cursor:  int(f["cursor"].GetNumberValue()),
		Entries: make([]string, len(values)),
		Visible: f["visible"].GetBoolValue(),
	}
	for i, v := range values {
		r.Entries[i] = v.GetStringValue()
	}
	return r, nil
}

// Watch streams session events until ctx is cancelled or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(WatchEvent) error, opts ...grpc.CallOption) error {
	cs, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(new(emptypb.Empty)); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}
		f := msg.GetFields()
		ev := WatchEvent{
			Type:       f["type"].GetStringValue(),
			Text:       f["text"].GetStringValue(),
			Count:      int(f["count"].GetNumberValue()),
			Contention: f["contention"].GetStringValue(),
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
