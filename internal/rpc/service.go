// Package rpc implements the mclip.v1.HistoryService gRPC server and client
// and an HTTP/JSON mirror of it.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/mclip/internal/gateway"
	"go.klb.dev/mclip/internal/history"
	"go.klb.dev/mclip/internal/session"
)

// Session is the part of *session.Session the service needs.
type Session interface {
	Entries(ctx context.Context, filter string) ([]history.Entry, error)
	Commit(ctx context.Context, index int, filter string) (history.Entry, error)
	Copy(ctx context.Context, text string) error
	Status(ctx context.Context) (session.Status, error)
	Dispatch(ctx context.Context, cmd session.Command) (session.View, error)
	Subscribe() (<-chan session.Event, func())
}

// Service implements HistoryServiceServer.
type Service struct {
	s     Session
	token string // empty = no auth
}

var _ HistoryServiceServer = (*Service)(nil)

// New returns a Service backed by s. token may be empty to disable auth.
func New(s Session, token string) *Service {
	return &Service{s: s, token: token}
}

// List implements HistoryService.List.
func (s *Service) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	entries, err := s.s.Entries(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	values := make([]*structpb.Value, len(entries))
	for i, e := range entries {
		values[i] = structpb.NewStringValue(e.Text())
	}
	return &structpb.ListValue{Values: values}, nil
}

// Select implements HistoryService.Select.
func (s *Service) Select(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	fields := req.GetFields()
	iv, ok := fields["index"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "index is required")
	}
	n := iv.GetNumberValue()
	if n != float64(int(n)) {
		return nil, status.Errorf(codes.InvalidArgument, "index %v is not an integer", n)
	}
	filter := fields["filter"].GetStringValue()

	e, err := s.s.Commit(ctx, int(n), filter)
	if err != nil {
		return nil, toStatus(err)
	}
	slog.Debug("entry selected", "peer", addrFromCtx(ctx), "index", int(n), "filter", filter)
	return wrapperspb.String(e.Text()), nil
}

// Copy implements HistoryService.Copy.
func (s *Service) Copy(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.s.Copy(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Status implements HistoryService.Status.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	st, err := s.s.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return statusStruct(st), nil
}

// Dispatch implements HistoryService.Dispatch. A failed commit is reported
// as an error status without the view.
func (s *Service) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	fields := req.GetFields()
	kind, err := session.ParseCommandKind(fields["kind"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cmd := session.Command{Kind: kind, Filter: fields["filter"].GetStringValue()}
	view, err := s.s.Dispatch(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	slog.Debug("command dispatched", "peer", addrFromCtx(ctx), "kind", kind, "cursor", view.Cursor)
	return viewStruct(view), nil
}

// Watch implements HistoryService.Watch.
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}
	events, cancel := s.s.Subscribe()
	defer cancel()

	slog.Info("watch started", "peer", addrFromCtx(ctx))
	defer slog.Info("watch ended", "peer", addrFromCtx(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := stream.Send(eventStruct(ev)); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 || vals[0] == "" {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if strings.TrimPrefix(vals[0], "Bearer ") != s.token {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// toStatus maps session, store and gateway errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case errors.Is(err, history.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, gateway.ErrContentionExhausted):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, gateway.ErrEncoding), errors.Is(err, gateway.ErrEmptyText),
		errors.Is(err, session.ErrUnknownCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func statusStruct(st session.Status) *structpb.Struct {
	last := ""
	if !st.LastContention.IsZero() {
		last = st.LastContention.UTC().Format(time.RFC3339Nano)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"backend":         structpb.NewStringValue(st.Backend),
		"count":           structpb.NewNumberValue(float64(st.Count)),
		"capacity":        structpb.NewNumberValue(float64(st.Capacity)),
		"contention":      structpb.NewStringValue(st.Contention.String()),
		"last_contention": structpb.NewStringValue(last),
	}}
}

func viewStruct(v session.View) *structpb.Struct {
	entries := make([]*structpb.Value, len(v.Entries))
	for i, e := range v.Entries {
		entries[i] = structpb.NewStringValue(e)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"filter":  structpb.NewStringValue(v.Filter),
		"cursor":  structpb.NewNumberValue(float64(v.Cursor)),
		"entries": structpb.NewListValue(&structpb.ListValue{Values: entries}),
		"visible": structpb.NewBoolValue(v.Visible),
	}}
}

func eventStruct(ev session.Event) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"type": structpb.NewStringValue(ev.Type.String()),
	}
	switch ev.Type {
	case session.EventInserted:
		fields["text"] = structpb.NewStringValue(ev.Text)
		fields["count"] = structpb.NewNumberValue(float64(ev.Count))
	case session.EventContention:
		fields["contention"] = structpb.NewStringValue(ev.Contention.String())
	}
	return &structpb.Struct{Fields: fields}
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
