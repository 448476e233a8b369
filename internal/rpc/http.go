package rpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/mclip/internal/gateway"
)

// maxCopyBody bounds POST /v1/entries request bodies.
const maxCopyBody = gateway.DefaultMaxTextBytes * 4

// NewHTTPMux returns a grpc-gateway mux serving the JSON mirror of svc:
//
//	GET  /v1/entries?filter=             List
//	POST /v1/entries                     Copy (request body is the text)
//	POST /v1/entries/{index}/select      Select (?filter= applies)
//	GET  /v1/status                      Status
//	POST /v1/view/{kind}                 Dispatch (?filter= for set-filter)
//
// Errors are rendered by the gateway's default handler, which maps gRPC codes
// to HTTP status codes.
func NewHTTPMux(svc *Service) (*gwruntime.ServeMux, error) {
	mux := gwruntime.NewServeMux(
		gwruntime.WithMarshalerOption(gwruntime.MIMEWildcard, &gwruntime.JSONPb{
			MarshalOptions:   protojson.MarshalOptions{EmitUnpopulated: true},
			UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
		}),
	)
	h := &httpHandlers{svc: svc, mux: mux}
	routes := []struct {
		method, pattern string
		fn              gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/entries", h.list},
		{http.MethodPost, "/v1/entries", h.copy},
		{http.MethodPost, "/v1/entries/{index}/select", h.selectEntry},
		{http.MethodGet, "/v1/status", h.status},
		{http.MethodPost, "/v1/view/{kind}", h.dispatch},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.fn); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

type httpHandlers struct {
	svc *Service
	mux *gwruntime.ServeMux
}

// incoming carries the Authorization header into gRPC metadata so the
// service's auth check applies unchanged.
func incoming(r *http.Request) context.Context {
	md := metadata.MD{}
	if a := r.Header.Get("Authorization"); a != "" {
		md.Set("authorization", a)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}

func (h *httpHandlers) reply(w http.ResponseWriter, r *http.Request, msg proto.Message, err error) {
	_, out := gwruntime.MarshalerForRequest(h.mux, r)
	if err != nil {
		gwruntime.HTTPError(r.Context(), h.mux, out, w, r, err)
		return
	}
	buf, err := out.Marshal(msg)
	if err != nil {
		gwruntime.HTTPError(r.Context(), h.mux, out, w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", out.ContentType(msg))
	_, _ = w.Write(buf)
}

func (h *httpHandlers) list(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := h.svc.List(incoming(r), wrapperspb.String(r.URL.Query().Get("filter")))
	h.reply(w, r, resp, err)
}

func (h *httpHandlers) copy(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCopyBody))
	if err != nil {
		h.reply(w, r, nil, status.Errorf(codes.InvalidArgument, "read body: %v", err))
		return
	}
	resp, err := h.svc.Copy(incoming(r), wrapperspb.String(string(body)))
	h.reply(w, r, resp, err)
}

func (h *httpHandlers) selectEntry(w http.ResponseWriter, r *http.Request, params map[string]string) {
	index, err := strconv.Atoi(params["index"])
	if err != nil {
		h.reply(w, r, nil, status.Errorf(codes.InvalidArgument, "index %q is not an integer", params["index"]))
		return
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"index":  structpb.NewNumberValue(float64(index)),
		"filter": structpb.NewStringValue(r.URL.Query().Get("filter")),
	}}
	resp, err := h.svc.Select(incoming(r), req)
	h.reply(w, r, resp, err)
}

func (h *httpHandlers) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := h.svc.Status(incoming(r), new(emptypb.Empty))
	h.reply(w, r, resp, err)
}

func (h *httpHandlers) dispatch(w http.ResponseWriter, r *http.Request, params map[string]string) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":   structpb.NewStringValue(params["kind"]),
		"filter": structpb.NewStringValue(r.URL.Query().Get("filter")),
	}}
	resp, err := h.svc.Dispatch(incoming(r), req)
	h.reply(w, r, resp, err)
}
