package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// DocumentServiceName is the fully-qualified name of the document service.
const DocumentServiceName = "splitqr.docstore.v1.DocumentService"

const (
	DocumentServiceGetProcedure    = "/" + DocumentServiceName + "/Get"
	DocumentServiceCreateProcedure = "/" + DocumentServiceName + "/Create"
	DocumentServiceSetProcedure    = "/" + DocumentServiceName + "/Set"
	DocumentServiceUpdateProcedure = "/" + DocumentServiceName + "/Update"
	DocumentServiceWatchProcedure  = "/" + DocumentServiceName + "/Watch"
)

// DocumentServiceHandler is implemented by the server side of the document service.
type DocumentServiceHandler interface {
	Get(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Create(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Set(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Update(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Watch(context.Context, *connect.Request[structpb.Struct], *connect.ServerStream[structpb.Struct]) error
}

// NewDocumentServiceHandler builds an HTTP handler serving svc, returning the path prefix
// to mount it on.
func NewDocumentServiceHandler(svc DocumentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	get := connect.NewUnaryHandler(DocumentServiceGetProcedure, svc.Get, opts...)
	create := connect.NewUnaryHandler(DocumentServiceCreateProcedure, svc.Create, opts...)
	set := connect.NewUnaryHandler(DocumentServiceSetProcedure, svc.Set, opts...)
	update := connect.NewUnaryHandler(DocumentServiceUpdateProcedure, svc.Update, opts...)
	watch := connect.NewServerStreamHandler(DocumentServiceWatchProcedure, svc.Watch, opts...)

	return "/" + DocumentServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DocumentServiceGetProcedure:
			get.ServeHTTP(w, r)
		case DocumentServiceCreateProcedure:
			create.ServeHTTP(w, r)
		case DocumentServiceSetProcedure:
			set.ServeHTTP(w, r)
		case DocumentServiceUpdateProcedure:
			update.ServeHTTP(w, r)
		case DocumentServiceWatchProcedure:
			watch.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// DocumentServiceClient calls a remote document service.
type DocumentServiceClient struct {
	get    *connect.Client[structpb.Struct, structpb.Struct]
	create *connect.Client[structpb.Struct, structpb.Struct]
	set    *connect.Client[structpb.Struct, structpb.Struct]
	update *connect.Client[structpb.Struct, structpb.Struct]
	watch  *connect.Client[structpb.Struct, structpb.Struct]
}

// NewDocumentServiceClient creates a client for the service at baseURL.
func NewDocumentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DocumentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &DocumentServiceClient{
		get:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DocumentServiceGetProcedure, opts...),
		create: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DocumentServiceCreateProcedure, opts...),
		set:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DocumentServiceSetProcedure, opts...),
		update: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DocumentServiceUpdateProcedure, opts...),
		watch:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DocumentServiceWatchProcedure, opts...),
	}
}

func (c *DocumentServiceClient) Get(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.get.CallUnary(ctx, req)
}

func (c *DocumentServiceClient) Create(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.create.CallUnary(ctx, req)
}

func (c *DocumentServiceClient) Set(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.set.CallUnary(ctx, req)
}

func (c *DocumentServiceClient) Update(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.update.CallUnary(ctx, req)
}

func (c *DocumentServiceClient) Watch(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.ServerStreamForClient[structpb.Struct], error) {
	return c.watch.CallServerStream(ctx, req)
}
