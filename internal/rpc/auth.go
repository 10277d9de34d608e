package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthServiceName is the fully-qualified name of the identity service.
const AuthServiceName = "splitqr.auth.v1.AuthService"

const (
	AuthServiceSignInAnonymouslyProcedure  = "/" + AuthServiceName + "/SignInAnonymously"
	AuthServiceRegisterProcedure           = "/" + AuthServiceName + "/Register"
	AuthServiceSignInProcedure             = "/" + AuthServiceName + "/SignIn"
	AuthServiceGetCurrentIdentityProcedure = "/" + AuthServiceName + "/GetCurrentIdentity"
)

// PublicAuthProcedures may be called without a token.
var PublicAuthProcedures = []string{
	AuthServiceSignInAnonymouslyProcedure,
	AuthServiceRegisterProcedure,
	AuthServiceSignInProcedure,
}

// AuthServiceHandler is implemented by the server side of the identity service.
type AuthServiceHandler interface {
	SignInAnonymously(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Register(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	SignIn(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	GetCurrentIdentity(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
}

// NewAuthServiceHandler builds an HTTP handler serving svc, returning the path prefix
// to mount it on.
func NewAuthServiceHandler(svc AuthServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	anonymous := connect.NewUnaryHandler(AuthServiceSignInAnonymouslyProcedure, svc.SignInAnonymously, opts...)
	register := connect.NewUnaryHandler(AuthServiceRegisterProcedure, svc.Register, opts...)
	signIn := connect.NewUnaryHandler(AuthServiceSignInProcedure, svc.SignIn, opts...)
	current := connect.NewUnaryHandler(AuthServiceGetCurrentIdentityProcedure, svc.GetCurrentIdentity, opts...)

	return "/" + AuthServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AuthServiceSignInAnonymouslyProcedure:
			anonymous.ServeHTTP(w, r)
		case AuthServiceRegisterProcedure:
			register.ServeHTTP(w, r)
		case AuthServiceSignInProcedure:
			signIn.ServeHTTP(w, r)
		case AuthServiceGetCurrentIdentityProcedure:
			current.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// AuthServiceClient calls a remote identity service.
type AuthServiceClient struct {
	anonymous *connect.Client[structpb.Struct, structpb.Struct]
	register  *connect.Client[structpb.Struct, structpb.Struct]
	signIn    *connect.Client[structpb.Struct, structpb.Struct]
	current   *connect.Client[structpb.Struct, structpb.Struct]
}

// NewAuthServiceClient creates a client for the service at baseURL.
func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &AuthServiceClient{
		anonymous: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AuthServiceSignInAnonymouslyProcedure, opts...),
		register:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AuthServiceRegisterProcedure, opts...),
		signIn:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AuthServiceSignInProcedure, opts...),
		current:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AuthServiceGetCurrentIdentityProcedure, opts...),
	}
}

func (c *AuthServiceClient) SignInAnonymously(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.anonymous.CallUnary(ctx, req)
}

func (c *AuthServiceClient) Register(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *AuthServiceClient) SignIn(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.signIn.CallUnary(ctx, req)
}

func (c *AuthServiceClient) GetCurrentIdentity(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.current.CallUnary(ctx, req)
}
