package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/rpc"
)

type testServer struct {
	url   string
	store *docstore.Memory
	jwt   *auth.JWTManager
}

// setupTestServer runs both services over an in-memory store behind the auth interceptor.
func setupTestServer(t *testing.T, configure ...func(*DocumentService)) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemory()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(auth.NewDocumentUsers(store)).WithCost(bcrypt.MinCost)

	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager, rpc.PublicAuthProcedures...),
		middleware.LoggingInterceptor(logger),
	)
	docs := NewDocumentService(store, logger, "bills")
	for _, fn := range configure {
		fn(docs)
	}
	docPath, docHandler := rpc.NewDocumentServiceHandler(docs, interceptors)
	authPath, authHandler := rpc.NewAuthServiceHandler(NewAuthService(authenticator, jwtManager, logger), interceptors)

	mux := http.NewServeMux()
	mux.Handle(docPath, docHandler)
	mux.Handle(authPath, authHandler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return &testServer{url: server.URL, store: store, jwt: jwtManager}
}

func (s *testServer) authClient(state *auth.State) *auth.Client {
	return auth.NewClient(http.DefaultClient, s.url, state,
		connect.WithInterceptors(middleware.BearerToken(state.Token)))
}

func TestAuthService_SignInAnonymously(t *testing.T) {
	srv := setupTestServer(t)
	state := auth.NewState()
	client := srv.authClient(state)

	result, err := client.SignInAnonymously(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.Identity.IsAnonymous)
	assert.Equal(t, "Guest", result.Identity.DisplayName)
	assert.NotEmpty(t, result.Identity.ID)
	assert.False(t, state.Loading())
	require.NotNil(t, state.Current())
	assert.Equal(t, result.Identity.ID, state.Current().ID)

	claims, err := srv.jwt.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Identity, claims.Identity())
}

func TestAuthService_RegisterAndSignIn(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	client := srv.authClient(auth.NewState())

	registered, err := client.Register(ctx, "Dan@Example.com", "Dan Brown", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "dan@example.com", registered.Identity.Email)
	assert.False(t, registered.Identity.IsAnonymous)

	signedIn, err := client.SignIn(ctx, "dan@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.Identity.ID, signedIn.Identity.ID)
	assert.Equal(t, "Dan Brown", signedIn.Identity.DisplayName)

	_, err = client.SignIn(ctx, "dan@example.com", "wrong-password")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestAuthService_RegisterErrors(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	client := srv.authClient(auth.NewState())

	_, err := client.Register(ctx, "a@b.c", "Ann", "short")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Register(ctx, "a@b.c", "", "long-enough")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Register(ctx, "a@b.c", "Ann", "long-enough")
	require.NoError(t, err)
	_, err = client.Register(ctx, "A@B.C", "Ann", "long-enough")
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))
}

func TestAuthService_GetCurrentIdentity(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	state := auth.NewState()
	client := srv.authClient(state)
	raw := rpc.NewAuthServiceClient(http.DefaultClient, srv.url,
		connect.WithInterceptors(middleware.BearerToken(state.Token)))

	_, err := raw.GetCurrentIdentity(ctx, connect.NewRequest(rpc.EncodeCredentials(rpc.Credentials{})))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	signedIn, err := client.SignInAnonymously(ctx, "Eve")
	require.NoError(t, err)

	resp, err := raw.GetCurrentIdentity(ctx, connect.NewRequest(rpc.EncodeCredentials(rpc.Credentials{})))
	require.NoError(t, err)
	assert.Equal(t, signedIn.Identity, rpc.DecodeAuthResult(resp.Msg).Identity)
}

func TestAuthClient_Restore(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	first, err := srv.authClient(auth.NewState()).SignInAnonymously(ctx, "Ann")
	require.NoError(t, err)

	state := auth.NewState()
	restored, err := srv.authClient(state).Restore(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Identity, restored.Identity)
	require.NotNil(t, state.Current())
	assert.Equal(t, first.Identity.ID, state.Current().ID)
	assert.NotEmpty(t, state.Token())

	rejected := auth.NewState()
	_, err = srv.authClient(rejected).Restore(ctx, "not-a-token")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.False(t, rejected.Loading())
	assert.Nil(t, rejected.Current())
}

func TestDocumentService_RequiresToken(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	docs := rpc.NewDocumentServiceClient(http.DefaultClient, srv.url)

	req, err := rpc.EncodeDocumentRequest(rpc.DocumentRequest{Ref: docstore.Doc("bills", "b1")})
	require.NoError(t, err)
	_, err = docs.Get(ctx, connect.NewRequest(req))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestDocumentService_CRUD(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	token, err := srv.jwt.Generate(auth.NewAnonymousIdentity("Ann"))
	require.NoError(t, err)
	docs := rpc.NewDocumentServiceClient(http.DefaultClient, srv.url,
		connect.WithInterceptors(middleware.BearerToken(func() string { return token })))

	call := func(fn func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error), r rpc.DocumentRequest) (*connect.Response[structpb.Struct], error) {
		msg, err := rpc.EncodeDocumentRequest(r)
		require.NoError(t, err)
		return fn(ctx, connect.NewRequest(msg))
	}
	ref := docstore.Doc("bills", "b1")

	resp, err := call(docs.Create, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 30}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rpc.DecodeWriteResult(resp.Msg))

	_, err = call(docs.Create, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 30}})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	resp, err = call(docs.Update, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 10}, ExpectVersion: 1, HasPrecondition: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rpc.DecodeWriteResult(resp.Msg))

	_, err = call(docs.Update, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 11}, ExpectVersion: 1, HasPrecondition: true})
	assert.Equal(t, connect.CodeAborted, connect.CodeOf(err))

	resp, err = call(docs.Get, rpc.DocumentRequest{Ref: ref})
	require.NoError(t, err)
	snap, err := rpc.DecodeSnapshot(resp.Msg)
	require.NoError(t, err)
	assert.Equal(t, 10.0, snap.Fields["gst"])

	_, err = call(docs.Get, rpc.DocumentRequest{Ref: docstore.Doc("users", "u1")})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = call(docs.Update, rpc.DocumentRequest{Ref: docstore.Doc("bills", "missing"), Fields: docstore.Fields{"gst": 1}})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestDocumentService_WritableFields(t *testing.T) {
	srv := setupTestServer(t, func(d *DocumentService) {
		d.WithWritableFields("bills", "items", "status")
	})
	ctx := context.Background()
	ref := docstore.Doc("bills", "b1")
	_, err := srv.store.Create(ctx, ref, docstore.Fields{"gst": 30, "status": "active"})
	require.NoError(t, err)

	clientFor := func(identity models.Identity) *rpc.DocumentServiceClient {
		token, err := srv.jwt.Generate(identity)
		require.NoError(t, err)
		return rpc.NewDocumentServiceClient(http.DefaultClient, srv.url,
			connect.WithInterceptors(middleware.BearerToken(func() string { return token })))
	}
	call := func(fn func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error), r rpc.DocumentRequest) error {
		msg, err := rpc.EncodeDocumentRequest(r)
		require.NoError(t, err)
		_, err = fn(ctx, connect.NewRequest(msg))
		return err
	}
	guest := clientFor(auth.NewAnonymousIdentity("Ann"))

	err = call(guest.Update, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 0}, ExpectVersion: 1, HasPrecondition: true})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	err = call(guest.Update, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"status": "closed"}})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	err = call(guest.Update, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"status": "closed"}, ExpectVersion: 1, HasPrecondition: true})
	require.NoError(t, err)

	err = call(guest.Set, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 0}})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	owner := clientFor(models.Identity{ID: "u-owner", DisplayName: "Owner", Email: "owner@example.com"})
	require.NoError(t, call(owner.Set, rpc.DocumentRequest{Ref: ref, Fields: docstore.Fields{"gst": 0}}))

	snap, err := srv.store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Fields["gst"])
	assert.Equal(t, int64(3), snap.Version)
}
