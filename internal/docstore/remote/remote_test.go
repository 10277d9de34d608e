package remote

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

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/docstore/storetest"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/rpc"
	"github.com/mmynk/splitqr/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer serves a memory store and returns a client for it.
func setupTestServer(t *testing.T, handlerOpts ...connect.HandlerOption) (*Client, *docstore.Memory, *httptest.Server) {
	t.Helper()

	backend := docstore.NewMemory()
	svc := service.NewDocumentService(backend, discardLogger(), "bills")
	path, handler := rpc.NewDocumentServiceHandler(svc, handlerOpts...)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	client := New(http.DefaultClient, server.URL)
	t.Cleanup(func() {
		client.Close()
		server.Close()
		backend.Close()
	})
	return client, backend, server
}

func TestClientContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		client, _, _ := setupTestServer(t)
		return client
	})
}

func TestClient_CollectionNotExposed(t *testing.T) {
	client, _, _ := setupTestServer(t)

	_, err := client.Get(context.Background(), docstore.Doc("users", "u1"))
	require.Error(t, err)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
}

func TestClient_WatchReportsDroppedStream(t *testing.T) {
	client, backend, server := setupTestServer(t)
	ctx := context.Background()
	ref := docstore.Doc("bills", "b1")
	_, err := backend.Create(ctx, ref, docstore.Fields{"gst": 1})
	require.NoError(t, err)

	got := make(chan docstore.Snapshot, 4)
	failed := make(chan error, 1)
	stop := client.Watch(ctx, ref, func(s docstore.Snapshot) { got <- s }, func(err error) { failed <- err })
	defer stop()

	select {
	case snap := <-got:
		assert.Equal(t, int64(1), snap.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	server.CloseClientConnections()

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dropped stream was not reported")
	}
}

func TestClient_StopReleasesServerWatcher(t *testing.T) {
	client, backend, _ := setupTestServer(t)
	ref := docstore.Doc("bills", "b1")

	stop := client.Watch(context.Background(), ref, func(docstore.Snapshot) {}, nil)
	require.Eventually(t, func() bool { return backend.Hub().Watchers(ref) == 1 }, 5*time.Second, 10*time.Millisecond)

	stop()
	require.Eventually(t, func() bool { return backend.Hub().Watchers(ref) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClient_Closed(t *testing.T) {
	client, _, _ := setupTestServer(t)
	require.NoError(t, client.Close())

	_, err := client.Get(context.Background(), docstore.Doc("bills", "b1"))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestClient_BearerToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	_, _, server := setupTestServer(t, connect.WithInterceptors(middleware.RequireAuth(jwtManager)))
	ctx := context.Background()
	ref := docstore.Doc("bills", "b1")

	anonymous := New(http.DefaultClient, server.URL)
	_, err := anonymous.Get(ctx, ref)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	token, err := jwtManager.Generate(models.Identity{ID: "u1", DisplayName: "Dan"})
	require.NoError(t, err)
	signedIn := New(http.DefaultClient, server.URL,
		connect.WithInterceptors(middleware.BearerToken(func() string { return token })))
	defer signedIn.Close()

	_, err = signedIn.Create(ctx, ref, docstore.Fields{"gst": 2})
	require.NoError(t, err)

	got := make(chan docstore.Snapshot, 1)
	stop := signedIn.Watch(ctx, ref, func(s docstore.Snapshot) {
		select {
		case got <- s:
		default:
		}
	}, func(err error) { t.Errorf("watch failed: %v", err) })
	defer stop()

	select {
	case snap := <-got:
		assert.Equal(t, 2.0, snap.Fields["gst"])
	case <-time.After(5 * time.Second):
		t.Fatal("authenticated watch delivered nothing")
	}
}
