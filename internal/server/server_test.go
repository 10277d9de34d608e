package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/billstore"
	"github.com/mmynk/splitqr/internal/config"
	"github.com/mmynk/splitqr/internal/docstore/remote"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.Server.StaticPath = ""
	cfg.Auth.JWTSecret = "test-secret-0123456789"
	return cfg
}

func startServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthz(t *testing.T) {
	_, ts := startServer(t, testConfig(t))

	status, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestMetrics(t *testing.T) {
	_, ts := startServer(t, testConfig(t))

	status, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	// Seeding already went through the instrumented store.
	assert.Contains(t, body, "splitqr_docstore_operations_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "mongo"

	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestNew_SeedsSampleBill(t *testing.T) {
	srv, _ := startServer(t, testConfig(t))

	bill, err := billstore.New(srv.Store(), testLogger()).Get(context.Background(), models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, "hotel A", bill.Name)
	assert.Len(t, bill.Items, 7)
}

func TestNew_SeedDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.SeedSample = false
	srv, _ := startServer(t, cfg)

	_, err := billstore.New(srv.Store(), testLogger()).Get(context.Background(), models.DefaultBillID)
	assert.ErrorIs(t, err, billstore.ErrBillNotFound)
}

func TestSeed(t *testing.T) {
	srv, _ := startServer(t, testConfig(t))
	ctx := context.Background()
	bills := billstore.New(srv.Store(), testLogger())

	require.NoError(t, bills.Assign(ctx, models.DefaultBillID, "item1", "userA"))

	// Without force the edited bill survives.
	require.NoError(t, Seed(ctx, bills, models.DefaultBillID, false))
	bill, err := bills.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, []string{"userA"}, bill.Items[0].AssignedTo)

	require.NoError(t, Seed(ctx, bills, models.DefaultBillID, true))
	bill, err = bills.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Empty(t, bill.Items[0].AssignedTo)

	require.NoError(t, Seed(ctx, bills, "T-12", false))
	bill, err = bills.Get(ctx, "T-12")
	require.NoError(t, err)
	assert.Equal(t, "T-12", bill.ID)
}

func TestRemoteClientRequiresSignIn(t *testing.T) {
	_, ts := startServer(t, testConfig(t))
	ctx := context.Background()

	anonymous := remote.New(http.DefaultClient, ts.URL)
	defer anonymous.Close()
	_, err := billstore.New(anonymous, testLogger()).Get(ctx, models.DefaultBillID)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	state := auth.NewState()
	_, err = auth.NewClient(http.DefaultClient, ts.URL, state).SignInAnonymously(ctx, "Dan")
	require.NoError(t, err)

	store := remote.New(http.DefaultClient, ts.URL,
		connect.WithInterceptors(middleware.BearerToken(state.Token)))
	defer store.Close()
	bills := billstore.New(store, testLogger())

	bill, err := bills.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBillID, bill.ID)

	require.NoError(t, bills.Assign(ctx, models.DefaultBillID, "item2", "userB"))
	bill, err = bills.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, []string{"userB"}, bill.Items[1].AssignedTo)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>splitqr</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	cfg := testConfig(t)
	cfg.Server.StaticPath = dir
	_, ts := startServer(t, cfg)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"root", "/", "<h1>splitqr</h1>"},
		{"asset", "/app.js", "console.log(1)"},
		{"unknown path", "/bill?bill=AS3-26", "<h1>splitqr</h1>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, ts.URL+tt.path)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestStaticDisabledWithoutDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.StaticPath = filepath.Join(t.TempDir(), "missing")
	_, ts := startServer(t, cfg)

	status, _ := get(t, ts.URL+"/index.html")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "splitqr.db")
	store, err := OpenStore(context.Background(), config.StoreConfig{Backend: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
