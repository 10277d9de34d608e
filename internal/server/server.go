// Package server assembles the splitqr HTTP server: the document store, the Connect
// services behind their interceptors, metrics, health and the static web client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/billstore"
	"github.com/mmynk/splitqr/internal/config"
	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/docstore/postgres"
	"github.com/mmynk/splitqr/internal/docstore/sqlite"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/rpc"
	"github.com/mmynk/splitqr/internal/service"
)

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (docstore.Store, error) {
	switch cfg.Backend {
	case "memory":
		return docstore.NewMemory(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Server serves the bill documents and the identity provider over Connect.
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	store    docstore.Store
	registry *prometheus.Registry
	handler  http.Handler
}

// New opens the store, seeds the sample bill when configured, and builds the handler tree.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UsesDevSecret() {
		logger.Warn("Using the development JWT secret; set SPLITQR_JWT_SECRET in production")
	}

	backend, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	logger.Info("Storage initialized", "backend", cfg.Store.Backend)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	store := docstore.Instrument(backend, docstore.NewMetrics(registry))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
	}

	if cfg.Server.SeedSample {
		if err := Seed(ctx, billstore.New(store, logger), models.DefaultBillID, false); err != nil {
			store.Close()
			return nil, err
		}
	}

	s.handler = s.routes()
	return s, nil
}

// Seed writes the sample bill under billID. Without force an existing bill is left
// untouched.
func Seed(ctx context.Context, bills *billstore.Adapter, billID string, force bool) error {
	sample := models.SampleBill()
	sample.ID = billID
	if force {
		if err := bills.Put(ctx, sample); err != nil {
			return fmt.Errorf("failed to seed sample bill: %w", err)
		}
		return nil
	}
	err := bills.Create(ctx, sample)
	if err != nil && !errors.Is(err, billstore.ErrBillExists) {
		return fmt.Errorf("failed to seed sample bill: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	jwtManager := auth.NewJWTManager(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL)
	authenticator := auth.NewPasswordAuthenticator(auth.NewDocumentUsers(s.store))

	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager, rpc.PublicAuthProcedures...),
		middleware.LoggingInterceptor(s.logger),
	)

	mux := http.NewServeMux()

	docPath, docHandler := rpc.NewDocumentServiceHandler(
		service.NewDocumentService(s.store, s.logger, billstore.Collection).
			WithWritableFields(billstore.Collection, billstore.PatchFields...),
		interceptors,
	)
	mux.Handle(docPath, docHandler)

	authPath, authHandler := rpc.NewAuthServiceHandler(
		service.NewAuthService(authenticator, jwtManager, s.logger),
		interceptors,
	)
	mux.Handle(authPath, authHandler)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	if static := s.staticHandler(); static != nil {
		mux.Handle("/", static)
	}

	handler := middleware.RequestLogger(s.logger)(middleware.CORS(mux))

	// h2c serves HTTP/2 without TLS, which Connect streaming needs from plain clients.
	return h2c.NewHandler(handler, &http2.Server{})
}

// staticHandler serves the web client, or nil when the directory does not exist.
func (s *Server) staticHandler() http.Handler {
	if s.cfg.Server.StaticPath == "" {
		return nil
	}
	staticDir, err := filepath.Abs(s.cfg.Server.StaticPath)
	if err != nil {
		s.logger.Warn("Failed to resolve static path", "path", s.cfg.Server.StaticPath, "error", err)
		return nil
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		s.logger.Info("Static directory not found, web client disabled", "path", staticDir)
		return nil
	}
	s.logger.Info("Serving static files", "path", staticDir)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/splitqr.") {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(urlPath))

		// Unknown paths get index.html; the client reads the bill from the query string.
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}

		http.ServeFile(w, r, filePath)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Store returns the instrumented document store.
func (s *Server) Store() docstore.Store { return s.store }

// Close releases the store.
func (s *Server) Close() error { return s.store.Close() }

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Connect server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down", "timeout", s.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
