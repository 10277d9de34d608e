package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/billstore"
	"github.com/mmynk/splitqr/internal/config"
	"github.com/mmynk/splitqr/internal/docstore/remote"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/pkg/logging"
)

// loadConfig reads the config file and applies the flags over it.
func (o *globalOptions) loadConfig() (config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("SPLITQR_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if o.server != "" {
		cfg.Client.Server = o.server
	}
	if o.name != "" {
		cfg.Client.Name = o.name
	}
	if o.tokenFile != "" {
		cfg.Client.TokenFile = o.tokenFile
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolveBillID picks the bill: the scanned URL first, then --bill, then the config.
func (o *globalOptions) resolveBillID(cfg config.Config) string {
	if o.url != "" {
		return billstore.BillIDFromURL(o.url)
	}
	if o.billID != "" {
		return o.billID
	}
	if cfg.Client.BillID != "" {
		return cfg.Client.BillID
	}
	return models.DefaultBillID
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Output: w})
}

// client is a signed-in connection to a splitqr server.
type client struct {
	cfg    config.Config
	logger *slog.Logger
	billID string
	auth   *auth.Client
	store  *remote.Client
	bills  *billstore.Adapter
}

// dial connects to the server without signing in.
func (o *globalOptions) dial(stderr io.Writer) (*client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.logger(stderr)
	state := auth.NewState()
	bearer := connect.WithInterceptors(middleware.BearerToken(state.Token))

	store := remote.New(http.DefaultClient, cfg.Client.Server, bearer)
	return &client{
		cfg:    cfg,
		logger: logger,
		billID: o.resolveBillID(cfg),
		auth:   auth.NewClient(http.DefaultClient, cfg.Client.Server, state),
		store:  store,
		bills:  billstore.New(store, logger),
	}, nil
}

// connect dials the server and signs in: with a password when --email is set, otherwise
// as a guest.
func (o *globalOptions) connect(ctx context.Context, stderr io.Writer) (*client, error) {
	c, err := o.dial(stderr)
	if err != nil {
		return nil, err
	}
	if err := c.signIn(ctx, o.email, o.password, o.token); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *client) signIn(ctx context.Context, email, password, token string) error {
	ctx, cancel := c.timeout(ctx)
	defer cancel()
	if email != "" {
		if _, err := c.auth.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("sign in as %s: %w", email, err)
		}
	} else if err := c.signInGuest(ctx, token); err != nil {
		return err
	}
	identity := c.identity()
	c.logger.Debug("Signed in", "user_id", identity.ID, "anonymous", identity.IsAnonymous)
	return nil
}

// signInGuest resumes the guest from an explicit token or the token file, and only signs in
// anew when there is nothing to resume. The resulting token is written back to the file.
func (c *client) signInGuest(ctx context.Context, token string) error {
	explicit := token != ""
	if !explicit {
		token = c.readToken()
	}
	if token != "" {
		_, err := c.auth.Restore(ctx, token)
		switch {
		case err == nil:
			c.saveToken()
			return nil
		case explicit:
			return fmt.Errorf("resume guest sign-in: %w", err)
		}
		c.logger.Debug("Saved token rejected, signing in again", "error", err)
	}
	if _, err := c.auth.SignInAnonymously(ctx, c.cfg.Client.Name); err != nil {
		return fmt.Errorf("sign in as guest: %w", err)
	}
	c.saveToken()
	return nil
}

func (c *client) readToken() string {
	if c.cfg.Client.TokenFile == "" {
		return ""
	}
	data, err := os.ReadFile(c.cfg.Client.TokenFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to read token file", "path", c.cfg.Client.TokenFile, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *client) saveToken() {
	path := c.cfg.Client.TokenFile
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		c.logger.Warn("Failed to create token directory", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(c.auth.State().Token()+"\n"), 0o600); err != nil {
		c.logger.Warn("Failed to save token", "path", path, "error", err)
	}
}

// identity is the signed-in identity.
func (c *client) identity() *models.Identity {
	return c.auth.State().Current()
}

// timeout bounds one-shot commands.
func (c *client) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Client.Timeout)
}

func (c *client) Close() {
	c.store.Close()
}
