package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// IdentityKey is the context key for the full authenticated identity.
	IdentityKey contextKey = "identity"
)

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, identity.ID)
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetIdentity extracts the authenticated identity from the context.
func GetIdentity(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(models.Identity)
	return identity, ok
}

// AuthInterceptor validates bearer tokens on unary and streaming handlers.
type AuthInterceptor struct {
	jwt    *auth.JWTManager
	public []string
}

// RequireAuth rejects calls without a valid bearer token, except for the listed public
// procedures, and puts the token's identity in the context.
func RequireAuth(jwtManager *auth.JWTManager, public ...string) *AuthInterceptor {
	return &AuthInterceptor{jwt: jwtManager, public: public}
}

func (i *AuthInterceptor) authenticate(ctx context.Context, procedure string, header http.Header) (context.Context, error) {
	if slices.Contains(i.public, procedure) {
		// Public calls still see a valid identity when one is presented.
		if token, err := bearer(header); err == nil {
			if claims, err := i.jwt.Validate(token); err == nil {
				ctx = WithIdentity(ctx, claims.Identity())
			}
		}
		return ctx, nil
	}

	token, err := bearer(header)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}
	claims, err := i.jwt.Validate(token)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}
	return WithIdentity(ctx, claims.Identity()), nil
}

func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.authenticate(ctx, req.Spec().Procedure, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.Spec().Procedure, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func bearer(header http.Header) (string, error) {
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

// BearerToken is a client interceptor attaching the token returned by token() to every call.
// An empty token sends no header.
func BearerToken(token func() string) connect.Interceptor {
	return &bearerInterceptor{token: token}
}

type bearerInterceptor struct {
	token func() string
}

func (b *bearerInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if t := b.token(); t != "" && req.Spec().IsClient {
			req.Header().Set("Authorization", "Bearer "+t)
		}
		return next(ctx, req)
	}
}

func (b *bearerInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if t := b.token(); t != "" {
			conn.RequestHeader().Set("Authorization", "Bearer "+t)
		}
		return conn
	}
}

func (b *bearerInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
