package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/auth"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/models"
	"github.com/mmynk/splitqr/internal/rpc"
)

// Ensure AuthService implements the handler interface
var _ rpc.AuthServiceHandler = (*AuthService)(nil)

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

func (s *AuthService) respond(identity models.Identity) (*connect.Response[structpb.Struct], error) {
	token, err := s.jwtManager.Generate(identity)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", identity.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(rpc.EncodeAuthResult(rpc.AuthResult{Token: token, Identity: identity})), nil
}

// SignInAnonymously issues a guest identity.
func (s *AuthService) SignInAnonymously(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	creds := rpc.DecodeCredentials(req.Msg)
	identity := auth.NewAnonymousIdentity(creds.DisplayName)
	s.logger.Info("Anonymous sign-in", "user_id", identity.ID)
	return s.respond(identity)
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	creds := rpc.DecodeCredentials(req.Msg)
	s.logger.Info("Register request", "email", creds.Email)

	if creds.Email == "" || creds.DisplayName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Register(ctx, creds.Email, creds.DisplayName, creds.Password)
	if err != nil {
		s.logger.Error("Registration failed", "email", creds.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			return nil, connect.NewError(connect.CodeAlreadyExists, err)
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidCredentials):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		default:
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return s.respond(user.Identity())
}

// SignIn authenticates a user and returns a JWT token.
func (s *AuthService) SignIn(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	creds := rpc.DecodeCredentials(req.Msg)
	s.logger.Info("Sign-in request", "email", creds.Email)

	if creds.Email == "" || creds.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		s.logger.Warn("Sign-in failed", "email", creds.Email, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	s.logger.Info("User signed in", "user_id", user.ID)
	return s.respond(user.Identity())
}

// GetCurrentIdentity returns the identity the caller's token was issued for, with a fresh token.
func (s *AuthService) GetCurrentIdentity(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	s.logger.Debug("GetCurrentIdentity request", "user_id", identity.ID)
	return s.respond(identity)
}
