package auth

import (
	"context"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/rpc"
)

// Client signs in against a remote AuthService and records the result in a State.
type Client struct {
	rpc   *rpc.AuthServiceClient
	state *State
}

// NewClient creates a client for the AuthService at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, state *State, opts ...connect.ClientOption) *Client {
	return &Client{rpc: rpc.NewAuthServiceClient(httpClient, baseURL, opts...), state: state}
}

// State returns the state the client resolves.
func (c *Client) State() *State { return c.state }

// SignInAnonymously obtains a guest identity.
func (c *Client) SignInAnonymously(ctx context.Context, displayName string) (rpc.AuthResult, error) {
	return c.call(ctx, c.rpc.SignInAnonymously, rpc.Credentials{DisplayName: displayName})
}

// Register creates a password account and signs in as it.
func (c *Client) Register(ctx context.Context, email, displayName, password string) (rpc.AuthResult, error) {
	return c.call(ctx, c.rpc.Register, rpc.Credentials{Email: email, DisplayName: displayName, Password: password})
}

// SignIn authenticates a password account.
func (c *Client) SignIn(ctx context.Context, email, password string) (rpc.AuthResult, error) {
	return c.call(ctx, c.rpc.SignIn, rpc.Credentials{Email: email, Password: password})
}

// Restore resumes the identity a saved token was issued for. The state then holds a
// fresh token for the same identity.
func (c *Client) Restore(ctx context.Context, token string) (rpc.AuthResult, error) {
	req := connect.NewRequest(&structpb.Struct{})
	req.Header().Set("Authorization", "Bearer "+token)
	resp, err := c.rpc.GetCurrentIdentity(ctx, req)
	if err != nil {
		c.state.Settle()
		return rpc.AuthResult{}, err
	}
	result := rpc.DecodeAuthResult(resp.Msg)
	c.state.Resolve(result.Identity, result.Token)
	return result, nil
}

type authCall func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

func (c *Client) call(ctx context.Context, fn authCall, creds rpc.Credentials) (rpc.AuthResult, error) {
	resp, err := fn(ctx, connect.NewRequest(rpc.EncodeCredentials(creds)))
	if err != nil {
		c.state.Settle()
		return rpc.AuthResult{}, err
	}
	result := rpc.DecodeAuthResult(resp.Msg)
	c.state.Resolve(result.Identity, result.Token)
	return result, nil
}
