// Package remote is a docstore.Store backed by a DocumentService across the network.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/rpc"
)

// Ensure Client implements docstore.Store
var _ docstore.Store = (*Client)(nil)

// ErrStreamClosed reports that the server ended a watch stream.
var ErrStreamClosed = errors.New("watch stream closed by server")

// Client implements docstore.Store over Connect.
type Client struct {
	rpc *rpc.DocumentServiceClient

	mu      sync.Mutex
	closed  bool
	cancels map[int]func()
	nextID  int
}

// New creates a client for the DocumentService at baseURL.
func New(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		rpc:     rpc.NewDocumentServiceClient(httpClient, baseURL, opts...),
		cancels: make(map[int]func()),
	}
}

func (c *Client) check(ref docstore.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return docstore.ErrClosed
	}
	return nil
}

func (c *Client) request(ref docstore.Ref, fields docstore.Fields, opts docstore.UpdateOptions) (*connect.Request[structpb.Struct], error) {
	if fields == nil && opts.HasPrecondition {
		fields = docstore.Fields{}
	}
	msg, err := rpc.EncodeDocumentRequest(rpc.DocumentRequest{
		Ref:             ref,
		Fields:          fields,
		ExpectVersion:   opts.ExpectVersion,
		HasPrecondition: opts.HasPrecondition,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewRequest(msg), nil
}

// Get fetches the current snapshot.
func (c *Client) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := c.check(ref); err != nil {
		return docstore.Snapshot{}, err
	}
	req, err := c.request(ref, nil, docstore.UpdateOptions{})
	if err != nil {
		return docstore.Snapshot{}, err
	}
	resp, err := c.rpc.Get(ctx, req)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("get %s: %w", ref, rpc.FromConnectError(err))
	}
	return rpc.DecodeSnapshot(resp.Msg)
}

// Create writes a new document.
func (c *Client) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	return c.write(ctx, ref, fields, docstore.UpdateOptions{}, c.rpc.Create)
}

// Set creates or replaces a document.
func (c *Client) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	if fields == nil {
		fields = docstore.Fields{}
	}
	return c.write(ctx, ref, fields, docstore.UpdateOptions{}, c.rpc.Set)
}

// Update merges fields into a document.
func (c *Client) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts ...docstore.UpdateOption) (int64, error) {
	return c.write(ctx, ref, fields, docstore.NewUpdateOptions(opts...), c.rpc.Update)
}

type unaryCall func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

func (c *Client) write(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts docstore.UpdateOptions, call unaryCall) (int64, error) {
	if err := c.check(ref); err != nil {
		return 0, err
	}
	req, err := c.request(ref, fields, opts)
	if err != nil {
		return 0, err
	}
	resp, err := call(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", ref, rpc.FromConnectError(err))
	}
	return rpc.DecodeWriteResult(resp.Msg), nil
}

// Watch opens a server stream for ref. A stream that fails or ends is reported once through
// onError; the watch does not reconnect.
func (c *Client) Watch(ctx context.Context, ref docstore.Ref, onSnapshot func(docstore.Snapshot), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	stop := sync.OnceFunc(cancel)

	report := func(err error) {
		if ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}

	if err := c.check(ref); err != nil {
		go report(err)
		return stop
	}
	req, err := c.request(ref, nil, docstore.UpdateOptions{})
	if err != nil {
		go report(err)
		return stop
	}

	id := c.track(cancel)
	go func() {
		defer c.untrack(id)

		stream, err := c.rpc.Watch(ctx, req)
		if err != nil {
			report(rpc.FromConnectError(err))
			return
		}
		defer stream.Close()

		for stream.Receive() {
			snap, err := rpc.DecodeSnapshot(stream.Msg())
			if err != nil {
				report(err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			onSnapshot(snap)
		}
		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			report(rpc.FromConnectError(err))
			return
		}
		report(ErrStreamClosed)
	}()
	return stop
}

func (c *Client) track(cancel func()) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.cancels[id] = cancel
	return id
}

func (c *Client) untrack(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, id)
}

// Close cancels every open watch; later calls fail with docstore.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	return nil
}
