package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/middleware"
	"github.com/mmynk/splitqr/internal/rpc"
)

// Ensure DocumentService implements the handler interface
var _ rpc.DocumentServiceHandler = (*DocumentService)(nil)

// DocumentService exposes a docstore.Store over Connect. Only allowlisted collections are
// reachable; everything else is PermissionDenied.
type DocumentService struct {
	store       docstore.Store
	collections []string
	writable    map[string][]string
	logger      *slog.Logger
}

// NewDocumentService serves store, exposing only the given collections.
func NewDocumentService(store docstore.Store, logger *slog.Logger, collections ...string) *DocumentService {
	return &DocumentService{store: store, collections: collections, writable: map[string][]string{}, logger: logger}
}

// WithWritableFields narrows writes to collection: updates may only touch fields and must
// carry a version precondition, and replacing a whole document needs a registered identity.
func (s *DocumentService) WithWritableFields(collection string, fields ...string) *DocumentService {
	s.writable[collection] = fields
	return s
}

// checkUpdate enforces the collection's write restrictions on an update.
func (s *DocumentService) checkUpdate(ctx context.Context, r rpc.DocumentRequest) error {
	fields, restricted := s.writable[r.Ref.Collection]
	if !restricted {
		return nil
	}
	for name := range r.Fields {
		if !slices.Contains(fields, name) {
			s.logger.Warn("Rejected update", "ref", r.Ref, "field", name, "user_id", middleware.GetUserID(ctx))
			return connect.NewError(connect.CodePermissionDenied,
				fmt.Errorf("field %q of %s is not writable", name, r.Ref.Collection))
		}
	}
	if !r.HasPrecondition {
		return connect.NewError(connect.CodeFailedPrecondition,
			fmt.Errorf("updates to %s need a version precondition", r.Ref.Collection))
	}
	return nil
}

// checkReplace allows whole-document replacement in a restricted collection only to
// registered identities.
func (s *DocumentService) checkReplace(ctx context.Context, r rpc.DocumentRequest) error {
	if _, restricted := s.writable[r.Ref.Collection]; !restricted {
		return nil
	}
	identity, ok := middleware.GetIdentity(ctx)
	if !ok || identity.IsAnonymous {
		s.logger.Warn("Rejected replace", "ref", r.Ref, "user_id", identity.ID)
		return connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("replacing %s documents needs a registered account", r.Ref.Collection))
	}
	return nil
}

func (s *DocumentService) decode(ctx context.Context, msg *structpb.Struct) (rpc.DocumentRequest, error) {
	req, err := rpc.DecodeDocumentRequest(msg)
	if err != nil {
		return rpc.DocumentRequest{}, rpc.ToConnectError(err)
	}
	if !slices.Contains(s.collections, req.Ref.Collection) {
		s.logger.Warn("Rejected document request", "ref", req.Ref, "user_id", middleware.GetUserID(ctx))
		return rpc.DocumentRequest{}, connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("collection %q is not exposed", req.Ref.Collection))
	}
	return req, nil
}

// Get returns the current snapshot of a document.
func (s *DocumentService) Get(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	r, err := s.decode(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, r.Ref)
	if err != nil {
		s.logger.Error("Get failed", "ref", r.Ref, "error", err)
		return nil, rpc.ToConnectError(err)
	}
	msg, err := rpc.EncodeSnapshot(snap)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Create writes a new document.
func (s *DocumentService) Create(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	r, err := s.decode(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	version, err := s.store.Create(ctx, r.Ref, r.Fields)
	if err != nil {
		s.logger.Warn("Create failed", "ref", r.Ref, "error", err)
		return nil, rpc.ToConnectError(err)
	}
	s.logger.Info("Document created", "ref", r.Ref, "user_id", middleware.GetUserID(ctx))
	return connect.NewResponse(rpc.EncodeWriteResult(version)), nil
}

// Set creates or replaces a document.
func (s *DocumentService) Set(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	r, err := s.decode(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.checkReplace(ctx, r); err != nil {
		return nil, err
	}
	version, err := s.store.Set(ctx, r.Ref, r.Fields)
	if err != nil {
		s.logger.Error("Set failed", "ref", r.Ref, "error", err)
		return nil, rpc.ToConnectError(err)
	}
	s.logger.Debug("Document set", "ref", r.Ref, "version", version)
	return connect.NewResponse(rpc.EncodeWriteResult(version)), nil
}

// Update merges fields into a document, honoring an optional version precondition.
func (s *DocumentService) Update(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	r, err := s.decode(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.checkUpdate(ctx, r); err != nil {
		return nil, err
	}
	var opts []docstore.UpdateOption
	if r.HasPrecondition {
		opts = append(opts, docstore.WithVersion(r.ExpectVersion))
	}
	version, err := s.store.Update(ctx, r.Ref, r.Fields, opts...)
	if err != nil {
		s.logger.Debug("Update failed", "ref", r.Ref, "error", err)
		return nil, rpc.ToConnectError(err)
	}
	s.logger.Debug("Document updated", "ref", r.Ref, "version", version, "user_id", middleware.GetUserID(ctx))
	return connect.NewResponse(rpc.EncodeWriteResult(version)), nil
}

// Watch streams the document's snapshots until the client goes away.
func (s *DocumentService) Watch(ctx context.Context, req *connect.Request[structpb.Struct], stream *connect.ServerStream[structpb.Struct]) error {
	r, err := s.decode(ctx, req.Msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snaps := make(chan docstore.Snapshot, 1)
	failed := make(chan error, 1)
	stop := s.store.Watch(ctx, r.Ref,
		func(snap docstore.Snapshot) {
			// Keep only the newest pending snapshot.
			select {
			case <-snaps:
			default:
			}
			snaps <- snap
		},
		func(err error) {
			failed <- err
		},
	)
	defer stop()

	s.logger.Debug("Watch started", "ref", r.Ref)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Watch ended", "ref", r.Ref)
			return nil
		case err := <-failed:
			s.logger.Error("Watch failed", "ref", r.Ref, "error", err)
			return rpc.ToConnectError(err)
		case snap := <-snaps:
			msg, err := rpc.EncodeSnapshot(snap)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
