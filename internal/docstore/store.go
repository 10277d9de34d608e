// Package docstore provides a generic subscribable document store: documents addressed by
// collection and ID, holding JSON-shaped fields, versioned on every write and observable
// through live watches.
//
// Backends live in subpackages (sqlite, postgres, remote); NewMemory is the in-process one.
// Every backend shares the same contract, exercised by docstore/storetest.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrConflict      = errors.New("document version conflict")
	ErrInvalidRef    = errors.New("invalid document reference")
	ErrInvalidFields = errors.New("invalid document fields")
	ErrClosed        = errors.New("store closed")
)

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

// Doc is shorthand for Ref{collection, id}.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Validate rejects empty or slash-containing segments.
func (r Ref) Validate() error {
	if r.Collection == "" || r.ID == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, r.String())
	}
	if strings.Contains(r.Collection, "/") || strings.Contains(r.ID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, r.String())
	}
	return nil
}

// Fields are the top-level fields of a document. Values are JSON-shaped:
// string, float64, bool, nil, []any and map[string]any.
type Fields map[string]any

// Snapshot is the state of a document at one version.
// A missing document has Exists false and Version 0.
type Snapshot struct {
	Ref       Ref
	Exists    bool
	Version   int64
	UpdatedAt time.Time
	Fields    Fields
}

// Store is a realtime document service.
//
// Versions start at 1 on creation and grow by exactly one per write. Update merges the given
// top-level fields into the document in a single atomic write.
type Store interface {
	// Get returns the current snapshot. A missing document is not an error.
	Get(ctx context.Context, ref Ref) (Snapshot, error)

	// Create writes a new document, failing with ErrAlreadyExists if one is present.
	Create(ctx context.Context, ref Ref, fields Fields) (int64, error)

	// Set creates or replaces the document.
	Set(ctx context.Context, ref Ref, fields Fields) (int64, error)

	// Update merges fields into an existing document (ErrNotFound otherwise).
	// WithVersion makes the write conditional (ErrConflict on mismatch).
	Update(ctx context.Context, ref Ref, fields Fields, opts ...UpdateOption) (int64, error)

	// Watch delivers the current snapshot and then every later one until stop is called or
	// ctx ends. Bursts coalesce to the latest version and callbacks run serially.
	// Failures to establish or keep the watch are reported once through onError.
	Watch(ctx context.Context, ref Ref, onSnapshot func(Snapshot), onError func(error)) (stop func())

	// Close releases any resources held by the store.
	Close() error
}

// UpdateOption configures a single Update call.
type UpdateOption func(*UpdateOptions)

// UpdateOptions is the resolved form of a set of UpdateOption values.
type UpdateOptions struct {
	ExpectVersion   int64
	HasPrecondition bool
}

// WithVersion makes an update apply only if the document is still at version v.
func WithVersion(v int64) UpdateOption {
	return func(o *UpdateOptions) {
		o.ExpectVersion = v
		o.HasPrecondition = true
	}
}

// NewUpdateOptions resolves opts. Backends call it.
func NewUpdateOptions(opts ...UpdateOption) UpdateOptions {
	var o UpdateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Check enforces the precondition against the current version.
func (o UpdateOptions) Check(ref Ref, current int64) error {
	if o.HasPrecondition && o.ExpectVersion != current {
		return fmt.Errorf("%w: %s is at version %d, expected %d", ErrConflict, ref, current, o.ExpectVersion)
	}
	return nil
}
