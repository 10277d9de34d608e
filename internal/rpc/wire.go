// Package rpc defines the Connect services spoken between splitqr clients and the server:
// procedure names, handler constructors, clients and the structpb encodings of each
// message. Messages are google.protobuf.Struct values, so no generated code is needed.
package rpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/models"
)

// DocumentRequest is the payload of every DocumentService call. Fields are ignored by
// Get and Watch; the precondition only applies to Update.
type DocumentRequest struct {
	Ref             docstore.Ref
	Fields          docstore.Fields
	ExpectVersion   int64
	HasPrecondition bool
}

// EncodeDocumentRequest converts a request into its wire form.
func EncodeDocumentRequest(r DocumentRequest) (*structpb.Struct, error) {
	m := map[string]any{
		"collection": r.Ref.Collection,
		"id":         r.Ref.ID,
	}
	if r.Fields != nil {
		fields, err := docstore.Normalize(r.Fields)
		if err != nil {
			return nil, err
		}
		m["fields"] = map[string]any(fields)
	}
	if r.HasPrecondition {
		m["expectVersion"] = r.ExpectVersion
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return s, nil
}

// DecodeDocumentRequest parses a request received on the wire.
func DecodeDocumentRequest(s *structpb.Struct) (DocumentRequest, error) {
	m := s.AsMap()
	r := DocumentRequest{
		Ref: docstore.Ref{Collection: stringField(m, "collection"), ID: stringField(m, "id")},
	}
	if err := r.Ref.Validate(); err != nil {
		return DocumentRequest{}, err
	}
	if raw, ok := m["fields"]; ok {
		fields, ok := raw.(map[string]any)
		if !ok {
			return DocumentRequest{}, fmt.Errorf("%w: fields must be an object", docstore.ErrInvalidFields)
		}
		r.Fields = docstore.Fields(fields)
	}
	if raw, ok := m["expectVersion"]; ok {
		v, ok := raw.(float64)
		if !ok {
			return DocumentRequest{}, fmt.Errorf("%w: expectVersion must be a number", docstore.ErrInvalidFields)
		}
		r.ExpectVersion = int64(v)
		r.HasPrecondition = true
	}
	return r, nil
}

// EncodeSnapshot converts a snapshot into its wire form.
func EncodeSnapshot(snap docstore.Snapshot) (*structpb.Struct, error) {
	m := map[string]any{
		"collection": snap.Ref.Collection,
		"id":         snap.Ref.ID,
		"exists":     snap.Exists,
		"version":    snap.Version,
	}
	if !snap.UpdatedAt.IsZero() {
		m["updatedAt"] = snap.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if snap.Exists {
		fields, err := docstore.Normalize(snap.Fields)
		if err != nil {
			return nil, err
		}
		m["fields"] = map[string]any(fields)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s, nil
}

// DecodeSnapshot parses a snapshot received on the wire.
func DecodeSnapshot(s *structpb.Struct) (docstore.Snapshot, error) {
	m := s.AsMap()
	snap := docstore.Snapshot{
		Ref:     docstore.Ref{Collection: stringField(m, "collection"), ID: stringField(m, "id")},
		Exists:  boolField(m, "exists"),
		Version: int64(numberField(m, "version")),
	}
	if raw := stringField(m, "updatedAt"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return docstore.Snapshot{}, fmt.Errorf("invalid updatedAt: %w", err)
		}
		snap.UpdatedAt = t
	}
	if fields, ok := m["fields"].(map[string]any); ok {
		snap.Fields = docstore.Fields(fields)
	}
	return snap, nil
}

// EncodeWriteResult carries the version a write produced.
func EncodeWriteResult(version int64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"version": structpb.NewNumberValue(float64(version)),
	}}
}

// DecodeWriteResult extracts the version a write produced.
func DecodeWriteResult(s *structpb.Struct) int64 {
	return int64(numberField(s.AsMap(), "version"))
}

// AuthResult is the response of every AuthService call.
type AuthResult struct {
	Token    string
	Identity models.Identity
}

// EncodeAuthResult converts an auth response into its wire form.
func EncodeAuthResult(r AuthResult) *structpb.Struct {
	identity := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(r.Identity.ID),
		"displayName": structpb.NewStringValue(r.Identity.DisplayName),
		"email":       structpb.NewStringValue(r.Identity.Email),
		"photoURL":    structpb.NewStringValue(r.Identity.PhotoURL),
		"isAnonymous": structpb.NewBoolValue(r.Identity.IsAnonymous),
	}}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"token":    structpb.NewStringValue(r.Token),
		"identity": structpb.NewStructValue(identity),
	}}
}

// DecodeAuthResult parses an auth response.
func DecodeAuthResult(s *structpb.Struct) AuthResult {
	m := s.AsMap()
	identity, _ := m["identity"].(map[string]any)
	return AuthResult{
		Token: stringField(m, "token"),
		Identity: models.Identity{
			ID:          stringField(identity, "id"),
			DisplayName: stringField(identity, "displayName"),
			Email:       stringField(identity, "email"),
			PhotoURL:    stringField(identity, "photoURL"),
			IsAnonymous: boolField(identity, "isAnonymous"),
		},
	}
}

// Credentials is the payload of the sign-in calls. Unused fields stay empty.
type Credentials struct {
	Email       string
	DisplayName string
	Password    string
}

// EncodeCredentials converts credentials into their wire form.
func EncodeCredentials(c Credentials) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"email":       structpb.NewStringValue(c.Email),
		"displayName": structpb.NewStringValue(c.DisplayName),
		"password":    structpb.NewStringValue(c.Password),
	}}
}

// DecodeCredentials parses credentials.
func DecodeCredentials(s *structpb.Struct) Credentials {
	m := s.AsMap()
	return Credentials{
		Email:       stringField(m, "email"),
		DisplayName: stringField(m, "displayName"),
		Password:    stringField(m, "password"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func numberField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
