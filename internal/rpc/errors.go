package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/splitqr/internal/docstore"
)

// ToConnectError maps store errors onto Connect codes for the wire.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, docstore.ErrAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, docstore.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, docstore.ErrInvalidRef), errors.Is(err, docstore.ErrInvalidFields):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, docstore.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// FromConnectError maps Connect codes received from the server back onto store errors,
// so callers can keep matching with errors.Is.
func FromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return err
	}
	msg := connectErr.Message()
	switch connectErr.Code() {
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, msg)
	case connect.CodeAlreadyExists:
		return fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, msg)
	case connect.CodeAborted:
		return fmt.Errorf("%w: %s", docstore.ErrConflict, msg)
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", docstore.ErrInvalidFields, msg)
	default:
		return err
	}
}
