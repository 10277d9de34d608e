package cli

import (
	"context"

	"github.com/mmynk/splitqr/internal/session"
)

type sessionFunc func(s *session.Session, changes <-chan struct{}) error

// runSession opens a live session on the client's bill for the duration of fn. Session
// changes are signalled on changes, coalesced.
func (c *client) runSession(ctx context.Context, onError func(error), fn sessionFunc) error {
	changes := make(chan struct{}, 1)
	opts := session.Options{
		BillID: c.billID,
		Store:  c.bills,
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
		OnError: onError,
		Logger:  c.logger,
	}
	return session.Run(ctx, opts, func(s *session.Session) error {
		return fn(s, changes)
	})
}

// waitFor blocks until cond holds, re-checking on every change.
func waitFor(ctx context.Context, changes <-chan struct{}, cond func() bool) error {
	for !cond() {
		select {
		case <-changes:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func loaded(s *session.Session) func() bool {
	return func() bool { return !s.Loading() }
}
