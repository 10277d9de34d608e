// Package billstore bridges bills to documents in a docstore.Store: live subscription,
// translation between the two shapes, and the claim and membership writes.
//
// Every write is a read-modify-write guarded by the document version, so concurrent writers
// never overwrite each other's changes; a conflicting write is re-read and re-applied.
package billstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitqr/internal/calculator"
	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/models"
)

// DefaultMaxAttempts bounds the read-modify-write retries of one write.
const DefaultMaxAttempts = 5

// Adapter reads and writes bills in a document store.
type Adapter struct {
	store       docstore.Store
	logger      *slog.Logger
	maxAttempts int
}

// New creates an adapter over store.
func New(store docstore.Store, logger *slog.Logger) *Adapter {
	return &Adapter{store: store, logger: logger, maxAttempts: DefaultMaxAttempts}
}

// Subscribe delivers the bill on every change until the returned function is called.
// A missing document is delivered as nil. Transport failures and documents that cannot be
// translated go to onError.
func (a *Adapter) Subscribe(ctx context.Context, billID string, onUpdate func(*models.Bill), onError func(error)) (unsubscribe func()) {
	return a.store.Watch(ctx, Ref(billID),
		func(snap docstore.Snapshot) {
			bill, err := FromSnapshot(snap)
			if err != nil {
				a.logger.Warn("Dropping untranslatable bill", "bill_id", billID, "version", snap.Version, "error", err)
				if onError != nil {
					onError(err)
				}
				return
			}
			onUpdate(bill)
		},
		func(err error) {
			a.logger.Warn("Bill subscription failed", "bill_id", billID, "error", err)
			if onError != nil {
				onError(err)
			}
		},
	)
}

// Get reads the bill once.
func (a *Adapter) Get(ctx context.Context, billID string) (*models.Bill, error) {
	snap, err := a.store.Get(ctx, Ref(billID))
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", billID, err)
	}
	bill, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, fmt.Errorf("%w: %s", ErrBillNotFound, billID)
	}
	return bill, nil
}

// Create stores a new bill, failing with ErrBillExists if the document is present.
func (a *Adapter) Create(ctx context.Context, bill models.Bill) error {
	fields, err := ToDocument(bill)
	if err != nil {
		return err
	}
	if _, err := a.store.Create(ctx, Ref(bill.ID), fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrBillExists, bill.ID)
		}
		return fmt.Errorf("create bill %s: %w", bill.ID, err)
	}
	a.logger.Info("Bill created", "bill_id", bill.ID, "items", len(bill.Items))
	return nil
}

// Put creates or replaces the bill.
func (a *Adapter) Put(ctx context.Context, bill models.Bill) error {
	fields, err := ToDocument(bill)
	if err != nil {
		return err
	}
	if _, err := a.store.Set(ctx, Ref(bill.ID), fields); err != nil {
		return fmt.Errorf("put bill %s: %w", bill.ID, err)
	}
	return nil
}

// Assign toggles participantID's claim on itemID and writes the item list back.
// Unknown items and participants are no-ops.
func (a *Adapter) Assign(ctx context.Context, billID, itemID, participantID string) error {
	return a.mutate(ctx, billID, "assign", func(bill models.Bill) (docstore.Fields, error) {
		if bill.Status == models.BillStatusClosed {
			return nil, fmt.Errorf("%w: %s", ErrBillClosed, billID)
		}
		if _, ok := bill.Item(itemID); !ok || !bill.HasParticipant(participantID) {
			return nil, nil
		}
		return itemsPatch(calculator.ToggleAssignment(bill, itemID, participantID).Items)
	})
}

// AddParticipant appends p to the bill. A participant already present is a no-op.
func (a *Adapter) AddParticipant(ctx context.Context, billID string, p models.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return a.mutate(ctx, billID, "add_participant", func(bill models.Bill) (docstore.Fields, error) {
		if bill.Status == models.BillStatusClosed {
			return nil, fmt.Errorf("%w: %s", ErrBillClosed, billID)
		}
		out, added := calculator.WithParticipant(bill, p)
		if !added {
			return nil, nil
		}
		return participantsPatch(out.Participants)
	})
}

// RemoveParticipant removes the participant and strips their claims in one document update.
func (a *Adapter) RemoveParticipant(ctx context.Context, billID, participantID string) error {
	return a.mutate(ctx, billID, "remove_participant", func(bill models.Bill) (docstore.Fields, error) {
		if bill.Status == models.BillStatusClosed {
			return nil, fmt.Errorf("%w: %s", ErrBillClosed, billID)
		}
		if !calculator.References(bill, participantID) {
			return nil, nil
		}
		return membershipPatch(calculator.WithoutParticipant(bill, participantID))
	})
}

// SetStatus closes or reopens the bill.
func (a *Adapter) SetStatus(ctx context.Context, billID string, status models.BillStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown bill status %q", status)
	}
	return a.mutate(ctx, billID, "set_status", func(bill models.Bill) (docstore.Fields, error) {
		if bill.Status == status {
			return nil, nil
		}
		return docstore.Fields{"status": string(status)}, nil
	})
}

// mutate applies change to the latest bill under a version precondition, retrying on
// conflict. A nil patch from change means there is nothing to write.
func (a *Adapter) mutate(ctx context.Context, billID, op string, change func(models.Bill) (docstore.Fields, error)) error {
	ref := Ref(billID)
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		snap, err := a.store.Get(ctx, ref)
		if err != nil {
			return fmt.Errorf("%s: read bill %s: %w", op, billID, err)
		}
		bill, err := FromSnapshot(snap)
		if err != nil {
			return err
		}
		if bill == nil {
			return fmt.Errorf("%s: %w: %s", op, ErrBillNotFound, billID)
		}

		patch, err := change(*bill)
		if err != nil {
			return err
		}
		if patch == nil {
			a.logger.Debug("Bill write skipped", "op", op, "bill_id", billID)
			return nil
		}

		version, err := a.store.Update(ctx, ref, patch, docstore.WithVersion(snap.Version))
		if err == nil {
			a.logger.Debug("Bill written", "op", op, "bill_id", billID, "version", version)
			return nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return fmt.Errorf("%s: write bill %s: %w", op, billID, err)
		}
		a.logger.Debug("Bill write conflicted, retrying", "op", op, "bill_id", billID, "attempt", attempt)
	}
	return fmt.Errorf("%s: %w after %d attempts", op, ErrTooMuchContention, a.maxAttempts)
}
