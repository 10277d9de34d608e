package session

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/mmynk/splitqr/internal/billstore"
	"github.com/mmynk/splitqr/internal/calculator"
	"github.com/mmynk/splitqr/internal/models"
)

// write is one mutation: apply changes the bill in view, remote performs it against the store.
type write struct {
	name   string
	apply  func(models.Bill) models.Bill
	remote func(ctx context.Context) error
	onFail func()
}

// reject fails a write that never left the session. Callers must not hold s.mu.
func (w write) reject(err error) *Pending {
	if w.onFail != nil {
		w.onFail()
	}
	return resolved(err)
}

// dispatch is the single point deciding the write path. The bill in view changes at once in
// either mode; only a remote source sends the write to the store.
func (s *Session) dispatch(w write) *Pending {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return w.reject(ErrClosed)
	}
	if s.src == nil {
		s.mu.Unlock()
		return w.reject(ErrNotOpen)
	}
	if s.bill != nil && s.bill.Status == models.BillStatusClosed {
		s.mu.Unlock()
		return w.reject(fmt.Errorf("%s: %w", w.name, billstore.ErrBillClosed))
	}
	if s.bill != nil {
		next := w.apply(*s.bill)
		s.bill = &next
	}
	src := s.src
	s.mu.Unlock()
	s.notify()

	switch src.(type) {
	case localSource:
		s.logger.Debug("Applied write locally", "op", w.name)
		return resolved(nil)
	case remoteSource:
		return s.enqueue(w)
	default:
		return resolved(ErrNotOpen)
	}
}

func (s *Session) enqueue(w write) *Pending {
	p := newPending()
	job := func() {
		if s.ctx.Err() != nil {
			p.resolve(ErrClosed)
			return
		}
		err := w.remote(s.ctx)
		if err == nil {
			p.resolve(nil)
			return
		}
		err = fmt.Errorf("%s: %w", w.name, err)
		s.logger.Warn("Write failed", "op", w.name, "error", err)
		if w.onFail != nil {
			w.onFail()
		}
		s.report(err)
		s.resync()
		p.resolve(err)
	}

	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return w.reject(ErrClosed)
	}
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return p
}

// resync replaces the view with the stored bill after a failed write. If a snapshot arrives
// meanwhile it wins; if the read fails the view stays as it is.
func (s *Session) resync() {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	bill, err := s.opts.Store.Get(s.ctx, s.opts.BillID)
	if err != nil {
		s.logger.Warn("Resync failed, view may differ from the store", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.bill = bill
	s.mu.Unlock()
	s.notify()
}

// Assign toggles participantID's claim on itemID. An empty participantID means the current
// participant. Unknown items and participants change nothing.
func (s *Session) Assign(itemID, participantID string) *Pending {
	if participantID == "" {
		participantID = s.CurrentParticipantID()
		if participantID == "" {
			return resolved(ErrNoParticipant)
		}
	}
	return s.dispatch(write{
		name: "assign",
		apply: func(bill models.Bill) models.Bill {
			if _, ok := bill.Item(itemID); !ok || !bill.HasParticipant(participantID) {
				return bill
			}
			return calculator.ToggleAssignment(bill, itemID, participantID)
		},
		remote: func(ctx context.Context) error {
			return s.opts.Store.Assign(ctx, s.opts.BillID, itemID, participantID)
		},
	})
}

// NewGuest builds a participant for a person added by name.
func NewGuest(name string) models.Participant {
	return models.Participant{
		ID:       GuestPrefix + uuid.NewString(),
		Initials: models.Initials(name),
		Color:    models.Palette[rand.IntN(len(models.Palette))],
		Name:     name,
	}
}

// AddParticipant adds a guest by name and returns the participant created.
func (s *Session) AddParticipant(name string) (models.Participant, *Pending) {
	p := NewGuest(name)
	if err := p.Validate(); err != nil {
		return p, resolved(err)
	}
	return p, s.addParticipant(p, nil)
}

// AddExisting adds an already-built participant, such as a signed-in identity.
func (s *Session) AddExisting(p models.Participant) *Pending {
	if err := p.Validate(); err != nil {
		return resolved(err)
	}
	return s.addParticipant(p, nil)
}

func (s *Session) addParticipant(p models.Participant, onFail func()) *Pending {
	return s.dispatch(write{
		name: "add_participant",
		apply: func(bill models.Bill) models.Bill {
			out, _ := calculator.WithParticipant(bill, p)
			return out
		},
		remote: func(ctx context.Context) error {
			return s.opts.Store.AddParticipant(ctx, s.opts.BillID, p)
		},
		onFail: onFail,
	})
}

// RemoveParticipant removes the participant and their claims. Removing the current
// participant clears the current ID.
func (s *Session) RemoveParticipant(participantID string) *Pending {
	s.mu.Lock()
	if s.current == participantID && !s.closed && s.bill != nil && s.bill.Status != models.BillStatusClosed {
		s.current = ""
	}
	s.mu.Unlock()

	return s.dispatch(write{
		name: "remove_participant",
		apply: func(bill models.Bill) models.Bill {
			return calculator.WithoutParticipant(bill, participantID)
		},
		remote: func(ctx context.Context) error {
			return s.opts.Store.RemoveParticipant(ctx, s.opts.BillID, participantID)
		},
	})
}
