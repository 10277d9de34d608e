// Package session holds the application state of one open bill: the bill itself, where it
// comes from, the current participant and view, and the writes made against it.
//
// A session mirrors the shared document while it can and degrades to a local bill when the
// document is missing or the subscription fails. Writes are applied to the view at once and
// sent to the store in order on a single writer; their outcome arrives through a Pending.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/splitqr/internal/autojoin"
	"github.com/mmynk/splitqr/internal/billstore"
	"github.com/mmynk/splitqr/internal/calculator"
	"github.com/mmynk/splitqr/internal/models"
)

var (
	ErrClosed        = errors.New("session closed")
	ErrNotOpen       = errors.New("session not open")
	ErrNoParticipant = errors.New("no current participant")
	ErrUnknownView   = errors.New("unknown view")
)

// GuestPrefix starts the ID of every participant added by name.
const GuestPrefix = "guest_"

// View is the screen the session is showing.
type View string

const (
	ViewOrder        View = "order"
	ViewCheckout     View = "checkout"
	ViewParticipants View = "participants"
)

// Store is the bill store a session reads and writes. *billstore.Adapter implements it.
type Store interface {
	Subscribe(ctx context.Context, billID string, onUpdate func(*models.Bill), onError func(error)) (unsubscribe func())
	Get(ctx context.Context, billID string) (*models.Bill, error)
	Assign(ctx context.Context, billID, itemID, participantID string) error
	AddParticipant(ctx context.Context, billID string, p models.Participant) error
	RemoveParticipant(ctx context.Context, billID, participantID string) error
}

var _ Store = (*billstore.Adapter)(nil)

// Options configure a session.
type Options struct {
	// BillID defaults to models.DefaultBillID.
	BillID string

	Store Store

	// Fallback builds the local bill when the document is unavailable.
	// Defaults to models.SampleBill under BillID.
	Fallback func(billID string) models.Bill

	// OnChange runs after every change to the session's state.
	OnChange func()

	// OnError receives subscription and write failures.
	OnError func(error)

	Logger *slog.Logger
}

// Session is the state of one open bill. Its methods are safe for concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger
	joiner *autojoin.Joiner

	mu         sync.Mutex
	src        source
	bill       *models.Bill
	generation int
	loading    bool
	current    string
	view       View
	identity   *models.Identity
	closed     bool

	joinMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []func()
	wake    chan struct{}
	writers sync.WaitGroup
}

// New validates opts and creates a session. Call Open to start it.
func New(opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.BillID == "" {
		opts.BillID = models.DefaultBillID
	}
	if opts.Fallback == nil {
		opts.Fallback = func(billID string) models.Bill {
			bill := models.SampleBill()
			bill.ID = billID
			return bill
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:    opts,
		logger:  logger.With("bill_id", opts.BillID),
		joiner:  autojoin.New(),
		loading: true,
		view:    ViewOrder,
	}, nil
}

// Run opens a session, runs fn with it and closes it on every return path.
func Run(ctx context.Context, opts Options, fn func(*Session) error) error {
	s, err := New(opts)
	if err != nil {
		return err
	}
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Open subscribes to the bill. The subscription lives until Close or ctx ends.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.src != nil {
		return errors.New("session: already open")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wake = make(chan struct{}, 1)
	s.writers.Add(1)
	go s.writeLoop()

	// Callbacks lock s.mu, so none runs before s.src is set.
	stop := s.opts.Store.Subscribe(s.ctx, s.opts.BillID, s.onRemote, s.onRemoteError)
	s.src = remoteSource{stop: stop}
	s.logger.Debug("Session opened")
	return nil
}

// Close releases the subscription and stops the writer. Queued writes fail with ErrClosed.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.src != nil {
		s.src.release()
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.writers.Wait()
	s.logger.Debug("Session closed")
}

// writeLoop runs queued writes in order. It exits once the session is done and the queue
// has drained.
func (s *Session) writeLoop() {
	defer s.writers.Done()
	for {
		s.mu.Lock()
		if len(s.jobs) == 0 {
			done := s.closed || s.ctx.Err() != nil
			s.mu.Unlock()
			if done {
				return
			}
			select {
			case <-s.wake:
			case <-s.ctx.Done():
			}
			continue
		}
		job := s.jobs[0]
		s.jobs = s.jobs[1:]
		s.mu.Unlock()
		job()
	}
}

// onRemote applies a snapshot from the subscription. nil means the document is missing.
func (s *Session) onRemote(bill *models.Bill) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.generation++
	stop := s.stopFunc()
	if bill == nil {
		if s.src.mode() != ModeLocal {
			s.logger.Info("Bill document missing, working locally")
		}
		s.src = localSource{stop: stop}
		if s.bill == nil {
			fallback := s.opts.Fallback(s.opts.BillID)
			s.bill = &fallback
		}
	} else {
		wasLocal := s.src.mode() == ModeLocal
		s.src = remoteSource{stop: stop}
		b := bill.Clone()
		s.bill = &b
		if wasLocal {
			s.logger.Info("Bill document available, syncing")
			// A join made against the local copy never reached the store.
			if id, dropped := s.joiner.Recheck(s.bill); dropped {
				s.logger.Debug("Joined participant missing from stored bill, rejoining", "participant_id", id)
				if s.current == id {
					s.current = ""
				}
			}
		}
	}
	s.mu.Unlock()

	s.evaluateJoin()
	s.notify()
}

// onRemoteError degrades to local mode over the last bill held.
func (s *Session) onRemoteError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.src = localSource{stop: s.stopFunc()}
	if s.bill == nil {
		fallback := s.opts.Fallback(s.opts.BillID)
		s.bill = &fallback
	}
	s.mu.Unlock()

	s.logger.Warn("Bill subscription failed, working locally", "error", err)
	s.report(err)
	s.evaluateJoin()
	s.notify()
}

func (s *Session) stopFunc() func() {
	switch src := s.src.(type) {
	case remoteSource:
		return src.stop
	case localSource:
		return src.stop
	default:
		return func() {}
	}
}

func (s *Session) report(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.opts.OnError == nil {
		return
	}
	s.opts.OnError(err)
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

// Bill returns a copy of the bill in view, or nil while loading.
func (s *Session) Bill() *models.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bill == nil {
		return nil
	}
	b := s.bill.Clone()
	return &b
}

// BillID is the ID of the open bill.
func (s *Session) BillID() string {
	return s.opts.BillID
}

// Mode reports where the bill comes from.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil || s.loading {
		return ModeConnecting
	}
	return s.src.mode()
}

// Loading reports whether the first snapshot is still outstanding.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// CurrentParticipantID is the participant acting in this session, or "".
func (s *Session) CurrentParticipantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrentParticipant switches the acting participant.
func (s *Session) SetCurrentParticipant(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	s.notify()
}

// View returns the screen in view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView switches screens.
func (s *Session) SetView(v View) error {
	switch v {
	case ViewOrder, ViewCheckout, ViewParticipants:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, v)
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.notify()
	return nil
}

// Share computes what participantID owes on the bill in view.
func (s *Session) Share(participantID string) models.Share {
	bill := s.Bill()
	if bill == nil {
		return calculator.ComputeShare(models.Bill{}, participantID)
	}
	return calculator.ComputeShare(*bill, participantID)
}

// CurrentShare is the share of the current participant; false when there is none.
func (s *Session) CurrentShare() (models.Share, bool) {
	id := s.CurrentParticipantID()
	if id == "" {
		return models.Share{}, false
	}
	return s.Share(id), true
}

// Summary totals the bill in view.
func (s *Session) Summary() calculator.Summary {
	bill := s.Bill()
	if bill == nil {
		return calculator.Summarize(models.Bill{})
	}
	return calculator.Summarize(*bill)
}

// SetIdentity records the signed-in identity (nil when signed out) and joins the bill when
// both are known.
func (s *Session) SetIdentity(identity *models.Identity) {
	s.mu.Lock()
	if identity == nil {
		s.identity = nil
	} else {
		id := *identity
		s.identity = &id
	}
	s.mu.Unlock()

	s.evaluateJoin()
	s.notify()
}

func (s *Session) evaluateJoin() {
	add, ok := s.decideJoin()
	if !ok {
		return
	}
	s.logger.Info("Joining bill", "participant_id", add.ID)
	s.addParticipant(add, func() {
		s.joiner.Reset()
		s.mu.Lock()
		if s.current == add.ID {
			s.current = ""
		}
		s.mu.Unlock()
	})
}

// decideJoin runs one auto-join evaluation and binds the current participant on the
// transition to Joined. It returns the participant to add, if any.
func (s *Session) decideJoin() (models.Participant, bool) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	s.mu.Lock()
	identity, bill, closed := s.identity, s.bill, s.closed
	s.mu.Unlock()
	if closed {
		return models.Participant{}, false
	}

	before := s.joiner.State()
	d := s.joiner.Evaluate(identity, bill)
	if before == autojoin.Joined || d.State != autojoin.Joined {
		return models.Participant{}, false
	}

	s.mu.Lock()
	s.current = d.CurrentID
	s.mu.Unlock()

	if d.Add == nil {
		s.logger.Debug("Identity already on bill", "participant_id", d.CurrentID)
		return models.Participant{}, false
	}
	return *d.Add, true
}
