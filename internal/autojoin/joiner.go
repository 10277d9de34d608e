// Package autojoin decides when the signed-in identity joins the open bill as a participant.
package autojoin

import (
	"sync"

	"github.com/mmynk/splitqr/internal/models"
)

// State is the progress of joining the bill.
type State int

const (
	NotReady State = iota
	Joining
	Joined
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	State State

	// CurrentID is the participant the identity is bound to once joined.
	CurrentID string

	// Add is the participant to write, set on exactly one evaluation per join.
	Add *models.Participant
}

// Joiner runs the join state machine for one session. It is safe for concurrent use.
// Joined is sticky, so the add is handed out once even if the bill has not yet echoed it.
type Joiner struct {
	mu      sync.Mutex
	state   State
	current string
}

// New returns a joiner in NotReady.
func New() *Joiner {
	return &Joiner{}
}

// State reports the current state.
func (j *Joiner) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Evaluate advances the machine for the latest identity and bill; nil means still loading.
func (j *Joiner) Evaluate(identity *models.Identity, bill *models.Bill) Decision {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == Joined {
		return Decision{State: Joined, CurrentID: j.current}
	}
	if identity == nil || bill == nil {
		j.state = NotReady
		return Decision{State: NotReady}
	}

	j.state = Joining
	if bill.HasParticipant(identity.ID) {
		j.join(identity.ID)
		return Decision{State: Joined, CurrentID: identity.ID}
	}
	p := identity.Participant()
	j.join(identity.ID)
	return Decision{State: Joined, CurrentID: identity.ID, Add: &p}
}

func (j *Joiner) join(id string) {
	j.state = Joined
	j.current = id
}

// Reset returns to NotReady, so the next evaluation retries.
// Sessions call it when the join write fails.
func (j *Joiner) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = NotReady
	j.current = ""
}

// Recheck drops a Joined latch whose participant is missing from bill and
// reports the ID it dropped. Sessions call it when a different copy of the
// bill replaces the one the join was evaluated against.
func (j *Joiner) Recheck(bill *models.Bill) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Joined || bill == nil || bill.HasParticipant(j.current) {
		return "", false
	}
	id := j.current
	j.state = NotReady
	j.current = ""
	return id, true
}
