package session

// Mode says where the session's bill comes from.
type Mode int

const (
	// ModeConnecting is the state before the first snapshot or failure.
	ModeConnecting Mode = iota
	// ModeRemote mirrors the shared document; writes go to the store.
	ModeRemote
	// ModeLocal works on an in-memory bill only visible to this session.
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// source is either remoteSource or localSource. Both hold the subscription's stop function:
// a local session over a missing document keeps watching for it to appear.
type source interface {
	mode() Mode
	release()
}

type remoteSource struct {
	stop func()
}

func (remoteSource) mode() Mode { return ModeRemote }
func (r remoteSource) release() { r.stop() }

type localSource struct {
	stop func()
}

func (localSource) mode() Mode { return ModeLocal }
func (l localSource) release() { l.stop() }
