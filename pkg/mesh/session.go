package mesh

import "github.com/rockypaper/metachat/pkg/api"

type sessionState uint8

const (
	negotiating sessionState = iota
	connected
	destroyed
)

func (s sessionState) String() string {
	switch s {
	case negotiating:
		return "negotiating"
	case connected:
		return "connected"
	case destroyed:
		return "destroyed"
	}
	return "unknown"
}

// peerSession tracks one pairwise connection through its lifecycle.
// All mutations happen on the orchestrator loop, so no locking here.
type peerSession struct {
	peer  api.User
	role  Role
	state sessionState
	link  Session
}

// destroy moves the session to its terminal state. Signals arriving
// afterwards are stale and get dropped by the orchestrator.
func (s *peerSession) destroy() {
	if s.state == destroyed {
		return
	}
	s.state = destroyed
	if s.link != nil {
		s.link.Close()
	}
}
