// Package mesh keeps one media session per pair of meeting participants
// and drives their negotiation over the relay signaling channel.
package mesh

import "github.com/rockypaper/metachat/pkg/media"

// Role tells which end of a pair drives the negotiation.
// The later joiner of a pair always initiates.
type Role uint8

const (
	Receiver Role = iota
	Initiator
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "receiver"
}

// SessionCallbacks are fired by the transport from its own goroutines.
type SessionCallbacks struct {
	// OnLocalSignal emits an opaque blob to carry to the other end.
	OnLocalSignal func(signal []byte)
	// OnRemoteMedia reports an inbound track of the given kind.
	OnRemoteMedia func(kind media.Kind)
	OnConnected   func()
	OnError       func(err error)
}

// Session is one live peer connection.
type Session interface {
	// Signal feeds a blob produced by the remote end.
	Signal(data []byte) error
	// Close tears the connection down. Idempotent.
	Close()
}

// Transport builds peer connections. The production implementation
// lives in pkg/webrtc; tests substitute their own.
type Transport interface {
	CreateSession(role Role, tracks []media.Track, cb SessionCallbacks) (Session, error)
}
