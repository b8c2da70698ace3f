package relay

import (
	"github.com/rockypaper/metachat/pkg/com"
)

// Participant is one connected client of the relay.
// Its identity is connection-scoped: a reconnect makes a new participant.
type Participant struct {
	*com.Client

	name string
	room string
}

func NewParticipant(client *com.Client) *Participant { return &Participant{Client: client} }

func (p *Participant) Name() string { return p.name }
