package relay

import (
	"net/http"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
)

// Hub accepts participant connections and routes their packets.
// It holds no negotiation logic: signal payloads pass through opaque.
type Hub struct {
	conf      config.ServerConfig
	connector *com.Connector

	rooms        com.Map[string, *Room]
	participants com.Map[com.Uid, *Participant]

	log *logger.Logger
}

func NewHub(conf config.ServerConfig, log *logger.Logger) *Hub {
	return &Hub{
		conf:         conf,
		connector:    com.NewConnector(com.WithOrigin(conf.Server.Origin), com.WithTag("relay")),
		rooms:        com.NewMap[string, *Room](),
		participants: com.NewMap[com.Uid, *Participant](),
		log:          log,
	}
}

// handleConnection serves one participant connection until it drops.
func (h *Hub) handleConnection(w http.ResponseWriter, r *http.Request) {
	client, err := h.connector.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("couldn't upgrade the user connection")
		return
	}
	p := NewParticipant(client)
	h.participants.Put(p.Id(), p)
	metrics.participants.Inc()

	h.handlePackets(p)
	p.Listen()
	<-p.Wait()

	h.leave(p)
	h.participants.RemoveByKey(p.Id())
	metrics.participants.Dec()
	p.Log().Debug().Msg("participant disconnect")
}

// join puts the participant into the room and returns the membership
// snapshot taken atomically with the join broadcast.
func (h *Hub) join(roomId, name string, p *Participant) []api.User {
	p.name = name
	p.room = roomId
	for {
		room, found := h.rooms.FindOrPut(roomId, func() *Room { return newRoom(roomId) })
		if !found {
			metrics.rooms.Inc()
		}
		if users, ok := room.add(p); ok {
			h.log.Info().Msgf("%s (%s) joined room %s of %d", name, p.Id().Short(), roomId, room.size())
			return users
		}
		// the room was emptied and dropped concurrently, take another one
	}
}

// leave is idempotent: the second call for the same participant is a no-op,
// so a double-disconnect never produces a double user-left broadcast.
func (h *Hub) leave(p *Participant) {
	if p.room == "" {
		return
	}
	room, err := h.rooms.Find(p.room)
	if err != nil {
		return
	}
	present, last := room.remove(p)
	if !present {
		return
	}
	h.log.Info().Msgf("%s left room %s", p.Id().Short(), p.room)
	if last {
		h.rooms.RemoveIf(p.room, func(v *Room) bool { return v == room })
		metrics.rooms.Dec()
	}
}

// relayTo forwards an opaque payload to one connected participant.
// Fire-and-forget: a missing target means it has already disconnected and
// the sender will learn about that from a user-left event, not from here.
func (h *Hub) relayTo(target com.Uid, t api.PT, payload any) {
	to, err := h.participants.Find(target)
	if err != nil {
		metrics.dropped.Inc()
		h.log.Debug().Msgf("drop %v for the gone participant %v", t, target.Short())
		return
	}
	_ = to.Notify(uint8(t), payload)
	metrics.relayed.Inc()
}
