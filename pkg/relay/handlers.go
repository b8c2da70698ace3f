package relay

import (
	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
)

func (h *Hub) handlePackets(p *Participant) {
	p.OnPacket(func(in com.In) {
		switch api.PT(in.T) {
		case api.JoinRoom:
			rq := api.Unwrap[api.JoinRoomRequest](in.Payload)
			if rq == nil || rq.RoomId == "" {
				p.Log().Error().Msg("malformed join request")
				return
			}
			h.HandleJoinRoom(*rq, in, p)
		case api.SendSignal:
			rq := api.Unwrap[api.SendSignalRequest](in.Payload)
			if rq == nil {
				p.Log().Error().Msg("malformed send-signal request")
				return
			}
			h.HandleSendSignal(*rq, p)
		case api.ReturnSignal:
			rq := api.Unwrap[api.ReturnSignalRequest](in.Payload)
			if rq == nil {
				p.Log().Error().Msg("malformed return-signal request")
				return
			}
			h.HandleReturnSignal(*rq, p)
		case api.StreamUpdate:
			rq := api.Unwrap[api.StreamUpdateRequest](in.Payload)
			if rq == nil {
				p.Log().Error().Msg("malformed stream-update request")
				return
			}
			h.HandleStreamUpdate(*rq, p)
		default:
			p.Log().Warn().Msgf("unknown packet %v", in.T)
		}
	})
}

// HandleJoinRoom responds to the joiner with the membership snapshot
// (excluding the joiner itself) and its assigned identity.
func (h *Hub) HandleJoinRoom(rq api.JoinRoomRequest, in com.In, p *Participant) {
	users := h.join(rq.RoomId, rq.UserName, p)
	_ = p.Route(in, api.AllUsersResponse{Id: p.Id(), Users: users})
}

// HandleSendSignal forwards an initiator signal to its target.
func (h *Hub) HandleSendSignal(rq api.SendSignalRequest, p *Participant) {
	caller := rq.CallerId
	if caller.IsEmpty() {
		caller = p.Id()
	}
	h.relayTo(rq.UserToSignal, api.SignalReceived, api.SignalReceivedNotice{
		Signal:   rq.Signal,
		CallerId: caller,
	})
}

// HandleReturnSignal forwards a receiver answer back to the initiator.
func (h *Hub) HandleReturnSignal(rq api.ReturnSignalRequest, p *Participant) {
	h.relayTo(rq.CallerId, api.SignalReturned, api.SignalReturnedNotice{
		Signal: rq.Signal,
		Id:     p.Id(),
	})
}

// HandleStreamUpdate fans out a media composition hint to the room.
// Best effort only: nothing in the session protocol relies on it.
func (h *Hub) HandleStreamUpdate(rq api.StreamUpdateRequest, p *Participant) {
	room, err := h.rooms.Find(rq.RoomId)
	if err != nil {
		return
	}
	room.notifyFrom(p, api.StreamNotification, api.StreamNotice{
		FromUserId: p.Id(),
		StreamType: rq.StreamType,
		Enabled:    rq.Enabled,
	})
}
