package relay

import (
	"sync"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
)

// Room tracks the current membership of one meeting.
// All mutations of a single room are serialized under its lock, so a join
// snapshot can never omit a member who will receive the join broadcast and
// never include a member who has already left. Operations on different
// rooms don't block each other.
type Room struct {
	id string

	mu      sync.Mutex
	members map[com.Uid]*Participant
	closed  bool
}

func newRoom(id string) *Room {
	return &Room{id: id, members: make(map[com.Uid]*Participant, 2)}
}

// add registers a participant and notifies the rest of the room.
// Returns the membership snapshot taken just before the add, excluding the
// joiner, and false when the room was already dropped (the caller should
// pick up a fresh room then).
func (r *Room) add(p *Participant) (users []api.User, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	users = make([]api.User, 0, len(r.members))
	for id, member := range r.members {
		users = append(users, api.User{Id: id, UserName: member.name})
		_ = member.Notify(uint8(api.UserJoined), api.UserJoinedNotice{
			User: api.User{Id: p.Id(), UserName: p.name},
		})
	}
	r.members[p.Id()] = p
	return users, true
}

// remove drops a participant and notifies the rest of the room.
// Idempotent: removing an unknown participant changes nothing and sends
// nothing. The last remove closes the room.
func (r *Room) remove(p *Participant) (present, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, present = r.members[p.Id()]; !present {
		return false, false
	}
	delete(r.members, p.Id())
	for _, member := range r.members {
		_ = member.Notify(uint8(api.UserLeft), api.UserLeftNotice{Id: p.Id()})
	}
	if len(r.members) == 0 {
		r.closed = true
		return true, true
	}
	return true, false
}

// notifyFrom sends a packet to everyone in the room except the sender.
func (r *Room) notifyFrom(from *Participant, t api.PT, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, member := range r.members {
		if id == from.Id() {
			continue
		}
		_ = member.Notify(uint8(t), payload)
	}
}

func (r *Room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
