package api

import (
	"github.com/goccy/go-json"

	"github.com/rockypaper/metachat/pkg/com"
)

// User is a room membership record as seen by other members.
type User struct {
	Id       com.Uid `json:"id"`
	UserName string  `json:"user_name"`
}

type (
	JoinRoomRequest struct {
		RoomId   string `json:"room_id"`
		UserName string `json:"user_name"`
	}
	// AllUsersResponse is sent once to the joiner only and holds
	// the room membership snapshot excluding the joiner itself.
	AllUsersResponse struct {
		Id    com.Uid `json:"id"` // the identity assigned to the joiner
		Users []User  `json:"users"`
	}
	UserJoinedNotice struct {
		User
	}
	SendSignalRequest struct {
		UserToSignal com.Uid         `json:"user_to_signal"`
		CallerId     com.Uid         `json:"caller_id"`
		Signal       json.RawMessage `json:"signal"`
	}
	SignalReceivedNotice struct {
		Signal   json.RawMessage `json:"signal"`
		CallerId com.Uid         `json:"caller_id"`
	}
	ReturnSignalRequest struct {
		CallerId com.Uid         `json:"caller_id"`
		Signal   json.RawMessage `json:"signal"`
	}
	SignalReturnedNotice struct {
		Signal json.RawMessage `json:"signal"`
		Id     com.Uid         `json:"id"`
	}
	UserLeftNotice struct {
		Id com.Uid `json:"id"`
	}
	StreamUpdateRequest struct {
		RoomId     string `json:"room_id"`
		StreamType string `json:"stream_type"`
		Enabled    bool   `json:"enabled"`
	}
	StreamNotice struct {
		FromUserId com.Uid `json:"from_user_id"`
		StreamType string  `json:"stream_type"`
		Enabled    bool    `json:"enabled"`
	}
)

// Stream kinds of the stream-update hint.
const (
	StreamMic    = "mic"
	StreamCamera = "camera"
	StreamScreen = "screen"
)
