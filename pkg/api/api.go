// Package api defines the signaling channel API between the relay server
// and meeting participants.
//
// Each call (request and response) is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a packet id correlating a request with its response;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// Signal payloads are opaque to the server: it forwards the raw bytes
// produced by one peer's transport session into another peer's session
// without looking inside.
package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

type PT uint8

// Packet codes:
//
//	1xx - client to server
//	2xx - server to client
const (
	JoinRoom     PT = 101
	SendSignal   PT = 102
	ReturnSignal PT = 103
	StreamUpdate PT = 104

	AllUsers           PT = 201
	UserJoined         PT = 202
	SignalReceived     PT = 203
	SignalReturned     PT = 204
	UserLeft           PT = 205
	StreamNotification PT = 206
)

func (p PT) String() string {
	switch p {
	case JoinRoom:
		return "JoinRoom"
	case SendSignal:
		return "SendSignal"
	case ReturnSignal:
		return "ReturnSignal"
	case StreamUpdate:
		return "StreamUpdate"
	case AllUsers:
		return "AllUsers"
	case UserJoined:
		return "UserJoined"
	case SignalReceived:
		return "SignalReceived"
	case SignalReturned:
		return "SignalReturned"
	case UserLeft:
		return "UserLeft"
	case StreamNotification:
		return "StreamNotification"
	default:
		return "Unknown"
	}
}

var ErrMalformed = fmt.Errorf("malformed")

// Unwrap deserializes a packet payload into the T struct,
// returns nil on malformed data.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
