package com

import "github.com/goccy/go-json"

// In is an incoming packet of the signaling channel.
//
//	id - (optional) a packet id for tracking request/response pairs;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
type In struct {
	Id      Uid             `json:"id,omitempty"`
	T       uint8           `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"`
}

// Out is an outgoing packet of the signaling channel.
type Out struct {
	Id      string `json:"id,omitempty"` // string because omitempty won't work as intended with arrays
	T       uint8  `json:"t"`
	Payload any    `json:"p,omitempty"`
}
