package api

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
)

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{name: "valid", data: []byte(`{"room_id":"x","user_name":"y"}`), ok: true},
		{name: "empty object", data: []byte(`{}`), ok: true},
		{name: "garbage", data: []byte(`{"room_id`), ok: false},
		{name: "wrong shape", data: []byte(`[1,2]`), ok: false},
	}
	for _, test := range tests {
		out := Unwrap[JoinRoomRequest](test.data)
		if (out != nil) != test.ok {
			t.Errorf("%v: unexpected unwrap result %v", test.name, out)
		}
	}
}

// Signal payloads must come out byte-for-byte as they went in,
// the server is not allowed to even reformat them.
func TestSignalPassthrough(t *testing.T) {
	raw := []byte(`{"type":"offer","sdp":"v=0\r\n"}`)
	packed, err := json.Marshal(SendSignalRequest{Signal: raw})
	if err != nil {
		t.Fatal(err)
	}
	out := Unwrap[SendSignalRequest](packed)
	if out == nil {
		t.Fatal("unwrap failed")
	}
	if !bytes.Equal(out.Signal, raw) {
		t.Errorf("signal mangled: %s", out.Signal)
	}
}

func TestPTString(t *testing.T) {
	if JoinRoom.String() != "JoinRoom" || PT(0).String() != "Unknown" {
		t.Errorf("bad packet names")
	}
}
