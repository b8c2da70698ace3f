package relay

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
)

type member struct {
	*com.Client
	id     com.Uid
	events chan com.In
}

func startHub(t *testing.T) *httptest.Server {
	t.Helper()
	conf := config.ServerConfig{}
	conf.Server.Origin = "*"
	hub := NewHub(conf, logger.Default())
	s := httptest.NewServer(http.HandlerFunc(hub.handleConnection))
	t.Cleanup(s.Close)
	return s
}

func join(t *testing.T, s *httptest.Server, room, name string) (*member, api.AllUsersResponse) {
	t.Helper()
	host, _ := url.Parse(s.URL)
	address := url.URL{Scheme: "ws", Host: host.Host}
	client, err := com.NewConnector().NewClient(address, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	m := &member{Client: client, events: make(chan com.In, 16)}
	m.OnPacket(func(in com.In) { m.events <- in })
	m.Listen()
	t.Cleanup(m.Close)

	rsp, err := m.Call(uint8(api.JoinRoom), api.JoinRoomRequest{RoomId: room, UserName: name})
	if err != nil {
		t.Fatal(err)
	}
	joined := api.Unwrap[api.AllUsersResponse](rsp)
	if joined == nil {
		t.Fatal("malformed join response")
	}
	m.id = joined.Id
	return m, *joined
}

func next(t *testing.T, m *member, want api.PT) com.In {
	t.Helper()
	for {
		select {
		case in := <-m.events:
			if api.PT(in.T) == want {
				return in
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no %v packet", want)
		}
	}
}

func TestJoinSnapshot(t *testing.T) {
	s := startHub(t)

	a, joinedA := join(t, s, "room", "alice")
	if len(joinedA.Users) != 0 {
		t.Errorf("first joiner got a non-empty snapshot: %v", joinedA.Users)
	}
	if a.id.IsEmpty() {
		t.Errorf("no identity assigned")
	}

	_, joinedB := join(t, s, "room", "bob")
	if len(joinedB.Users) != 1 || joinedB.Users[0].Id != a.id {
		t.Errorf("second joiner snapshot is wrong: %v", joinedB.Users)
	}
	if joinedB.Users[0].UserName != "alice" {
		t.Errorf("names not carried: %v", joinedB.Users)
	}

	in := next(t, a, api.UserJoined)
	n := api.Unwrap[api.UserJoinedNotice](in.Payload)
	if n == nil || n.UserName != "bob" {
		t.Errorf("bad user-joined notice: %s", in.Payload)
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	s := startHub(t)

	join(t, s, "one", "alice")
	_, joined := join(t, s, "two", "bob")
	if len(joined.Users) != 0 {
		t.Errorf("rooms leak members: %v", joined.Users)
	}
}

func TestSignalRelay(t *testing.T) {
	s := startHub(t)

	a, _ := join(t, s, "room", "alice")
	b, _ := join(t, s, "room", "bob")
	next(t, a, api.UserJoined)

	offer := json.RawMessage(`{"type":"offer","sdp":"x"}`)
	err := b.Notify(uint8(api.SendSignal), api.SendSignalRequest{UserToSignal: a.id, Signal: offer})
	if err != nil {
		t.Fatal(err)
	}
	in := next(t, a, api.SignalReceived)
	got := api.Unwrap[api.SignalReceivedNotice](in.Payload)
	if got == nil || got.CallerId != b.id {
		t.Fatalf("bad signal-received: %s", in.Payload)
	}
	if string(got.Signal) != string(offer) {
		t.Errorf("signal mangled: %s", got.Signal)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"y"}`)
	err = a.Notify(uint8(api.ReturnSignal), api.ReturnSignalRequest{CallerId: b.id, Signal: answer})
	if err != nil {
		t.Fatal(err)
	}
	in = next(t, b, api.SignalReturned)
	ret := api.Unwrap[api.SignalReturnedNotice](in.Payload)
	if ret == nil || ret.Id != a.id {
		t.Fatalf("bad signal-returned: %s", in.Payload)
	}
}

func TestUserLeft(t *testing.T) {
	s := startHub(t)

	a, _ := join(t, s, "room", "alice")
	b, _ := join(t, s, "room", "bob")
	next(t, a, api.UserJoined)

	b.Close()

	in := next(t, a, api.UserLeft)
	n := api.Unwrap[api.UserLeftNotice](in.Payload)
	if n == nil || n.Id != b.id {
		t.Errorf("bad user-left notice: %s", in.Payload)
	}
}

func TestStreamUpdateFanOut(t *testing.T) {
	s := startHub(t)

	a, _ := join(t, s, "room", "alice")
	b, _ := join(t, s, "room", "bob")
	c, _ := join(t, s, "room", "carol")
	next(t, a, api.UserJoined)
	next(t, a, api.UserJoined)
	next(t, b, api.UserJoined)

	err := b.Notify(uint8(api.StreamUpdate), api.StreamUpdateRequest{
		RoomId: "room", StreamType: api.StreamCamera, Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []*member{a, c} {
		in := next(t, m, api.StreamNotification)
		n := api.Unwrap[api.StreamNotice](in.Payload)
		if n == nil || n.FromUserId != b.id || n.StreamType != api.StreamCamera || !n.Enabled {
			t.Errorf("bad stream notice: %s", in.Payload)
		}
	}
	select {
	case in := <-b.events:
		if api.PT(in.T) == api.StreamNotification {
			t.Errorf("the sender got its own stream notice")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// A signal towards a gone participant is dropped without a word, the
// sender learns about the departure from the user-left notice instead.
func TestSignalToGone(t *testing.T) {
	s := startHub(t)

	a, _ := join(t, s, "room", "alice")
	b, _ := join(t, s, "room", "bob")
	next(t, a, api.UserJoined)
	a.Close()
	next(t, b, api.UserLeft)

	err := b.Notify(uint8(api.SendSignal), api.SendSignalRequest{
		UserToSignal: a.id, Signal: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	// the connection must stay alive
	if _, joined := join(t, s, "room2", "dave"); len(joined.Users) != 0 {
		t.Errorf("hub is in a bad state")
	}
}
