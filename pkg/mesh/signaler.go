package mesh

import (
	"net/url"

	"github.com/goccy/go-json"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
)

type (
	// Events receives relay notifications. Implementations must not
	// block: the callbacks run on the connection read pump.
	Events interface {
		OnUserJoined(api.UserJoinedNotice)
		OnSignalReceived(api.SignalReceivedNotice)
		OnSignalReturned(api.SignalReturnedNotice)
		OnUserLeft(api.UserLeftNotice)
		OnStreamNotice(api.StreamNotice)
	}

	// Signaler is the orchestrator's view of the relay connection.
	Signaler interface {
		Listen(h Events)
		Join(room, userName string) (api.AllUsersResponse, error)
		Send(to com.Uid, signal []byte) error
		Return(to com.Uid, signal []byte) error
		StreamUpdate(kind string, enabled bool) error
		Close()
		Done() chan struct{}
	}
)

// RelayClient is the production Signaler over a relay websocket.
type RelayClient struct {
	*com.Client

	room string
	log  *logger.Logger
}

func Connect(conf config.Client, log *logger.Logger) (*RelayClient, error) {
	scheme := "ws"
	if conf.Secure {
		scheme = "wss"
	}
	address := url.URL{Scheme: scheme, Host: conf.RelayAddress, Path: conf.Endpoint}
	conn, err := com.NewConnector(com.WithTag("relay")).NewClient(address, log)
	if err != nil {
		return nil, err
	}
	return &RelayClient{Client: conn, log: conn.Log()}, nil
}

func (c *RelayClient) Listen(h Events) {
	c.OnPacket(func(in com.In) {
		switch api.PT(in.T) {
		case api.UserJoined:
			if n := api.Unwrap[api.UserJoinedNotice](in.Payload); n != nil {
				h.OnUserJoined(*n)
			}
		case api.SignalReceived:
			if n := api.Unwrap[api.SignalReceivedNotice](in.Payload); n != nil {
				h.OnSignalReceived(*n)
			}
		case api.SignalReturned:
			if n := api.Unwrap[api.SignalReturnedNotice](in.Payload); n != nil {
				h.OnSignalReturned(*n)
			}
		case api.UserLeft:
			if n := api.Unwrap[api.UserLeftNotice](in.Payload); n != nil {
				h.OnUserLeft(*n)
			}
		case api.StreamNotification:
			if n := api.Unwrap[api.StreamNotice](in.Payload); n != nil {
				h.OnStreamNotice(*n)
			}
		default:
			c.log.Warn().Msgf("unknown packet %v", in.T)
		}
	})
	c.Client.Listen()
}

func (c *RelayClient) Join(room, userName string) (api.AllUsersResponse, error) {
	c.room = room
	rsp, err := c.Call(uint8(api.JoinRoom), api.JoinRoomRequest{RoomId: room, UserName: userName})
	if err != nil {
		return api.AllUsersResponse{}, err
	}
	out := api.Unwrap[api.AllUsersResponse](rsp)
	if out == nil {
		return api.AllUsersResponse{}, api.ErrMalformed
	}
	return *out, nil
}

func (c *RelayClient) Send(to com.Uid, signal []byte) error {
	return c.Notify(uint8(api.SendSignal), api.SendSignalRequest{
		UserToSignal: to,
		Signal:       json.RawMessage(signal),
	})
}

func (c *RelayClient) Return(to com.Uid, signal []byte) error {
	return c.Notify(uint8(api.ReturnSignal), api.ReturnSignalRequest{
		CallerId: to,
		Signal:   json.RawMessage(signal),
	})
}

func (c *RelayClient) StreamUpdate(kind string, enabled bool) error {
	return c.Notify(uint8(api.StreamUpdate), api.StreamUpdateRequest{
		RoomId:     c.room,
		StreamType: kind,
		Enabled:    enabled,
	})
}

func (c *RelayClient) Done() chan struct{} { return c.Wait() }
