package com

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/network/websocket"
)

type (
	// Connector makes new packet clients for both
	// server-side (upgrade) and client-side (dial) connections.
	Connector struct {
		tag string
		wu  *websocket.Upgrader
	}
	// Client is a packet-oriented connection.
	// Sync requests are correlated to their responses with packet ids.
	Client struct {
		id       Uid
		conn     *websocket.WS
		queue    map[Uid]*call
		onPacket func(packet In)
		mu       sync.Mutex
		log      *logger.Logger
	}
	call struct {
		done     chan struct{}
		err      error
		Response In
	}
	Option = func(c *Connector)
)

var (
	errConnClosed = errors.New("connection closed")
	errTimeout    = errors.New("timeout")
)

func WithOrigin(url string) Option { return func(c *Connector) { c.wu = websocket.NewUpgrader(url) } }
func WithTag(tag string) Option    { return func(c *Connector) { c.tag = tag } }

const callTimeout = 5 * time.Second

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

// NewServer upgrades an incoming HTTP request into a packet client
// with a fresh connection-scoped id.
func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	ws, err := co.wu.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.NewServerWithConn(ws, log)
	if err != nil {
		return nil, err
	}
	return connect(conn, NewUid(), co.tag, log)
}

func (co *Connector) NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewClient(address, log)
	if err != nil {
		return nil, err
	}
	return connect(conn, NewUid(), co.tag, log)
}

func connect(conn *websocket.WS, id Uid, tag string, log *logger.Logger) (*Client, error) {
	dirLog := log.Extend(log.With().Str("cid", id.Short()))
	client := &Client{id: id, conn: conn, queue: make(map[Uid]*call, 1), log: dirLog}
	client.conn.OnMessage = client.handleMessage
	dirLog.Debug().Str(logger.DirectionField, "+").Msgf("connect %s", tag)
	return client, nil
}

func (c *Client) Id() Uid             { return c.id }
func (c *Client) Log() *logger.Logger { return c.log }

func (c *Client) OnPacket(fn func(packet In)) { c.mu.Lock(); c.onPacket = fn; c.mu.Unlock() }

func (c *Client) Listen() { c.conn.Listen() }

func (c *Client) Close() {
	c.conn.Close()
	c.drain(errConnClosed)
}

// Wait returns the channel closed on connection teardown.
func (c *Client) Wait() chan struct{} { return c.conn.Done }

// Call makes a blocking request and waits for the response
// with the same packet id.
func (c *Client) Call(type_ uint8, payload any) ([]byte, error) {
	id := NewUid()
	r, err := json.Marshal(Out{Id: id.String(), T: type_, Payload: payload})
	if err != nil {
		return nil, err
	}

	task := &call{done: make(chan struct{})}
	c.mu.Lock()
	c.queue[id] = task
	c.mu.Unlock()
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("ᵇ%v", type_)
	c.conn.Write(r)
	select {
	case <-task.done:
	case <-time.After(callTimeout):
		c.mu.Lock()
		delete(c.queue, id)
		c.mu.Unlock()
		task.err = errTimeout
	}
	return task.Response.Payload, task.err
}

// Notify just sends a message and goes further.
func (c *Client) Notify(type_ uint8, payload any) error {
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", type_)
	return c.send(Out{T: type_, Payload: payload})
}

// Route sends a response to a request packet, keeping its id.
func (c *Client) Route(in In, payload any) error {
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", in.T)
	return c.send(Out{Id: in.Id.String(), T: in.T, Payload: payload})
}

func (c *Client) send(packet Out) error {
	r, err := json.Marshal(packet)
	if err != nil {
		return err
	}
	c.conn.Write(r)
	return nil
}

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		return
	}

	var res In
	if err = json.Unmarshal(message, &res); err != nil {
		c.log.Error().Err(err).Msg("malformed packet")
		return
	}

	// empty id implies that we won't track (wait) the response
	if !res.Id.IsEmpty() {
		if task := c.pop(res.Id); task != nil {
			task.Response = res
			close(task.done)
			return
		}
	}
	c.mu.Lock()
	fn := c.onPacket
	c.mu.Unlock()
	if fn != nil {
		c.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", res.T)
		fn(res)
	}
}

// pop extracts and removes a task from the queue by its id.
func (c *Client) pop(id Uid) *call {
	c.mu.Lock()
	task := c.queue[id]
	delete(c.queue, id)
	c.mu.Unlock()
	return task
}

// drain cancels all what's left in the task queue.
func (c *Client) drain(err error) {
	c.mu.Lock()
	for id, task := range c.queue {
		delete(c.queue, id)
		if task.err == nil {
			task.err = err
		}
		close(task.done)
	}
	c.mu.Unlock()
}
