package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

// maxInboundBytes bounds frames read from a peer; peers only send control
// frames and the occasional small text frame.
const maxInboundBytes = 4096

var (
	_ Peer     = (*Conn)(nil)
	_ Replayer = (*Conn)(nil)
)

// Conn is a websocket peer. All writes happen on the write pump goroutine.
type Conn struct {
	id   string
	role model.Role
	ws   *websocket.Conn
	opts *options.LiveOptions

	send   chan *Message
	replay []*model.TelemetryRecord

	done      chan struct{}
	closeOnce sync.Once

	logger log.Logger
}

// NewConn wraps an upgraded websocket. The caller hands it to Serve.
func NewConn(ws *websocket.Conn, role model.Role, opts *options.LiveOptions) *Conn {
	if opts == nil {
		opts = options.NewLiveOptions()
	}
	id := uuid.NewString()
	return &Conn{
		id:     id,
		role:   role,
		ws:     ws,
		opts:   opts,
		send:   make(chan *Message, opts.SendBuffer),
		done:   make(chan struct{}),
		logger: log.WithName("live").WithValues("peer", id, "role", role),
	}
}

func (c *Conn) ID() string       { return c.id }
func (c *Conn) Role() model.Role { return c.role }

func (c *Conn) Send(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Replay is called by the registry before the write pump starts. The write
// pump encodes and writes the records ahead of anything queued by Send.
func (c *Conn) Replay(records []*model.TelemetryRecord) {
	c.replay = records
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops the peer. The write pump sends a close frame and tears down the
// socket, which ends the read pump.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Serve registers the peer with reg and runs it until the socket closes or
// ctx is done.
func (c *Conn) Serve(ctx context.Context, reg *Registry) {
	if err := reg.Register(c); err != nil {
		c.logger.Error(err, "Failed to register peer")
		_ = c.ws.Close()
		return
	}
	defer reg.Unregister(c.id)

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	go c.writePump()
	c.readPump()
	c.Close()
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxInboundBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Live connection closed unexpectedly", "error", err)
			}
			return
		}
		c.logger.Debug("Ignoring inbound frame", "bytes", len(data))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	hi, err := helloMessage(c.id, c.role)
	if err != nil {
		c.logger.Error(err, "Failed to encode hello")
		return
	}
	if !c.write(hi) {
		return
	}
	for _, rec := range c.replay {
		msg, err := TelemetryMessage(rec)
		if err != nil {
			c.logger.Error(err, "Failed to encode replay record", "deviceId", rec.DeviceID)
			continue
		}
		if !c.write(msg) {
			return
		}
	}
	c.replay = nil

	for {
		select {
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteTimeout))
			return
		}
	}
}

func (c *Conn) write(msg *Message) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Body); err != nil {
		c.logger.Debug("Write to live connection failed", "error", err)
		c.Close()
		return false
	}
	return true
}
