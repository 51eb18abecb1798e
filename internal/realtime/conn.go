package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

const maxControlFrameBytes = 4096

// Conn is one authenticated websocket connection. Frames are queued on a bounded channel and
// written by a single writer goroutine, so each frame reaches the socket whole or not at all.
type Conn struct {
	id   string
	ws   *websocket.Conn
	user domain.User

	mu     sync.Mutex
	closed bool
	send   chan []byte

	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
}

func newConn(ws *websocket.Conn, user domain.User, buffer int, pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		user:         user,
		send:         make(chan []byte, buffer),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("conn_id", id), zap.String("user_id", user.ID)),
	}
}

// ID implements Subscriber.
func (c *Conn) ID() string { return c.id }

// User is the identity the connection authenticated as.
func (c *Conn) User() domain.User { return c.user }

// Send implements Subscriber.
func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) reply(name events.EventName, payload any) {
	frame, err := events.Encode(name, payload)
	if err != nil {
		return
	}
	c.Send(frame)
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// serve runs the read loop on the calling goroutine and the write loop on its own. It returns
// once the peer goes away; the caller is responsible for leaving rooms.
func (c *Conn) serve(onControl func(*Conn, events.Envelope)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop(onControl)
	c.shutdown()
	<-done
}

func (c *Conn) readLoop(onControl func(*Conn, events.Envelope)) {
	readTimeout := 2 * c.pingInterval
	c.ws.SetReadLimit(maxControlFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reply(events.ServerError, errorFrame{Message: "malformed frame"})
			continue
		}
		onControl(c, env)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type errorFrame struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
