package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
	"github.com/vango-dev/reflex/pkg/session"
	"golang.org/x/time/rate"
)

// Conn is one cable connection. It implements reflex.Connection for the
// invocations it receives and broadcast.Subscriber for its stream.
type Conn struct {
	id      string
	ws      *websocket.Conn
	request *http.Request
	stream  string
	open    SessionOpener
	limiter *rate.Limiter
	config  *ServerConfig
	logger  *slog.Logger
	stats   *connStats

	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	closed      atomic.Bool
	inflight    sync.WaitGroup
	unsubscribe func()
}

// SessionOpener loads a connection's session from the store.
type SessionOpener func(ctx context.Context) (*session.Session, error)

func newConn(id string, ws *websocket.Conn, r *http.Request, stream string, open SessionOpener, config *ServerConfig, stats *connStats, logger *slog.Logger) *Conn {
	return &Conn{
		id:      id,
		ws:      ws,
		request: r,
		stream:  stream,
		open:    open,
		limiter: rate.NewLimiter(config.RateLimit, config.RateBurst),
		config:  config,
		stats:   stats,
		logger:  logger,
		send:    make(chan []byte, config.SendQueueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// StreamName implements reflex.Connection.
func (c *Conn) StreamName() string { return c.stream }

// Request implements reflex.Connection. It returns the upgrade request.
func (c *Conn) Request() *http.Request { return c.request }

// Session implements reflex.Connection. Every call loads the session from
// the store, so an invocation sees what other connections of the same
// session committed before it.
func (c *Conn) Session(ctx context.Context) (reflex.Session, error) {
	if c.open == nil {
		return nil, nil
	}
	sess, err := c.open(ctx)
	if err != nil {
		return nil, &ConnError{ConnID: c.id, Op: "session", Err: err}
	}
	if sess == nil {
		return nil, nil
	}
	return sess, nil
}

// Send queues data for the write loop. It never blocks: when the queue is
// full the message is dropped and ErrSendQueueFull is returned.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.logger.Warn("send queue full, message dropped", "bytes", len(data))
		return &ConnError{ConnID: c.id, Op: "send", Err: ErrSendQueueFull}
	}
}

// Close unsubscribes the connection and stops its loops. It is safe to call
// more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.stats.closed()
		c.logger.Info("connection closed")
	})
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Wait blocks until every invocation started by the connection finished.
func (c *Conn) Wait() { c.inflight.Wait() }

// ReadLoop continuously reads messages from the WebSocket connection.
// Each valid invocation is dispatched on its own goroutine; reading resumes
// immediately so one slow action does not stall the connection.
// This method blocks until the connection is closed or an error occurs.
func (c *Conn) ReadLoop(ctx context.Context, d *reflex.Dispatcher) {
	defer c.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.logger.Warn("message too large", "limit", c.config.MaxMessageSize)
				c.stats.rejected(protocol.CodeMessageTooLarge)
			case websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure):
				c.logger.Error("read error", "error", err, "code", "R011")
			}
			return
		}

		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.stats.received(len(msg))

		inv, err := protocol.DecodeInvocation(msg)
		if err != nil {
			c.logger.Warn("invalid invocation", "error", err, "code", "R001")
			c.reject(protocol.NewError(protocol.CodeInvalidInvocation, err.Error()))
			continue
		}

		if !c.limiter.Allow() {
			c.logger.Warn("invocation rate limited", "call_id", inv.CallID, "code", "R010")
			frame := protocol.NewError(protocol.CodeRateLimited, "too many invocations")
			frame.CallID = inv.CallID
			c.reject(frame)
			continue
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			_ = d.Dispatch(ctx, c, inv)
		}()
	}
}

func (c *Conn) reject(frame *protocol.ErrorFrame) {
	c.stats.rejected(frame.Code)
	if err := c.Send(frame.Encode()); err != nil {
		c.logger.Warn("error frame not sent", "code", frame.Code, "error", err)
	}
}

// WriteLoop writes queued messages and heartbeat pings. On close it
// flushes the queue, sends a close frame and closes the socket.
func (c *Conn) WriteLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Error("write error", "error", err, "code", "R011")
				c.Close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			deadline := time.Now().Add(c.config.WriteTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Conn) write(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.stats.sent(len(data))
	return nil
}

func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
