package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a Conn.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Close codes used by the facades.
const (
	CloseNormal = websocket.CloseNormalClosure
)

const (
	outboundQueueSize = 256
	writeWait         = 10 * time.Second
	closeWait         = 2 * time.Second
)

// connHandler receives the inbound side of a Conn. Callbacks run on the
// read goroutine, except onClose for a locally requested close, which runs
// on the write goroutine. onClose fires exactly once, with a nil error for
// a normal closure from either side.
type connHandler struct {
	onText   func(data []byte)
	onBinary func(data []byte)
	onClose  func(err error)
}

type outFrame struct {
	messageType int
	data        []byte
}

// Conn is one duplex websocket connection.
//
// Sends are ordered and never block: they enqueue onto a bounded queue
// drained by a single write goroutine, and report false when the
// connection is not open or the queue is full. A Conn never re-opens once
// closed.
type Conn struct {
	ws      *websocket.Conn
	handler connHandler
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	closeCode  int
	closeMsg   string
	out        chan outFrame
	stopCh     chan struct{}
	readDone   chan struct{}
	closedCh   chan struct{}
	finishOnce sync.Once
}

// dialConn opens a websocket to url with the Deepgram auth header and
// starts the read and write pumps.
func (c *Client) dialConn(ctx context.Context, url string, handler connHandler, logger *slog.Logger) (*Conn, error) {
	conn := &Conn{
		handler:  handler,
		logger:   logger,
		state:    StateIdle,
		out:      make(chan outFrame, outboundQueueSize),
		stopCh:   make(chan struct{}),
		readDone: make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	conn.setState(StateConnecting)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.timeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, c.authHeader())
	if err != nil {
		conn.setState(StateClosed)
		close(conn.closedCh)
		return nil, handshakeError(resp, err)
	}

	conn.ws = ws
	conn.setState(StateOpen)
	logger.Debug("websocket connected", "url", redactURL(url))

	go conn.readLoop()
	go conn.writeLoop()
	return conn, nil
}

func handshakeError(resp *http.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()
	apiErr := &Error{HTTPStatus: resp.StatusCode, handshake: true}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(body) == 0 || json.Unmarshal(body, apiErr) != nil || apiErr.ErrMsg == "" {
		apiErr.Body = string(body)
		if apiErr.Body == "" {
			apiErr.Body = err.Error()
		}
	}
	if id := resp.Header.Get("dg-request-id"); id != "" && apiErr.RequestID == "" {
		apiErr.RequestID = id
	}
	return apiErr
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.closedCh
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SendText enqueues a text frame.
func (c *Conn) SendText(text string) bool {
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.logger.Debug("sending message", "content", truncate(text, 500))
	}
	return c.enqueue(websocket.TextMessage, []byte(text))
}

// SendJSON marshals v and enqueues it as a text frame. It returns false
// when v cannot be marshaled.
func (c *Conn) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("marshal outbound message", "error", err)
		return false
	}
	return c.SendText(string(data))
}

// SendBinary enqueues a binary frame. The Conn takes ownership of data.
func (c *Conn) SendBinary(data []byte) bool {
	return c.enqueue(websocket.BinaryMessage, data)
}

func (c *Conn) enqueue(messageType int, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false
	}
	select {
	case c.out <- outFrame{messageType: messageType, data: data}:
		return true
	default:
		return false
	}
}

// Close requests a graceful shutdown: frames already queued are flushed,
// then a close frame with code and reason is written. Close is idempotent
// and does not wait.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}
	c.state = StateClosing
	c.closeCode = code
	c.closeMsg = reason
	close(c.stopCh)
}

// finish moves to StateClosed and notifies the handler once.
func (c *Conn) finish(err error) {
	c.finishOnce.Do(func() {
		c.setState(StateClosed)
		c.ws.Close()
		close(c.closedCh)
		if err != nil {
			c.logger.Debug("websocket closed", "error", err)
		} else {
			c.logger.Debug("websocket closed")
		}
		if c.handler.onClose != nil {
			c.handler.onClose(err)
		}
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				c.finish(fmt.Errorf("%w: write: %v", ErrTransportClosed, err))
				return
			}
		case <-c.stopCh:
			c.shutdown()
			return
		case <-c.closedCh:
			return
		}
	}
}

func (c *Conn) write(f outFrame) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(f.messageType, f.data)
}

// shutdown drains the queue and performs the close handshake.
func (c *Conn) shutdown() {
drain:
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				c.finish(nil)
				return
			}
		default:
			break drain
		}
	}

	c.mu.Lock()
	code, reason := c.closeCode, c.closeMsg
	c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err == nil {
		select {
		case <-c.readDone:
		case <-time.After(closeWait):
		}
	}
	c.finish(nil)
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.State() != StateOpen {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.finish(nil)
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.finish(fmt.Errorf("%w: code %d: %s", ErrTransportClosed, ce.Code, ce.Text))
				return
			}
			c.finish(fmt.Errorf("%w: read: %v", ErrTransportClosed, err))
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if c.logger.Enabled(context.Background(), slog.LevelDebug) {
				c.logger.Debug("received message", "len", len(data), "content", truncate(string(data), 1000))
			}
			if c.handler.onText != nil {
				c.handler.onText(data)
			}
		case websocket.BinaryMessage:
			if c.handler.onBinary != nil {
				c.handler.onBinary(data)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// redactURL strips the query string, which may carry callback URLs.
func redactURL(u string) string {
	base, _, _ := strings.Cut(u, "?")
	return base
}
