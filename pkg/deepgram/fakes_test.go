package deepgram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ---------------------------------------------------------------------------
// event log
// ---------------------------------------------------------------------------

// eventLog records calls on fakes in order, across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// indexOf returns the position of the first ev, or -1.
func (l *eventLog) indexOf(ev string) int {
	for i, e := range l.snapshot() {
		if e == ev {
			return i
		}
	}
	return -1
}

func (l *eventLog) count(ev string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e == ev {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// fake capture source
// ---------------------------------------------------------------------------

type fakeCapture struct {
	log      *eventLog
	startErr error

	mu      sync.Mutex
	running bool
	starts  int
	stops   int
	nextID  int
	subs    map[int]func(Frame)
}

func newFakeCapture(log *eventLog) *fakeCapture {
	return &fakeCapture{log: log, subs: make(map[int]func(Frame))}
}

func (c *fakeCapture) StartCapture(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.running = true
	c.starts++
	c.mu.Unlock()
	c.log.add("capture.start")
	return nil
}

func (c *fakeCapture) StopCapture() error {
	c.mu.Lock()
	c.running = false
	c.stops++
	c.mu.Unlock()
	c.log.add("capture.stop")
	return nil
}

func (c *fakeCapture) Subscribe(fn func(Frame)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	c.log.add("capture.subscribe")
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		c.log.add("capture.unsubscribe")
	}
}

// emit delivers f to every subscriber, like a capture thread would.
func (c *fakeCapture) emit(f Frame) {
	c.mu.Lock()
	fns := make([]func(Frame), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

func (c *fakeCapture) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeCapture) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ---------------------------------------------------------------------------
// fake playback sink
// ---------------------------------------------------------------------------

type fakeSink struct {
	log *eventLog

	mu        sync.Mutex
	rate      int
	channels  int
	fed       []byte
	clips     [][]byte
	stops     int
	configure int
}

func (s *fakeSink) Configure(sampleRate, channels int) error {
	s.mu.Lock()
	s.rate, s.channels = sampleRate, channels
	s.configure++
	s.mu.Unlock()
	s.log.add("playback.configure")
	return nil
}

func (s *fakeSink) Feed(data []byte) error {
	s.mu.Lock()
	s.fed = append(s.fed, data...)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) PlayOnce(data []byte) error {
	s.mu.Lock()
	s.clips = append(s.clips, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.log.add("playback.stop")
	return nil
}

func (s *fakeSink) format() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, s.channels
}

func (s *fakeSink) fedBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.fed...)
}

// ---------------------------------------------------------------------------
// websocket test server
// ---------------------------------------------------------------------------

type wsServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	conns    chan *websocket.Conn
}

// newWSServer starts a server that upgrades every request and hands the
// connection to the test through accept.
func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(context.Background()))
		s.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for websocket connection")
		return nil
	}
}

func (s *wsServer) lastRequest(t *testing.T) *http.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no request received")
	}
	return s.requests[len(s.requests)-1]
}

// readText reads frames until a text frame arrives.
func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read text: %v", err)
		}
		if mt == websocket.TextMessage {
			return string(data)
		}
	}
}

// readBinary reads frames until a binary frame arrives.
func readBinary(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read binary: %v", err)
		}
		if mt == websocket.BinaryMessage {
			return data
		}
	}
}

// readClose reads until the peer closes and returns the close error.
func readClose(t *testing.T, c *websocket.Conn) *websocket.CloseError {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce
		}
		t.Fatalf("read close: %v", err)
		return nil
	}
}

func writeText(t *testing.T, c *websocket.Conn, s string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		t.Fatalf("write text: %v", err)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient points every endpoint of a client at srv.
func newTestClient(srv *wsServer, opts ...Option) *Client {
	base := []Option{
		WithWebSocketURL(srv.wsURL() + "/v1"),
		WithV2WebSocketURL(srv.wsURL() + "/v2"),
		WithAgentURL(srv.wsURL() + "/v1/agent/converse"),
		WithBaseURL(srv.URL + "/v1"),
		WithLogger(testLogger()),
		WithTimeout(5 * time.Second),
	}
	return NewClient("test-key", append(base, opts...)...)
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// signal returns a func that closes ch once.
func signal(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func waitChan(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func float32Frame(n int, rate int) Frame {
	data := make([]byte, n*4)
	return Frame{Data: data, SampleRate: rate, Encoding: EncodingFloat32}
}
