package deepgram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type agentHarness struct {
	srv     *wsServer
	log     *eventLog
	capture *fakeCapture
	sink    *fakeSink
	metrics *Metrics
	agent   *VoiceAgent

	mu           sync.Mutex
	audio        [][]byte
	errs         []error
	serverErrors []*AgentError
	messages     []string
}

func newAgentHarness(t *testing.T, mutate func(*VoiceAgentConfig)) *agentHarness {
	t.Helper()
	h := &agentHarness{srv: newWSServer(t), log: &eventLog{}, metrics: NewMetrics("test")}
	h.capture = newFakeCapture(h.log)
	h.sink = &fakeSink{log: h.log}
	cfg := VoiceAgentConfig{
		Capture:         h.capture,
		Playback:        h.sink,
		DefaultSettings: DefaultAgentSettings(),
		OnBeforeConnect: func() { h.log.add("before") },
		OnConnect:       func() { h.log.add("connect") },
		OnClose:         func() { h.log.add("close") },
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
		OnMessage: func(m AgentServerMessage) {
			h.mu.Lock()
			h.messages = append(h.messages, m.MessageType())
			h.mu.Unlock()
		},
		OnServerError: func(m *AgentError) {
			h.mu.Lock()
			h.serverErrors = append(h.serverErrors, m)
			h.mu.Unlock()
		},
		OnAgentAudio: func(b []byte) {
			h.mu.Lock()
			h.audio = append(h.audio, b)
			h.mu.Unlock()
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.agent = NewVoiceAgent(newTestClient(h.srv, WithMetrics(h.metrics)), cfg)
	t.Cleanup(h.agent.Disconnect)
	return h
}

// connect opens a conversation and consumes the Settings message.
func (h *agentHarness) connect(t *testing.T, settings *AgentSettings) (*websocket.Conn, map[string]any) {
	t.Helper()
	if err := h.agent.Connect(context.Background(), settings); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)
	var msg map[string]any
	if err := json.Unmarshal([]byte(readText(t, peer)), &msg); err != nil {
		t.Fatal(err)
	}
	return peer, msg
}

func (h *agentHarness) snapshot() (audio [][]byte, errs []error, serverErrors []*AgentError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.audio...), append([]error(nil), h.errs...), append([]*AgentError(nil), h.serverErrors...)
}

func TestVoiceAgent_SettingsFirst(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, settings := h.connect(t, &AgentSettings{Tags: []string{"demo"}})

	if settings["type"] != "Settings" {
		t.Fatalf("first message = %v", settings)
	}
	if tags, _ := settings["tags"].([]any); len(tags) != 1 || tags[0] != "demo" {
		t.Errorf("tags = %v", settings["tags"])
	}
	audio, _ := settings["audio"].(map[string]any)
	input, _ := audio["input"].(map[string]any)
	if input["sample_rate"] != float64(24000) || input["encoding"] != "linear16" {
		t.Errorf("audio.input = %v", input)
	}
	if _, ok := settings["agent"].(map[string]any); !ok {
		t.Error("default agent config not sent")
	}
	if h.srv.lastRequest(t).URL.Path != "/v1/agent/converse" {
		t.Errorf("path = %s", h.srv.lastRequest(t).URL.Path)
	}

	if rate, ch := h.sink.format(); rate != 24000 || ch != 1 {
		t.Errorf("playback format = %d/%d", rate, ch)
	}
	if h.log.indexOf("connect") > h.log.indexOf("capture.start") {
		t.Errorf("events = %v, want connect before capture", h.log.snapshot())
	}

	// 48 kHz float32 to 24 kHz linear16: six samples become three.
	h.capture.emit(float32Frame(6, 48000))
	if got := readBinary(t, peer); len(got) != 6 {
		t.Errorf("frame len = %d, want 6", len(got))
	}
	if !h.agent.IsConnected() {
		t.Error("IsConnected = false")
	}
}

func TestVoiceAgent_SettingsBeforeConcurrentSends(t *testing.T) {
	h := newAgentHarness(t, func(c *VoiceAgentConfig) { c.Capture = nil })
	h.agent.config.OnConnect = func() { h.agent.InjectUserMessage("from connect") }

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			h.agent.InjectUserMessage("early")
			h.agent.SendKeepAlive()
		}
	}()

	err := h.agent.Connect(context.Background(), nil)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)

	var first map[string]any
	if err := json.Unmarshal([]byte(readText(t, peer)), &first); err != nil {
		t.Fatal(err)
	}
	if first["type"] != "Settings" {
		t.Fatalf("first message = %v, want Settings", first)
	}
}

func TestVoiceAgent_SuppressesMicWhileSpeaking(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)

	writeText(t, peer, `{"type":"AgentStartedSpeaking","total_latency":0.4}`)
	waitFor(t, "suppression", h.agent.IsMicSuppressed)

	dropped := func() float64 {
		return testutil.ToFloat64(h.metrics.framesDropped.WithLabelValues(modeAgent, dropSuppressed))
	}
	h.capture.emit(float32Frame(6, 48000))
	waitFor(t, "suppressed drop", func() bool { return dropped() == 1 })

	writeText(t, peer, `{"type":"AgentAudioDone"}`)
	waitFor(t, "unsuppression", func() bool { return !h.agent.IsMicSuppressed() })

	h.capture.emit(float32Frame(12, 48000))
	if got := readBinary(t, peer); len(got) != 12 {
		t.Errorf("first frame after AgentAudioDone len = %d, want 12", len(got))
	}

	writeText(t, peer, `{"type":"AgentStartedSpeaking"}`)
	waitFor(t, "suppression", h.agent.IsMicSuppressed)
	writeText(t, peer, `{"type":"UserStartedSpeaking"}`)
	waitFor(t, "barge-in", func() bool { return !h.agent.IsMicSuppressed() })
}

func TestVoiceAgent_NoSuppressionWithoutAutoPlay(t *testing.T) {
	off := false
	h := newAgentHarness(t, func(c *VoiceAgentConfig) { c.AutoPlayAgentAudio = &off })
	peer, _ := h.connect(t, nil)

	writeText(t, peer, `{"type":"AgentStartedSpeaking"}`)
	peer.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0})
	waitFor(t, "agent audio", func() bool {
		audio, _, _ := h.snapshot()
		return len(audio) == 1
	})
	if h.agent.IsMicSuppressed() {
		t.Error("mic suppressed with autoplay off")
	}
	if len(h.sink.fedBytes()) != 0 {
		t.Error("audio played with autoplay off")
	}
	if h.log.count("playback.configure") != 0 {
		t.Error("playback configured with autoplay off")
	}
}

func TestVoiceAgent_PlaysAgentAudio(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)

	peer.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0})
	writeText(t, peer, `{"type":"Audio","chunk":"`+base64.StdEncoding.EncodeToString([]byte{3, 0})+`","sample_rate":16000}`)
	writeText(t, peer, base64.StdEncoding.EncodeToString([]byte{4, 0, 5, 0}))

	waitFor(t, "agent audio", func() bool {
		audio, _, _ := h.snapshot()
		return len(audio) == 3
	})
	if got := h.sink.fedBytes(); len(got) != 10 {
		t.Errorf("fed %d bytes, want 10", len(got))
	}
	if rate, _ := h.sink.format(); rate != 16000 {
		t.Errorf("playback rate = %d, want 16000 after Audio message", rate)
	}
}

func TestVoiceAgent_ServerErrors(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)

	writeText(t, peer, `{"type":"Error","description":"quota exceeded","code":"Q"}`)
	writeText(t, peer, `{"type":"Error"}`)
	waitFor(t, "errors", func() bool {
		_, errs, _ := h.snapshot()
		return len(errs) == 2
	})

	_, errs, serverErrors := h.snapshot()
	if len(serverErrors) != 1 || serverErrors[0].Code != "Q" {
		t.Errorf("server errors = %v", serverErrors)
	}
	var se *ServerError
	if !errors.As(errs[0], &se) || se.Description != "quota exceeded" {
		t.Errorf("errs[0] = %v", errs[0])
	}
	if !errors.As(errs[1], &se) || se.Description != "Voice agent error" {
		t.Errorf("errs[1] = %v", errs[1])
	}
	if !h.agent.IsConnected() {
		t.Error("server error ended the conversation")
	}
}

func TestVoiceAgent_AnswersClientFunctions(t *testing.T) {
	fn := newWeatherFunction(t)
	var requested atomic.Bool
	h := newAgentHarness(t, func(c *VoiceAgentConfig) {
		c.Functions = Functions{fn}
		c.OnFunctionCallRequest = func(*FunctionCallRequest) { requested.Store(true) }
	})
	peer, _ := h.connect(t, nil)

	writeText(t, peer, `{"type":"FunctionCallRequest","functions":[`+
		`{"id":"f1","name":"get_weather","arguments":"{\"city\":\"Oslo\"}","client_side":true},`+
		`{"id":"f2","name":"get_weather","arguments":"{}","client_side":false},`+
		`{"id":"f3","name":"unknown","arguments":"{}","client_side":true}]}`)

	var resp map[string]any
	if err := json.Unmarshal([]byte(readText(t, peer)), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["type"] != "FunctionCallResponse" || resp["id"] != "f1" || resp["name"] != "get_weather" {
		t.Errorf("response = %v", resp)
	}
	if resp["content"] != `{"city":"Oslo","days":0}` {
		t.Errorf("content = %v", resp["content"])
	}
	if !requested.Load() {
		t.Error("OnFunctionCallRequest not called")
	}

	// No other responses follow.
	peer.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := peer.ReadMessage(); err == nil {
		t.Errorf("unexpected message %s", data)
	}
}

func TestVoiceAgent_ClientMessages(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)

	h.agent.UpdatePrompt("be brief")
	h.agent.InjectUserMessage("hi")
	h.agent.InjectAgentMessage("hello")
	h.agent.SendKeepAlive()
	h.agent.SendFunctionCallResponse(FunctionCallResponseMessage{ID: "x", Name: "n", Content: "c"})

	want := []string{
		`{"type":"UpdatePrompt","prompt":"be brief"}`,
		`{"type":"InjectUserMessage","content":"hi"}`,
		`{"type":"InjectAgentMessage","message":"hello"}`,
		`{"type":"KeepAlive"}`,
		`{"type":"FunctionCallResponse","id":"x","name":"n","content":"c"}`,
	}
	for i, w := range want {
		if got := readText(t, peer); got != w {
			t.Errorf("message %d = %s, want %s", i, got, w)
		}
	}
	if !h.agent.SendMedia([]byte{1, 2}) {
		t.Error("SendMedia = false")
	}
	if got := readBinary(t, peer); len(got) != 2 {
		t.Errorf("media = %v", got)
	}
}

func TestVoiceAgent_KeepAlive(t *testing.T) {
	h := newAgentHarness(t, func(c *VoiceAgentConfig) {
		c.Capture = nil
		c.KeepAliveInterval = 10 * time.Millisecond
	})
	peer, _ := h.connect(t, nil)
	for range 2 {
		if got := readText(t, peer); got != `{"type":"KeepAlive"}` {
			t.Fatalf("message = %s", got)
		}
	}
}

func TestVoiceAgent_DisconnectOrder(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)

	writeText(t, peer, `{"type":"AgentStartedSpeaking"}`)
	waitFor(t, "suppression", h.agent.IsMicSuppressed)

	h.agent.Disconnect()
	h.agent.Disconnect()

	events := h.log.snapshot()
	unsub := h.log.indexOf("capture.unsubscribe")
	stop := h.log.indexOf("capture.stop")
	playback := h.log.indexOf("playback.stop")
	closed := h.log.indexOf("close")
	if unsub < 0 || unsub > stop || stop > playback || playback > closed {
		t.Errorf("events = %v, want unsubscribe, capture stop, playback stop, close", events)
	}
	if n := h.log.count("close"); n != 1 {
		t.Errorf("OnClose fired %d times", n)
	}
	if h.agent.IsMicSuppressed() || h.agent.IsConnected() {
		t.Error("state not reset after disconnect")
	}
	if h.agent.SendKeepAlive() {
		t.Error("SendKeepAlive after disconnect = true")
	}
	if ce := readClose(t, peer); ce.Code != websocket.CloseNormalClosure || ce.Text != "cleanup" {
		t.Errorf("close = %d %q", ce.Code, ce.Text)
	}
	if v := testutil.ToFloat64(h.metrics.sessionsActive.WithLabelValues(modeAgent)); v != 0 {
		t.Errorf("sessions_active = %v after disconnect", v)
	}
}

func TestVoiceAgent_RemoteClose(t *testing.T) {
	h := newAgentHarness(t, nil)
	peer, _ := h.connect(t, nil)
	peer.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "bye"))

	waitFor(t, "OnClose", func() bool { return h.log.count("close") == 1 })
	_, errs, _ := h.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], ErrTransportClosed) {
		t.Errorf("errors = %v", errs)
	}
	if h.capture.isRunning() {
		t.Error("capture still running")
	}
}

func TestVoiceAgent_PermissionOnlyForMicrophone(t *testing.T) {
	h := newAgentHarness(t, func(c *VoiceAgentConfig) { c.Permission = DenyMicrophone })
	if err := h.agent.Connect(context.Background(), nil); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	off := false
	h = newAgentHarness(t, func(c *VoiceAgentConfig) {
		c.Permission = DenyMicrophone
		c.AutoStartMicrophone = &off
	})
	h.connect(t, nil)
	if h.log.count("capture.start") != 0 {
		t.Error("capture started with AutoStartMicrophone off")
	}
}
