package deepgram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

type speakerHarness struct {
	srv     *wsServer
	log     *eventLog
	sink    *fakeSink
	speaker *Speaker

	mu       sync.Mutex
	chunks   [][]byte
	metadata []*SpeakMetadata
	flushed  []*SpeakFlushed
	cleared  []*SpeakCleared
	warnings []*SpeakWarning
	unknown  []SpeakServerMessage
	errs     []error
}

func newSpeakerHarness(t *testing.T, opts *SpeakOptions) *speakerHarness {
	t.Helper()
	h := &speakerHarness{srv: newWSServer(t), log: &eventLog{}}
	h.sink = &fakeSink{log: h.log}
	record := func(fn func()) {
		h.mu.Lock()
		fn()
		h.mu.Unlock()
	}
	h.speaker = NewSpeaker(newTestClient(h.srv), SpeakerConfig{
		Playback:         h.sink,
		Options:          opts,
		OnBeforeStream:   func() { h.log.add("before") },
		OnStreamStart:    func() { h.log.add("start") },
		OnAudioChunk:     func(b []byte) { record(func() { h.chunks = append(h.chunks, b) }) },
		OnStreamMetadata: func(m *SpeakMetadata) { record(func() { h.metadata = append(h.metadata, m) }) },
		OnStreamFlushed:  func(m *SpeakFlushed) { record(func() { h.flushed = append(h.flushed, m) }) },
		OnStreamCleared:  func(m *SpeakCleared) { record(func() { h.cleared = append(h.cleared, m) }) },
		OnStreamWarning:  func(m *SpeakWarning) { record(func() { h.warnings = append(h.warnings, m) }) },
		OnStreamMessage:  func(m SpeakServerMessage) { record(func() { h.unknown = append(h.unknown, m) }) },
		OnStreamError: func(err error) {
			record(func() { h.errs = append(h.errs, err) })
			h.log.add("error")
		},
		OnStreamEnd: func() { h.log.add("end") },
	})
	t.Cleanup(h.speaker.StopStreaming)
	return h
}

func (h *speakerHarness) lenOf(fn func() int) func() bool {
	return func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return fn() > 0
	}
}

func TestSpeaker_StreamSendsInitialText(t *testing.T) {
	h := newSpeakerHarness(t, nil)
	if err := h.speaker.StartStreaming(context.Background(), "Hello"); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)

	req := h.srv.lastRequest(t)
	q := req.URL.Query()
	if req.URL.Path != "/v1/speak" || q.Get("model") != DefaultSpeakModel || q.Get("encoding") != "linear16" || q.Get("sample_rate") != "16000" {
		t.Errorf("request = %s?%s", req.URL.Path, req.URL.RawQuery)
	}
	if q.Has("container") {
		t.Error("streaming request carries container")
	}

	if got := readText(t, peer); got != `{"type":"Text","text":"Hello"}` {
		t.Errorf("first = %s", got)
	}
	if got := readText(t, peer); got != `{"type":"Flush"}` {
		t.Errorf("second = %s", got)
	}
	if rate, ch := h.sink.format(); rate != 16000 || ch != 1 {
		t.Errorf("sink format = %d/%d", rate, ch)
	}
	if !h.speaker.IsStreaming() {
		t.Error("IsStreaming = false")
	}
	if h.log.indexOf("playback.configure") > h.log.indexOf("start") {
		t.Errorf("events = %v, want playback configured before start", h.log.snapshot())
	}
}

func TestSpeaker_StreamBlankTextNotSent(t *testing.T) {
	h := newSpeakerHarness(t, nil)
	if err := h.speaker.StartStreaming(context.Background(), "  "); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)
	if h.speaker.SendText("", SendTextOptions{}) {
		t.Error("SendText(blank) = true")
	}
	h.speaker.FlushStream()
	if got := readText(t, peer); got != `{"type":"Flush"}` {
		t.Errorf("first message = %s, want Flush", got)
	}
}

func TestSpeaker_StreamAudioAndMessages(t *testing.T) {
	h := newSpeakerHarness(t, nil)
	if err := h.speaker.StartStreaming(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)

	peer.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0})
	writeText(t, peer, `{"type":"Metadata","request_id":"r1","model_name":"aura"}`)
	writeText(t, peer, `{"type":"Flushed","sequence_id":3}`)
	writeText(t, peer, `{"type":"Cleared","sequence_id":4}`)
	writeText(t, peer, `{"type":"Warning","description":"long text","code":"TEXT_LENGTH_WARNING"}`)
	writeText(t, peer, `{"type":"Flushed"}`)
	writeText(t, peer, `{"type":"Error","description":"boom","code":"E1"}`)

	waitFor(t, "error", h.lenOf(func() int { return len(h.errs) }))

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.chunks) != 1 || len(h.chunks[0]) != 4 {
		t.Errorf("chunks = %v", h.chunks)
	}
	if len(h.sink.fedBytes()) != 4 {
		t.Errorf("fed = %v", h.sink.fedBytes())
	}
	if len(h.metadata) != 1 || h.metadata[0].RequestID != "r1" {
		t.Errorf("metadata = %v", h.metadata)
	}
	if len(h.flushed) != 1 || h.flushed[0].SequenceID != 3 {
		t.Errorf("flushed = %v", h.flushed)
	}
	if len(h.cleared) != 1 || h.cleared[0].SequenceID != 4 {
		t.Errorf("cleared = %v", h.cleared)
	}
	if len(h.warnings) != 1 || h.warnings[0].Code != "TEXT_LENGTH_WARNING" {
		t.Errorf("warnings = %v", h.warnings)
	}
	if len(h.unknown) != 1 || h.unknown[0].MessageType() != "Flushed" {
		t.Errorf("unknown = %v", h.unknown)
	}
	var se *ServerError
	if !errors.As(h.errs[0], &se) || se.Code != "E1" || se.Description != "boom" {
		t.Errorf("error = %v", h.errs[0])
	}
}

func TestSpeaker_SendTextOptions(t *testing.T) {
	noFlush := false
	h := newSpeakerHarness(t, &SpeakOptions{AutoFlush: &noFlush})
	if err := h.speaker.StartStreaming(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)

	flush := true
	seq := 9
	if !h.speaker.SendText("two", SendTextOptions{Flush: &flush, SequenceID: &seq}) {
		t.Fatal("SendText = false")
	}
	h.speaker.ClearStream()

	want := []string{
		`{"type":"Text","text":"one"}`,
		`{"type":"Text","text":"two","sequence_id":9}`,
		`{"type":"Flush"}`,
		`{"type":"Clear"}`,
	}
	for i, w := range want {
		if got := readText(t, peer); got != w {
			t.Errorf("message %d = %s, want %s", i, got, w)
		}
	}
	if h.log.count("playback.stop") != 0 {
		t.Error("ClearStream stopped playback")
	}
}

func TestSpeaker_CloseStreamGracefully(t *testing.T) {
	h := newSpeakerHarness(t, nil)
	if err := h.speaker.StartStreaming(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)

	if !h.speaker.CloseStreamGracefully() {
		t.Fatal("CloseStreamGracefully = false")
	}
	if got := readText(t, peer); got != `{"type":"Close"}` {
		t.Errorf("message = %s", got)
	}
	peer.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	waitFor(t, "OnStreamEnd", func() bool { return h.log.count("end") == 1 })
	if h.log.count("error") != 0 {
		t.Error("graceful close reported an error")
	}
	if h.log.count("playback.stop") != 1 {
		t.Errorf("events = %v, want one playback stop", h.log.snapshot())
	}
	if h.speaker.IsStreaming() || h.speaker.FlushStream() {
		t.Error("stream still usable after close")
	}
}

func TestSpeaker_StopStreaming(t *testing.T) {
	h := newSpeakerHarness(t, nil)
	h.speaker.StopStreaming()
	if h.log.count("end") != 0 {
		t.Error("OnStreamEnd fired without a stream")
	}

	if err := h.speaker.StartStreaming(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	peer := h.srv.accept(t)
	h.speaker.StopStreaming()

	if n := h.log.count("end"); n != 1 {
		t.Errorf("OnStreamEnd fired %d times", n)
	}
	if h.log.indexOf("playback.stop") > h.log.indexOf("end") {
		t.Errorf("events = %v", h.log.snapshot())
	}
	ce := readClose(t, peer)
	if ce.Code != websocket.CloseNormalClosure || ce.Text != "cleanup" {
		t.Errorf("close = %d %q", ce.Code, ce.Text)
	}
	if h.speaker.SendMessage(SpeakFlush{}) {
		t.Error("SendMessage after stop = true")
	}
}

func TestSpeaker_StreamCredentialMissing(t *testing.T) {
	var got error
	s := NewSpeaker(NewClient("", WithLogger(testLogger())), SpeakerConfig{OnStreamError: func(err error) { got = err }})
	if err := s.StartStreaming(context.Background(), "hi"); !errors.Is(err, ErrCredentialMissing) || got != err {
		t.Errorf("err = %v, OnStreamError(%v)", err, got)
	}
}
