package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newHTTPTestClient(srv *httptest.Server) *Client {
	return NewClient("test-key", WithBaseURL(srv.URL+"/v1"), WithLogger(testLogger()))
}

const transcriptBody = `{"metadata":{"request_id":"r1"},"results":{"channels":[{"alternatives":[{"transcript":"hello there","confidence":0.98}]}]}}`

func TestListener_TranscribeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("punctuate") != "true" || r.URL.Query().Get("model") != "nova-3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["url"] != "https://example.com/a.wav" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(transcriptBody))
	}))
	defer srv.Close()

	var success *PrerecordedResponse
	var before int
	l := NewListener(newHTTPTestClient(srv), ListenerConfig{
		Prerecorded:         &PrerecordedOptions{Punctuate: true, Model: "nova-2"},
		OnBeforeTranscribe:  func() { before++ },
		OnTranscribeSuccess: func(r *PrerecordedResponse) { success = r },
		OnTranscribeError:   func(err error) { t.Errorf("OnTranscribeError(%v)", err) },
	})
	resp, err := l.TranscribeFile(context.Background(), AudioURL("https://example.com/a.wav"), &PrerecordedOptions{Model: "nova-3"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Transcript() != "hello there" {
		t.Errorf("Transcript() = %q", resp.Transcript())
	}
	if success != resp || before != 1 {
		t.Errorf("callbacks: success=%v before=%d", success, before)
	}
	if len(resp.Raw) == 0 {
		t.Error("Raw not set")
	}
}

func TestListener_TranscribeSupersede(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"stale"}]}]}}`))
			return
		}
		w.Write([]byte(transcriptBody))
	}))
	defer srv.Close()
	defer close(release)

	var cbMu sync.Mutex
	var delivered []string
	var failures int
	l := NewListener(newHTTPTestClient(srv), ListenerConfig{
		OnTranscribeSuccess: func(r *PrerecordedResponse) {
			cbMu.Lock()
			delivered = append(delivered, r.Transcript())
			cbMu.Unlock()
		},
		OnTranscribeError: func(error) { cbMu.Lock(); failures++; cbMu.Unlock() },
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := l.TranscribeFile(context.Background(), AudioURL("https://example.com/first.wav"), nil)
		firstErr <- err
	}()
	waitFor(t, "first request", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	resp, err := l.TranscribeFile(context.Background(), AudioURL("https://example.com/second.wav"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Transcript() != "hello there" {
		t.Errorf("second transcript = %q", resp.Transcript())
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrRequestAborted) {
			t.Errorf("first err = %v, want ErrRequestAborted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first request not aborted")
	}

	cbMu.Lock()
	defer cbMu.Unlock()
	if len(delivered) != 1 || delivered[0] != "hello there" || failures != 0 {
		t.Errorf("delivered=%v failures=%d, want only the second result", delivered, failures)
	}
}

func TestListener_TranscribeUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "RIFF" {
			t.Errorf("audio = %q", data)
		}
		if header.Filename != "recording.wav" || header.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("part = %s %s", header.Filename, header.Header.Get("Content-Type"))
		}
		w.Write([]byte(transcriptBody))
	}))
	defer srv.Close()

	l := NewListener(newHTTPTestClient(srv), ListenerConfig{})
	resp, err := l.TranscribeFile(context.Background(), AudioReader(strings.NewReader("RIFF"), "", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Transcript() != "hello there" {
		t.Errorf("Transcript() = %q", resp.Transcript())
	}
}

func TestListener_TranscribeNoTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	var cbErr error
	l := NewListener(newHTTPTestClient(srv), ListenerConfig{OnTranscribeError: func(err error) { cbErr = err }})
	_, err := l.TranscribeFile(context.Background(), AudioURL("https://example.com/a.wav"), nil)
	if !errors.Is(err, ErrProtocol) || !strings.Contains(err.Error(), "no transcript present") {
		t.Errorf("err = %v", err)
	}
	if cbErr != err {
		t.Errorf("OnTranscribeError(%v), want %v", cbErr, err)
	}
}

func TestListener_TranscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("dg-request-id", "req-9")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	l := NewListener(newHTTPTestClient(srv), ListenerConfig{})
	_, err := l.TranscribeFile(context.Background(), AudioURL("https://example.com/a.wav"), nil)
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !e.IsRateLimit() || !e.Retryable() || e.Body != "slow down" || e.RequestID != "req-9" {
		t.Errorf("error = %+v", e)
	}
	if errors.Is(err, ErrConnection) {
		t.Error("REST failure matched ErrConnection")
	}
}

func TestListener_TranscribeInvalidSource(t *testing.T) {
	l := NewListener(NewClient("key", WithLogger(testLogger())), ListenerConfig{})
	if _, err := l.TranscribeFile(context.Background(), AudioSource{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestOneShot_CredentialMissing(t *testing.T) {
	client := NewClient("", WithLogger(testLogger()))

	var errs []error
	record := func(err error) { errs = append(errs, err) }
	l := NewListener(client, ListenerConfig{OnTranscribeError: record})
	s := NewSpeaker(client, SpeakerConfig{OnSynthesizeError: record})
	r := NewReader(client, ReaderConfig{OnAnalyzeError: record})

	l.TranscribeFile(context.Background(), AudioURL("https://example.com/a.wav"), nil)
	s.Synthesize(context.Background(), "hello")
	r.Analyze(context.Background(), ReadInput{Text: "hello"}, nil)

	if len(errs) != 3 {
		t.Fatalf("errors = %v, want 3", errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrCredentialMissing) {
			t.Errorf("err = %v, want ErrCredentialMissing", err)
		}
	}
}

func TestSpeaker_Synthesize(t *testing.T) {
	audio := []byte{1, 0, 2, 0, 3, 0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speak" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("model") != "aura-2-andromeda-en" || q.Get("container") != "none" || q.Get("sample_rate") != "24000" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "Hello world" {
			t.Errorf("body = %v", body)
		}
		w.Header().Set("Content-Type", "audio/l16")
		w.Write(audio)
	}))
	defer srv.Close()

	sink := &fakeSink{}
	var got []byte
	s := NewSpeaker(newHTTPTestClient(srv), SpeakerConfig{
		Playback:            sink,
		Options:             &SpeakOptions{Model: "aura-2-andromeda-en", SampleRate: 24000},
		OnSynthesizeSuccess: func(b []byte) { got = b },
	})
	out, err := s.Synthesize(context.Background(), "Hello world")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(audio) || string(got) != string(audio) {
		t.Errorf("audio = %v, callback = %v", out, got)
	}
	if rate, ch := sink.format(); rate != 24000 || ch != 1 {
		t.Errorf("sink format = %d/%d, want 24000/1", rate, ch)
	}
	if string(sink.fedBytes()) != string(audio) {
		t.Errorf("fed = %v", sink.fedBytes())
	}
}

func TestSpeaker_SynthesizeEncodedPlaysOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	s := NewSpeaker(newHTTPTestClient(srv), SpeakerConfig{
		Playback: sink,
		Options:  &SpeakOptions{Encoding: "mp3"},
	})
	if _, err := s.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if len(sink.clips) != 1 || string(sink.clips[0]) != "ID3" {
		t.Errorf("clips = %v", sink.clips)
	}
	if len(sink.fedBytes()) != 0 {
		t.Error("encoded audio fed as PCM")
	}
}

func TestSpeaker_SynthesizeEmptyText(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	var cbErr error
	s := NewSpeaker(newHTTPTestClient(srv), SpeakerConfig{OnSynthesizeError: func(err error) { cbErr = err }})
	_, err := s.Synthesize(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if cbErr == nil {
		t.Error("OnSynthesizeError not called")
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestSpeaker_SynthesizeSupersede(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte{byte(n), 0})
	}))
	defer srv.Close()
	defer close(release)

	var mu2 sync.Mutex
	var successes, failures int
	s := NewSpeaker(newHTTPTestClient(srv), SpeakerConfig{
		OnSynthesizeSuccess: func([]byte) { mu2.Lock(); successes++; mu2.Unlock() },
		OnSynthesizeError:   func(error) { mu2.Lock(); failures++; mu2.Unlock() },
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Synthesize(context.Background(), "first")
		firstErr <- err
	}()
	waitFor(t, "first request", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	out, err := s.Synthesize(context.Background(), "second")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 2 {
		t.Errorf("second result = %v", out)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrRequestAborted) {
			t.Errorf("first err = %v, want ErrRequestAborted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first request not aborted")
	}

	mu2.Lock()
	defer mu2.Unlock()
	if successes != 1 || failures != 0 {
		t.Errorf("successes=%d failures=%d, want 1 and 0", successes, failures)
	}
}

type memorySynthesisCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
}

func (c *memorySynthesisCache) key(opts *SpeakOptions, text string) string {
	return opts.Model + "|" + opts.Encoding + "|" + text
}

func (c *memorySynthesisCache) LoadSynthesis(_ context.Context, opts *SpeakOptions, text string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[c.key(opts, text)]
	if ok {
		c.hits++
	}
	return b, ok
}

func (c *memorySynthesisCache) StoreSynthesis(_ context.Context, opts *SpeakOptions, text string, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[c.key(opts, text)] = audio
	return nil
}

func TestSpeaker_SynthesizeCache(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte{5, 0})
	}))
	defer srv.Close()

	cache := &memorySynthesisCache{items: map[string][]byte{}}
	s := NewSpeaker(newHTTPTestClient(srv), SpeakerConfig{Cache: cache})
	for range 3 {
		out, err := s.Synthesize(context.Background(), "cached")
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 2 || out[0] != 5 {
			t.Errorf("out = %v", out)
		}
	}
	if n := requests.Load(); n != 1 || cache.hits != 2 {
		t.Errorf("requests=%d hits=%d, want 1 and 2", n, cache.hits)
	}
}

func TestReader_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/read" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("summarize") != "true" || r.URL.Query().Get("language") != "en" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "Long text." || body["url"] != "" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"metadata":{},"results":{"summary":{"text":"Short."},"topics":{"segments":[]}}}`))
	}))
	defer srv.Close()

	var ok bool
	r := NewReader(newHTTPTestClient(srv), ReaderConfig{
		Options:          &ReadOptions{Language: "en"},
		OnAnalyzeSuccess: func(*ReadResponse) { ok = true },
	})
	resp, err := r.Analyze(context.Background(), ReadInput{Text: "Long text."}, &ReadOptions{Summarize: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results.Summary == nil || resp.Results.Summary.Text != "Short." {
		t.Errorf("summary = %+v", resp.Results.Summary)
	}
	if len(resp.Results.Topics) == 0 {
		t.Error("topics missing")
	}
	if !ok {
		t.Error("OnAnalyzeSuccess not called")
	}
}

func TestReader_AnalyzeRequiresInput(t *testing.T) {
	r := NewReader(NewClient("key", WithLogger(testLogger())), ReaderConfig{})
	if _, err := r.Analyze(context.Background(), ReadInput{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
