package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Capture provides microphone audio. Without it the session only
	// receives what is sent with SendAudio.
	Capture CaptureSource

	// Permission gates microphone access. Nil grants access.
	Permission PermissionGate

	// Live holds default live options; StartListening overrides them.
	Live *ListenOptions

	// Prerecorded holds default options for TranscribeFile.
	Prerecorded *PrerecordedOptions

	// DecimationFactor overrides the computed float32 decimation factor.
	DecimationFactor int

	OnBeforeStart func()
	OnStart       func()
	OnTranscript  func(*TranscriptEvent)
	// OnMessage receives every parsed message, transcripts included.
	OnMessage func(ListenEvent)
	OnError   func(error)
	OnEnd     func()

	OnBeforeTranscribe  func()
	OnTranscribeSuccess func(*PrerecordedResponse)
	OnTranscribeError   func(error)
}

func (c *ListenerConfig) setDefaults() {
	if c.OnBeforeStart == nil {
		c.OnBeforeStart = noop
	}
	if c.OnStart == nil {
		c.OnStart = noop
	}
	if c.OnTranscript == nil {
		c.OnTranscript = func(*TranscriptEvent) {}
	}
	if c.OnMessage == nil {
		c.OnMessage = func(ListenEvent) {}
	}
	if c.OnError == nil {
		c.OnError = noopErr
	}
	if c.OnEnd == nil {
		c.OnEnd = noop
	}
	if c.OnBeforeTranscribe == nil {
		c.OnBeforeTranscribe = noop
	}
	if c.OnTranscribeSuccess == nil {
		c.OnTranscribeSuccess = func(*PrerecordedResponse) {}
	}
	if c.OnTranscribeError == nil {
		c.OnTranscribeError = noopErr
	}
}

// Listener streams microphone audio for live transcription and runs
// one-shot file transcription.
//
// At most one live session is active at a time; StartListening tears down
// the previous one first. All methods are safe for concurrent use.
type Listener struct {
	client *Client
	config ListenerConfig
	logger *slog.Logger

	mu   sync.Mutex
	sess *listenSession

	transcribe abortSlot
}

type listenSession struct {
	id      string
	logger  *slog.Logger
	version APIVersion

	conn      *Conn
	capture   *captureLink
	closed    bool
	opened    bool
	stopAfter func() bool
}

// NewListener creates a Listener.
func NewListener(client *Client, config ListenerConfig) *Listener {
	if client == nil {
		panic("deepgram: nil client")
	}
	config.setDefaults()
	return &Listener{
		client: client,
		config: config,
		logger: client.logger(),
	}
}

// StartListening opens a live transcription session and starts feeding it
// microphone audio. opts override the configured defaults.
//
// Failures are reported through OnError as well as returned. The session
// is torn down when ctx is cancelled.
func (l *Listener) StartListening(ctx context.Context, opts *ListenOptions) error {
	l.StopListening()
	l.config.OnBeforeStart()

	id, logger := newSessionLogger(l.logger, modeListen)
	s := &listenSession{id: id, logger: logger}
	l.mu.Lock()
	l.sess = s
	l.mu.Unlock()

	err := l.start(ctx, s, opts)
	if errors.Is(err, ErrRequestAborted) {
		return err
	}
	if err != nil {
		l.client.metrics().sessionFailed(modeListen)
		logger.Debug("start listening failed", "error", err)
		l.config.OnError(err)
		l.teardown(s)
		return err
	}
	return nil
}

func (l *Listener) start(ctx context.Context, s *listenSession, override *ListenOptions) error {
	if l.config.Capture != nil {
		if err := requestPermission(ctx, l.config.Permission); err != nil {
			return err
		}
	}
	if err := l.client.checkCredential(); err != nil {
		return err
	}

	merged, err := mergeOptions(l.config.Live, override)
	if err != nil {
		return err
	}
	opts := merged.withDefaults()
	s.version = opts.version()

	base := l.client.config.wsURL
	if s.version == ListenV2 {
		base = l.client.config.wsV2URL
	}
	url := buildURL(base, "/listen", opts.Query())

	conn, err := l.client.dialConn(ctx, url, connHandler{
		onText:  func(data []byte) { l.handleText(s, data) },
		onClose: func(err error) { l.handleClose(s, err) },
	}, s.logger)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if s.closed {
		l.mu.Unlock()
		conn.Close(CloseNormal, "cleanup")
		return ErrRequestAborted
	}
	s.conn = conn
	s.opened = true
	l.mu.Unlock()
	l.client.metrics().sessionOpened(modeListen)
	s.logger.Info("listening", "version", s.version, "model", opts.Model)
	l.config.OnStart()

	if l.config.Capture != nil {
		link, err := startCaptureLink(ctx, l.config.Capture, captureSink{
			adapter: captureAdapter{targetRate: opts.SampleRate, factor: l.config.DecimationFactor},
			send:    conn.SendBinary,
			mode:    modeListen,
			metrics: l.client.metrics(),
			logger:  s.logger,
		})
		if err != nil {
			return fmt.Errorf("deepgram: start capture: %w", err)
		}
		l.mu.Lock()
		if s.closed {
			l.mu.Unlock()
			link.stop(s.logger)
			return ErrRequestAborted
		}
		s.capture = link
		l.mu.Unlock()
	}

	stop := context.AfterFunc(ctx, func() {
		if l.teardown(s) {
			l.config.OnEnd()
		}
	})
	l.mu.Lock()
	s.stopAfter = stop
	l.mu.Unlock()
	return nil
}

func (l *Listener) current(s *listenSession) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess == s && !s.closed
}

func (l *Listener) handleText(s *listenSession, data []byte) {
	if !l.current(s) {
		return
	}
	ev, ok := ParseListenMessage(data, s.version)
	if !ok {
		return
	}
	l.config.OnMessage(ev)
	switch ev := ev.(type) {
	case *TranscriptEvent:
		l.config.OnTranscript(ev)
	case *ListenErrorEvent:
		l.config.OnError(&ServerError{Description: ev.Description})
		if l.teardown(s) {
			l.config.OnEnd()
		}
	}
}

func (l *Listener) handleClose(s *listenSession, err error) {
	if !l.teardown(s) {
		return
	}
	if err != nil {
		l.config.OnError(err)
	}
	l.config.OnEnd()
}

// teardown releases the capture subscription, stops capture and closes
// the transport, in that order. It reports whether this call did the work.
func (l *Listener) teardown(s *listenSession) bool {
	l.mu.Lock()
	if s.closed {
		l.mu.Unlock()
		return false
	}
	s.closed = true
	if l.sess == s {
		l.sess = nil
	}
	conn, link, stop, opened := s.conn, s.capture, s.stopAfter, s.opened
	l.mu.Unlock()

	if stop != nil {
		stop()
	}
	link.stop(s.logger)
	if conn != nil {
		if s.version == ListenV2 {
			conn.SendJSON(closeStream)
		}
		conn.Close(CloseNormal, "cleanup")
	}
	if opened {
		l.client.metrics().sessionClosed(modeListen)
	}
	s.logger.Debug("listen session torn down")
	return true
}

// StopListening ends the live session. It is safe to call at any time;
// OnEnd fires only when a session was active.
func (l *Listener) StopListening() {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	if s != nil && l.teardown(s) {
		l.config.OnEnd()
	}
}

// IsListening reports whether a live session is open.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil && l.sess.conn != nil && l.sess.conn.State() == StateOpen
}

// SendAudio sends linear16 audio on the live session. It reports false
// when no session is open.
func (l *Listener) SendAudio(data []byte) bool {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	if s == nil || s.conn == nil {
		return false
	}
	return s.conn.SendBinary(data)
}

// AudioSource is the input of a one-shot transcription: either a URL the
// service fetches, or audio data uploaded as multipart form data.
type AudioSource struct {
	URL string

	Reader io.Reader
	// Filename defaults to "recording.wav".
	Filename string
	// ContentType defaults to "audio/wav".
	ContentType string
}

// AudioURL returns a source the service downloads itself.
func AudioURL(url string) AudioSource {
	return AudioSource{URL: url}
}

// AudioReader returns a source uploaded from r.
func AudioReader(r io.Reader, filename, contentType string) AudioSource {
	return AudioSource{Reader: r, Filename: filename, ContentType: contentType}
}

// PrerecordedResponse is the result of a one-shot transcription.
type PrerecordedResponse struct {
	Metadata json.RawMessage    `json:"metadata,omitempty"`
	Results  PrerecordedResults `json:"results"`

	// Raw is the complete response body.
	Raw json.RawMessage `json:"-"`
}

type PrerecordedResults struct {
	Channels   []PrerecordedChannel `json:"channels"`
	Utterances json.RawMessage      `json:"utterances,omitempty"`
	Summary    json.RawMessage      `json:"summary,omitempty"`
	Topics     json.RawMessage      `json:"topics,omitempty"`
	Intents    json.RawMessage      `json:"intents,omitempty"`
	Sentiments json.RawMessage      `json:"sentiments,omitempty"`
}

type PrerecordedChannel struct {
	Alternatives     []PrerecordedAlternative `json:"alternatives"`
	DetectedLanguage string                   `json:"detected_language,omitempty"`
}

type PrerecordedAlternative struct {
	Transcript string          `json:"transcript"`
	Confidence float64         `json:"confidence"`
	Words      []Word          `json:"words,omitempty"`
	Paragraphs json.RawMessage `json:"paragraphs,omitempty"`
}

type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker,omitempty"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
}

// Transcript returns the first alternative of the first channel.
func (r *PrerecordedResponse) Transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return r.Results.Channels[0].Alternatives[0].Transcript
}

// TranscribeFile transcribes a recording in one request. A newer call
// aborts an in-flight one; the aborted call returns ErrRequestAborted and
// fires no callbacks.
func (l *Listener) TranscribeFile(ctx context.Context, src AudioSource, opts *PrerecordedOptions) (*PrerecordedResponse, error) {
	l.config.OnBeforeTranscribe()
	start := time.Now()
	resp, err := l.transcribeFile(ctx, src, opts)
	l.client.metrics().observeRequest("transcribe", start, err)
	if errors.Is(err, ErrRequestAborted) {
		return nil, err
	}
	if err != nil {
		l.config.OnTranscribeError(err)
		return nil, err
	}
	l.config.OnTranscribeSuccess(resp)
	return resp, nil
}

func (l *Listener) transcribeFile(ctx context.Context, src AudioSource, override *PrerecordedOptions) (*PrerecordedResponse, error) {
	if err := l.client.checkCredential(); err != nil {
		return nil, err
	}
	if src.URL == "" && src.Reader == nil {
		return nil, fmt.Errorf("%w: audio source needs a URL or a reader", ErrInvalidInput)
	}
	opts, err := mergeOptions(l.config.Prerecorded, override)
	if err != nil {
		return nil, err
	}

	ctx, done := l.transcribe.begin(ctx)
	defer done()

	var body []byte
	if src.URL != "" {
		body, err = l.client.postJSON(ctx, "/listen", opts.Query(), map[string]string{"url": src.URL})
	} else {
		filename, contentType := src.Filename, src.ContentType
		if filename == "" {
			filename = "recording.wav"
		}
		if contentType == "" {
			contentType = "audio/wav"
		}
		body, err = l.client.postMultipart(ctx, "/listen", opts.Query(), "audio", filename, contentType, src.Reader)
	}
	if err != nil {
		return nil, err
	}
	if aborted := abortCause(ctx); aborted != nil {
		return nil, aborted
	}

	var resp PrerecordedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode transcription: %v", ErrProtocol, err)
	}
	resp.Raw = body
	if resp.Transcript() == "" {
		return nil, fmt.Errorf("%w: no transcript present in response", ErrProtocol)
	}
	return &resp, nil
}

// AbortTranscription cancels the in-flight TranscribeFile call, if any.
func (l *Listener) AbortTranscription() {
	l.transcribe.abort()
}
