package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SynthesisCache stores one-shot synthesis results. The speechcache
// package provides a persistent implementation.
type SynthesisCache interface {
	LoadSynthesis(ctx context.Context, opts *SpeakOptions, text string) ([]byte, bool)
	StoreSynthesis(ctx context.Context, opts *SpeakOptions, text string, audio []byte) error
}

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	// Playback renders synthesized audio. Nil disables playback.
	Playback PlaybackSink

	// PlaybackSampleRate is the fixed rate of Playback, if any. Audio at
	// another rate is resampled. Zero passes audio through unchanged.
	PlaybackSampleRate int

	// Options holds default synthesis options.
	Options *SpeakOptions

	// Cache, if set, serves repeated one-shot syntheses.
	Cache SynthesisCache

	OnBeforeSynthesize  func()
	OnSynthesizeSuccess func(audio []byte)
	OnSynthesizeError   func(error)

	OnBeforeStream   func()
	OnStreamStart    func()
	OnAudioChunk     func(chunk []byte)
	OnStreamMetadata func(*SpeakMetadata)
	OnStreamFlushed  func(*SpeakFlushed)
	OnStreamCleared  func(*SpeakCleared)
	OnStreamWarning  func(*SpeakWarning)
	// OnStreamMessage receives messages of unknown shape.
	OnStreamMessage func(SpeakServerMessage)
	OnStreamError   func(error)
	OnStreamEnd     func()
}

func (c *SpeakerConfig) setDefaults() {
	if c.OnBeforeSynthesize == nil {
		c.OnBeforeSynthesize = noop
	}
	if c.OnSynthesizeSuccess == nil {
		c.OnSynthesizeSuccess = func([]byte) {}
	}
	if c.OnSynthesizeError == nil {
		c.OnSynthesizeError = noopErr
	}
	if c.OnBeforeStream == nil {
		c.OnBeforeStream = noop
	}
	if c.OnStreamStart == nil {
		c.OnStreamStart = noop
	}
	if c.OnAudioChunk == nil {
		c.OnAudioChunk = func([]byte) {}
	}
	if c.OnStreamMetadata == nil {
		c.OnStreamMetadata = func(*SpeakMetadata) {}
	}
	if c.OnStreamFlushed == nil {
		c.OnStreamFlushed = func(*SpeakFlushed) {}
	}
	if c.OnStreamCleared == nil {
		c.OnStreamCleared = func(*SpeakCleared) {}
	}
	if c.OnStreamWarning == nil {
		c.OnStreamWarning = func(*SpeakWarning) {}
	}
	if c.OnStreamMessage == nil {
		c.OnStreamMessage = func(SpeakServerMessage) {}
	}
	if c.OnStreamError == nil {
		c.OnStreamError = noopErr
	}
	if c.OnStreamEnd == nil {
		c.OnStreamEnd = noop
	}
}

// SendTextOptions controls one SendText call.
type SendTextOptions struct {
	// Flush overrides SpeakOptions.AutoFlush for this call.
	Flush *bool
	// SequenceID tags the text; the matching Flushed echoes it.
	SequenceID *int
}

// Speaker synthesizes speech, either in one request or over a streaming
// session fed with text incrementally.
//
// At most one stream is active at a time. All methods are safe for
// concurrent use.
type Speaker struct {
	client   *Client
	config   SpeakerConfig
	logger   *slog.Logger
	playback *playbackAdapter

	mu   sync.Mutex
	sess *speakSession

	synth abortSlot
}

type speakSession struct {
	id     string
	logger *slog.Logger
	opts   *SpeakOptions

	conn      *Conn
	closed    bool
	opened    bool
	stopAfter func() bool
}

// NewSpeaker creates a Speaker.
func NewSpeaker(client *Client, config SpeakerConfig) *Speaker {
	if client == nil {
		panic("deepgram: nil client")
	}
	config.setDefaults()
	logger := client.logger()
	return &Speaker{
		client:   client,
		config:   config,
		logger:   logger,
		playback: newPlaybackAdapter(config.Playback, config.PlaybackSampleRate, logger),
	}
}

func (s *Speaker) options() (*SpeakOptions, error) {
	merged, err := mergeOptions(s.config.Options, nil)
	if err != nil {
		return nil, err
	}
	return merged.withDefaults(), nil
}

// Synthesize converts text to audio in one request and plays it through
// the playback sink. A newer call aborts an in-flight one; the aborted
// call returns ErrRequestAborted and fires no callbacks.
func (s *Speaker) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.config.OnBeforeSynthesize()
	start := time.Now()
	audio, err := s.synthesize(ctx, text)
	s.client.metrics().observeRequest("synthesize", start, err)
	if errors.Is(err, ErrRequestAborted) {
		return nil, err
	}
	if err != nil {
		s.config.OnSynthesizeError(err)
		return nil, err
	}
	s.config.OnSynthesizeSuccess(audio)
	return audio, nil
}

func (s *Speaker) synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	if err := s.client.checkCredential(); err != nil {
		return nil, err
	}
	opts, err := s.options()
	if err != nil {
		return nil, err
	}

	ctx, done := s.synth.begin(ctx)
	defer done()

	audio, hit := s.lookup(ctx, opts, text)
	if !hit {
		audio, err = s.client.postJSON(ctx, "/speak", opts.HTTPQuery(), map[string]string{"text": text})
		if err != nil {
			return nil, err
		}
		if aborted := abortCause(ctx); aborted != nil {
			return nil, aborted
		}
		if s.config.Cache != nil {
			if err := s.config.Cache.StoreSynthesis(ctx, opts, text, audio); err != nil {
				s.logger.Warn("store synthesis", "error", err)
			}
		}
	}

	if err := s.play(opts, audio); err != nil {
		return nil, err
	}
	return audio, nil
}

func (s *Speaker) lookup(ctx context.Context, opts *SpeakOptions, text string) ([]byte, bool) {
	if s.config.Cache == nil {
		return nil, false
	}
	audio, ok := s.config.Cache.LoadSynthesis(ctx, opts, text)
	if ok {
		s.logger.Debug("synthesis cache hit", "model", opts.Model, "bytes", len(audio))
	}
	return audio, ok && len(audio) > 0
}

// play renders a complete one-shot result. Raw linear16 goes through the
// buffered feed path; encoded formats are handed over as a single clip.
func (s *Speaker) play(opts *SpeakOptions, audio []byte) error {
	if opts.Encoding != DefaultSpeakEncoding {
		return s.playback.playOnce(audio)
	}
	if err := s.playback.configure(opts.SampleRate, 1); err != nil {
		return err
	}
	return s.playback.feed(audio)
}

// StartStreaming opens a streaming synthesis session. A non-empty text is
// sent as the first message, followed by a Flush when auto flush is on.
//
// Failures are reported through OnStreamError as well as returned. The
// stream is torn down when ctx is cancelled.
func (s *Speaker) StartStreaming(ctx context.Context, text string) error {
	s.StopStreaming()
	s.config.OnBeforeStream()

	id, logger := newSessionLogger(s.logger, modeSpeak)
	sess := &speakSession{id: id, logger: logger}
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()

	err := s.startStream(ctx, sess, text)
	if errors.Is(err, ErrRequestAborted) {
		return err
	}
	if err != nil {
		s.client.metrics().sessionFailed(modeSpeak)
		logger.Debug("start streaming failed", "error", err)
		s.config.OnStreamError(err)
		s.teardown(sess)
		return err
	}
	return nil
}

func (s *Speaker) startStream(ctx context.Context, sess *speakSession, text string) error {
	if err := s.client.checkCredential(); err != nil {
		return err
	}
	opts, err := s.options()
	if err != nil {
		return err
	}
	sess.opts = opts

	url := buildURL(s.client.config.wsURL, "/speak", opts.StreamQuery())
	conn, err := s.client.dialConn(ctx, url, connHandler{
		onText:   func(data []byte) { s.handleText(sess, data) },
		onBinary: func(data []byte) { s.handleAudio(sess, data) },
		onClose:  func(err error) { s.handleClose(sess, err) },
	}, sess.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if sess.closed {
		s.mu.Unlock()
		conn.Close(CloseNormal, "cleanup")
		return ErrRequestAborted
	}
	sess.conn = conn
	sess.opened = true
	s.mu.Unlock()
	s.client.metrics().sessionOpened(modeSpeak)
	sess.logger.Info("streaming synthesis", "model", opts.Model, "sample_rate", opts.SampleRate)

	if err := s.playback.configure(opts.SampleRate, 1); err != nil {
		return err
	}
	if strings.TrimSpace(text) != "" {
		s.sendText(sess, text, SendTextOptions{})
	}
	s.config.OnStreamStart()

	stop := context.AfterFunc(ctx, func() {
		if s.teardown(sess) {
			s.config.OnStreamEnd()
		}
	})
	s.mu.Lock()
	sess.stopAfter = stop
	s.mu.Unlock()
	return nil
}

func (s *Speaker) current(sess *speakSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess == sess && !sess.closed
}

func (s *Speaker) active() *speakSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.sess.closed || s.sess.conn == nil {
		return nil
	}
	return s.sess
}

func (s *Speaker) handleAudio(sess *speakSession, data []byte) {
	if !s.current(sess) {
		return
	}
	if err := s.playback.feed(data); err != nil {
		sess.logger.Debug("feed playback", "error", err)
	}
	s.config.OnAudioChunk(data)
}

func (s *Speaker) handleText(sess *speakSession, data []byte) {
	if !s.current(sess) {
		return
	}
	msg, err := ParseSpeakMessage(data)
	if err != nil {
		sess.logger.Debug("ignore speak frame", "error", err)
		return
	}
	switch m := msg.(type) {
	case *SpeakMetadata:
		s.config.OnStreamMetadata(m)
	case *SpeakFlushed:
		s.config.OnStreamFlushed(m)
	case *SpeakCleared:
		s.config.OnStreamCleared(m)
	case *SpeakWarning:
		sess.logger.Warn("speak warning", "code", m.Code, "description", m.Description)
		s.config.OnStreamWarning(m)
	case *SpeakError:
		s.config.OnStreamError(m.Err())
	default:
		s.config.OnStreamMessage(m)
	}
}

func (s *Speaker) handleClose(sess *speakSession, err error) {
	if !s.teardown(sess) {
		return
	}
	if err != nil {
		s.config.OnStreamError(err)
	}
	s.config.OnStreamEnd()
}

// teardown stops playback and closes the transport. It reports whether
// this call did the work.
func (s *Speaker) teardown(sess *speakSession) bool {
	s.mu.Lock()
	if sess.closed {
		s.mu.Unlock()
		return false
	}
	sess.closed = true
	if s.sess == sess {
		s.sess = nil
	}
	conn, stop, opened := sess.conn, sess.stopAfter, sess.opened
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.playback.stop()
	if conn != nil {
		conn.Close(CloseNormal, "cleanup")
	}
	if opened {
		s.client.metrics().sessionClosed(modeSpeak)
	}
	sess.logger.Debug("speak session torn down")
	return true
}

// StopStreaming ends the stream immediately, discarding pending audio.
// OnStreamEnd fires only when a stream was active.
func (s *Speaker) StopStreaming() {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess != nil && s.teardown(sess) {
		s.config.OnStreamEnd()
	}
}

// IsStreaming reports whether a stream is open.
func (s *Speaker) IsStreaming() bool {
	sess := s.active()
	return sess != nil && sess.conn.State() == StateOpen
}

// SendMessage sends a control message on the stream. It reports false
// when no stream is open.
func (s *Speaker) SendMessage(msg SpeakClientMessage) bool {
	sess := s.active()
	if sess == nil {
		return false
	}
	return sess.conn.SendJSON(msg)
}

// SendText appends text to the stream, followed by a Flush unless
// disabled. Blank text is not sent.
func (s *Speaker) SendText(text string, opts SendTextOptions) bool {
	sess := s.active()
	if sess == nil || strings.TrimSpace(text) == "" {
		return false
	}
	return s.sendText(sess, text, opts)
}

func (s *Speaker) sendText(sess *speakSession, text string, opts SendTextOptions) bool {
	if !sess.conn.SendJSON(SpeakText{Text: text, SequenceID: opts.SequenceID}) {
		return false
	}
	flush := sess.opts.autoFlush()
	if opts.Flush != nil {
		flush = *opts.Flush
	}
	if flush {
		return sess.conn.SendJSON(SpeakFlush{})
	}
	return true
}

// FlushStream asks the server to synthesize buffered text.
func (s *Speaker) FlushStream() bool {
	return s.SendMessage(SpeakFlush{})
}

// ClearStream discards text buffered on the server.
func (s *Speaker) ClearStream() bool {
	return s.SendMessage(SpeakClear{})
}

// CloseStreamGracefully asks the server to finish pending audio and close
// the stream. OnStreamEnd fires when it does.
func (s *Speaker) CloseStreamGracefully() bool {
	return s.SendMessage(SpeakClose{})
}

// AbortSynthesis cancels the in-flight Synthesize call, if any.
func (s *Speaker) AbortSynthesis() {
	s.synth.abort()
}
