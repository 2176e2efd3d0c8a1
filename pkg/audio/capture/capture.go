package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

// DefaultFrameDuration is the length of audio delivered per frame.
const DefaultFrameDuration = 20 * time.Millisecond

// Input opens a reader of raw linear16 PCM in the requested format.
type Input interface {
	Open(f pcm.Format) (io.ReadCloser, error)
}

// InputFunc adapts a function to Input.
type InputFunc func(f pcm.Format) (io.ReadCloser, error)

// Open calls fn.
func (fn InputFunc) Open(f pcm.Format) (io.ReadCloser, error) {
	return fn(f)
}

// Config configures a Source.
type Config struct {
	Input Input

	// SampleRate of captured frames. Defaults to 16000. Frames are mono.
	SampleRate int

	// FrameDuration defaults to DefaultFrameDuration.
	FrameDuration time.Duration

	// Realtime paces delivery at the audio byte rate. Use it for inputs
	// that can be read faster than real time, such as files.
	Realtime bool

	// OnEnd is called when the input ends on its own, with nil at EOF.
	// It is not called after StopCapture.
	OnEnd func(err error)

	Logger *slog.Logger
}

// Source reads fixed-size int16 frames from an Input and fans them out to
// subscribers.
type Source struct {
	input      Input
	format     pcm.Format
	frameBytes int
	realtime   bool
	onEnd      func(error)
	logger     *slog.Logger

	subMu  sync.RWMutex
	subs   map[int]func(deepgram.Frame)
	nextID int

	runMu  sync.Mutex
	cancel context.CancelFunc
	reader io.ReadCloser
	done   chan struct{}
}

// New returns a stopped Source.
func New(cfg Config) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.L16Mono16K.SampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnEnd == nil {
		cfg.OnEnd = func(error) {}
	}
	f := pcm.Mono(cfg.SampleRate)
	n := int(f.BytesInDuration(cfg.FrameDuration))
	if n < f.FrameBytes() {
		n = f.FrameBytes()
	}
	return &Source{
		input:      cfg.Input,
		format:     f,
		frameBytes: n,
		realtime:   cfg.Realtime,
		onEnd:      cfg.OnEnd,
		logger:     cfg.Logger,
		subs:       make(map[int]func(deepgram.Frame)),
	}
}

// Format returns the format of delivered frames.
func (s *Source) Format() pcm.Format {
	return s.format
}

// StartCapture opens the input and starts the read loop. It is a no-op
// while capture is running.
func (s *Source) StartCapture(ctx context.Context) error {
	if s.input == nil {
		return errors.New("capture: no input")
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done != nil {
		return nil
	}

	r, err := s.input.Open(s.format)
	if err != nil {
		return fmt.Errorf("capture: open input: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.reader, s.done = cancel, r, done

	go func() {
		defer close(done)
		err := s.readLoop(ctx, r)
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("capture ended", "error", err)
		s.onEnd(err)
	}()
	return nil
}

// StopCapture stops the read loop, closes the input and waits for the loop
// to exit. No frame is delivered after it returns.
func (s *Source) StopCapture() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return nil
	}
	s.cancel()
	err := s.reader.Close()
	<-s.done
	s.cancel, s.reader, s.done = nil, nil, nil
	if errors.Is(err, os.ErrClosed) {
		err = nil
	}
	return err
}

// Subscribe registers fn for every captured frame. Once the returned
// function returns, fn is never called again.
func (s *Source) Subscribe(fn func(deepgram.Frame)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Source) readLoop(ctx context.Context, r io.Reader) error {
	var limiter *rate.Limiter
	if s.realtime {
		limiter = rate.NewLimiter(rate.Limit(s.format.BytesRate()), s.frameBytes)
		// Start with an empty bucket so the first frame is paced too.
		limiter.AllowN(time.Now(), s.frameBytes)
	}

	for {
		buf := make([]byte, s.frameBytes)
		n, err := io.ReadFull(r, buf)
		n -= n % s.format.FrameBytes()
		if n > 0 {
			if limiter != nil {
				if werr := limiter.WaitN(ctx, n); werr != nil {
					return werr
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.deliver(deepgram.Frame{
				Data:       buf[:n],
				SampleRate: s.format.SampleRate,
				Encoding:   deepgram.EncodingInt16,
			})
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}

func (s *Source) deliver(f deepgram.Frame) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(f)
	}
}
