package player

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
)

// DefaultMinChunk is the number of pending bytes Feed collects before
// handing them to the output.
const DefaultMinChunk = 1000

// drainBlock is the largest single write to an output. It is a multiple of
// every supported frame size.
const drainBlock = 4096

var (
	// ErrNotConfigured is returned by Feed and by PlayOnce with raw PCM
	// before Configure has been called.
	ErrNotConfigured = errors.New("player: format not configured")

	// ErrUnsupportedClip is returned by PlayOnce for encoded audio the
	// player cannot decode.
	ErrUnsupportedClip = errors.New("player: unsupported clip encoding")

	errStopped = errors.New("player: stopped")
)

// Config configures a Player.
type Config struct {
	// Output opens the device or file that receives PCM. Defaults to
	// Discard.
	Output Output

	// MinChunk is the pending size that triggers a write. Defaults to
	// DefaultMinChunk.
	MinChunk int

	Logger *slog.Logger
}

// Player renders linear16 audio to an Output. Streamed audio arrives through
// Feed and is written by a background goroutine so callers never block on
// the device. Complete clips go through PlayOnce on their own output.
type Player struct {
	output   Output
	minChunk int
	logger   *slog.Logger

	mu      sync.Mutex
	format  pcm.Format
	pending []byte
	current *stream
	streams map[*stream]struct{}
	clips   map[*clip]struct{}
}

type stream struct {
	format pcm.Format
	queue  *chunkQueue
	done   chan struct{}
}

type clip struct {
	stopped atomic.Bool
	done    chan struct{}
}

// New returns a Player with no format configured.
func New(cfg Config) *Player {
	if cfg.Output == nil {
		cfg.Output = Discard
	}
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = DefaultMinChunk
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Player{
		output:   cfg.Output,
		minChunk: cfg.MinChunk,
		logger:   cfg.Logger,
		streams:  make(map[*stream]struct{}),
		clips:    make(map[*clip]struct{}),
	}
}

// Format returns the configured format.
func (p *Player) Format() pcm.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

// Configure sets the format of subsequent Feed calls and opens the output.
// Changing the format lets audio already queued at the old format play out
// on its own output.
func (p *Player) Configure(sampleRate, channels int) error {
	f := pcm.Format{SampleRate: sampleRate, Channels: channels}
	if !f.Valid() {
		return fmt.Errorf("player: invalid format %d Hz, %d channels", sampleRate, channels)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		if p.current.format == f {
			return nil
		}
		if err := p.flushLocked(); err != nil {
			p.logger.Debug("flush before reconfigure", "error", err)
		}
		p.current.queue.CloseWrite()
		p.current = nil
	}
	p.format = f
	p.pending = p.pending[:0]
	return p.openLocked()
}

func (p *Player) openLocked() error {
	w, err := p.output.Open(p.format)
	if err != nil {
		return fmt.Errorf("player: open output: %w", err)
	}
	s := &stream{
		format: p.format,
		queue:  newChunkQueue(p.minChunk * 4),
		done:   make(chan struct{}),
	}
	p.current = s
	p.streams[s] = struct{}{}
	go p.drain(s, w)
	p.logger.Debug("playback opened", "format", p.format.String())
	return nil
}

func (p *Player) drain(s *stream, w io.WriteCloser) {
	defer func() {
		if err := w.Close(); err != nil {
			p.logger.Debug("close output", "error", err)
		}
		p.mu.Lock()
		delete(p.streams, s)
		if p.current == s {
			p.current = nil
		}
		p.mu.Unlock()
		close(s.done)
	}()

	buf := make([]byte, drainBlock)
	for {
		n, err := s.queue.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				p.logger.Warn("playback write failed", "error", werr)
				s.queue.CloseWithError(werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, errStopped) {
				p.logger.Debug("playback queue closed", "error", err)
			}
			return
		}
	}
}

// Feed buffers data and hands it to the output once at least MinChunk bytes
// are pending. After Stop the output is reopened at the configured format.
func (p *Player) Feed(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.format.Valid() {
		return ErrNotConfigured
	}
	p.pending = append(p.pending, data...)
	if len(p.pending) < p.minChunk {
		return nil
	}
	return p.flushLocked()
}

// Flush hands any pending bytes to the output regardless of size.
func (p *Player) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Player) flushLocked() error {
	if len(p.pending) == 0 {
		return nil
	}
	if p.current == nil {
		if err := p.openLocked(); err != nil {
			return err
		}
	}
	_, err := p.current.queue.Write(p.pending)
	p.pending = p.pending[:0]
	if err != nil {
		p.current = nil
		return err
	}
	return nil
}

// PlayOnce plays a complete clip on a dedicated output. WAV clips carry
// their own format; anything else is taken as raw linear16 at the
// configured format. The call returns once the clip is queued.
func (p *Player) PlayOnce(data []byte) error {
	if kind := sniffEncoded(data); kind != "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedClip, kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, body := p.format, data
	if pcm.IsWAV(data) {
		var err error
		if f, body, err = pcm.ParseWAV(data); err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedClip, err)
		}
	} else if !f.Valid() {
		return ErrNotConfigured
	}

	w, err := p.output.Open(f)
	if err != nil {
		return fmt.Errorf("player: open output: %w", err)
	}
	c := &clip{done: make(chan struct{})}
	p.clips[c] = struct{}{}
	go p.playClip(c, w, body)
	return nil
}

func (p *Player) playClip(c *clip, w io.WriteCloser, body []byte) {
	defer func() {
		if err := w.Close(); err != nil {
			p.logger.Debug("close clip output", "error", err)
		}
		p.mu.Lock()
		delete(p.clips, c)
		p.mu.Unlock()
		close(c.done)
	}()
	for len(body) > 0 && !c.stopped.Load() {
		n := min(len(body), drainBlock)
		if _, err := w.Write(body[:n]); err != nil {
			p.logger.Warn("clip write failed", "error", err)
			return
		}
		body = body[n:]
	}
}

// Stop discards pending and queued audio, interrupts clips, and waits until
// every output is closed. The configured format is kept.
func (p *Player) Stop() error {
	p.mu.Lock()
	p.pending = p.pending[:0]
	p.current = nil
	var waits []chan struct{}
	for s := range p.streams {
		s.queue.CloseWithError(errStopped)
		waits = append(waits, s.done)
	}
	for c := range p.clips {
		c.stopped.Store(true)
		waits = append(waits, c.done)
	}
	p.mu.Unlock()

	for _, done := range waits {
		<-done
	}
	return nil
}

// Drain flushes pending audio and waits until everything queued so far has
// been written and every output is closed. The player remains usable.
func (p *Player) Drain() error {
	p.mu.Lock()
	err := p.flushLocked()
	p.current = nil
	var waits []chan struct{}
	for s := range p.streams {
		s.queue.CloseWrite()
		waits = append(waits, s.done)
	}
	for c := range p.clips {
		waits = append(waits, c.done)
	}
	p.mu.Unlock()

	for _, done := range waits {
		<-done
	}
	return err
}

// sniffEncoded names well-known compressed containers by their magic bytes.
// Raw PCM and WAV return "".
func sniffEncoded(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(data, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return "webm"
	case len(data) >= 2 && data[0] == 0xff:
		switch data[1] {
		case 0xfb, 0xf3, 0xf2:
			return "mp3"
		case 0xf1, 0xf9:
			return "aac"
		}
	}
	return ""
}
