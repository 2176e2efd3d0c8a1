package deepgram

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/audio/resampler"
)

// captureAdapter re-encodes captured frames into the linear16 wire format
// at the session's target rate.
type captureAdapter struct {
	targetRate int
	// factor overrides the computed decimation factor when > 0.
	factor int
}

func (a captureAdapter) decimation(nativeRate int) int {
	if a.factor > 0 {
		return a.factor
	}
	return pcm.DecimationFactor(nativeRate, a.targetRate)
}

// encode converts one frame. Float32 frames are decimated and converted
// to int16; int16 frames are assumed to already be at the target rate and
// pass through unchanged.
func (a captureAdapter) encode(f Frame) ([]byte, error) {
	switch f.Encoding {
	case EncodingFloat32:
		out, err := pcm.Float32LEToInt16LE(f.Data, a.decimation(f.SampleRate))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return out, nil
	case EncodingInt16:
		return f.Data, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrEncoding, f.Encoding)
}

const framePumpSize = 64

// framePump hands frames from the capture callback to the session
// goroutine. push never blocks; once closed, every frame is dropped.
type framePump struct {
	ch   chan Frame
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newFramePump(size int) *framePump {
	return &framePump{
		ch:   make(chan Frame, size),
		done: make(chan struct{}),
	}
}

// push enqueues f. It reports false when the pump is closed or full.
func (p *framePump) push(f Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- f:
		return true
	default:
		return false
	}
}

func (p *framePump) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

func (p *framePump) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// run delivers frames to fn until the pump is closed.
func (p *framePump) run(fn func(Frame)) {
	for {
		select {
		case <-p.done:
			return
		case f := <-p.ch:
			if p.isClosed() {
				return
			}
			fn(f)
		}
	}
}

// playbackAdapter feeds remote audio into a PlaybackSink, converting the
// sample rate when the sink runs at a fixed rate.
type playbackAdapter struct {
	sink     PlaybackSink
	sinkRate int
	logger   *slog.Logger

	mu       sync.Mutex
	rate     int
	channels int
	conv     *resampler.Converter
}

func newPlaybackAdapter(sink PlaybackSink, sinkRate int, logger *slog.Logger) *playbackAdapter {
	return &playbackAdapter{sink: sink, sinkRate: sinkRate, logger: logger}
}

// configure sets the format of subsequent audio.
func (p *playbackAdapter) configure(sampleRate, channels int) error {
	if p.sink == nil {
		return nil
	}
	if channels <= 0 {
		channels = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate, p.channels = sampleRate, channels
	p.conv = nil
	outRate := sampleRate
	if p.sinkRate > 0 && p.sinkRate != sampleRate {
		stereo := channels == 2
		conv, err := resampler.NewConverter(
			resampler.Format{SampleRate: sampleRate, Stereo: stereo},
			resampler.Format{SampleRate: p.sinkRate, Stereo: stereo},
		)
		if err != nil {
			return err
		}
		p.conv = conv
		outRate = p.sinkRate
	}
	return p.sink.Configure(outRate, channels)
}

// format returns the configured remote sample rate and channel count.
func (p *playbackAdapter) format() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate, p.channels
}

func (p *playbackAdapter) convert(data []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conv == nil {
		return data, nil
	}
	return p.conv.Process(data)
}

// feed hands raw PCM to the sink.
func (p *playbackAdapter) feed(data []byte) error {
	if p.sink == nil || len(data) == 0 {
		return nil
	}
	out, err := p.convert(data)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	return p.sink.Feed(out)
}

// playOnce plays a complete clip.
func (p *playbackAdapter) playOnce(data []byte) error {
	if p.sink == nil || len(data) == 0 {
		return nil
	}
	return p.sink.PlayOnce(data)
}

// stop discards buffered audio. Errors are logged, not returned, because
// stop runs during teardown.
func (p *playbackAdapter) stop() {
	if p.sink == nil {
		return
	}
	if err := p.sink.Stop(); err != nil {
		p.logger.Debug("stop playback", "error", err)
	}
}
