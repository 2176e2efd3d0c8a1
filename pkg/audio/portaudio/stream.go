//go:build portaudio

package portaudio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
)

// InputStream records linear16 from the default input device. It
// implements io.ReadCloser.
type InputStream struct {
	stream *stream
	format pcm.Format

	mu      sync.Mutex
	buf     []byte
	pending []byte
}

// NewInputStream opens the default input device at format. Each device
// read covers bufferDuration of audio.
func NewInputStream(format pcm.Format, bufferDuration time.Duration) (*InputStream, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("portaudio: invalid format %v", format)
	}
	frames := int(format.SamplesInDuration(bufferDuration))
	s, err := openStream(format.Channels, 0, format.SampleRate, frames)
	if err != nil {
		return nil, err
	}
	return &InputStream{
		stream: s,
		format: format,
		buf:    make([]byte, s.bufferSize),
	}, nil
}

// Read returns recorded PCM, blocking for at most one device buffer.
func (is *InputStream) Read(p []byte) (int, error) {
	is.mu.Lock()
	defer is.mu.Unlock()
	if len(is.pending) == 0 {
		if err := is.stream.read(is.buf); err != nil {
			if err == errStreamClosed {
				return 0, io.EOF
			}
			return 0, err
		}
		is.pending = is.buf
	}
	n := copy(p, is.pending)
	is.pending = is.pending[n:]
	return n, nil
}

// Format returns the PCM format.
func (is *InputStream) Format() pcm.Format {
	return is.format
}

// Close stops and closes the device stream.
func (is *InputStream) Close() error {
	return is.stream.close()
}

// OutputStream plays linear16 to the default output device. It implements
// io.WriteCloser. Writes are grouped into whole device buffers; Close pads
// the final partial buffer with silence.
type OutputStream struct {
	stream *stream
	format pcm.Format

	mu  sync.Mutex
	buf []byte
	n   int
}

// NewOutputStream opens the default output device at format.
func NewOutputStream(format pcm.Format, bufferDuration time.Duration) (*OutputStream, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("portaudio: invalid format %v", format)
	}
	frames := int(format.SamplesInDuration(bufferDuration))
	s, err := openStream(0, format.Channels, format.SampleRate, frames)
	if err != nil {
		return nil, err
	}
	return &OutputStream{
		stream: s,
		format: format,
		buf:    make([]byte, s.bufferSize),
	}, nil
}

// Write queues p for playback, blocking while the device drains full
// buffers.
func (os *OutputStream) Write(p []byte) (int, error) {
	os.mu.Lock()
	defer os.mu.Unlock()
	written := 0
	for len(p) > 0 {
		c := copy(os.buf[os.n:], p)
		os.n += c
		p = p[c:]
		written += c
		if os.n == len(os.buf) {
			if err := os.stream.write(os.buf); err != nil {
				return written, err
			}
			os.n = 0
		}
	}
	return written, nil
}

// Format returns the PCM format.
func (os *OutputStream) Format() pcm.Format {
	return os.format
}

// Close plays any buffered remainder and closes the device stream.
func (os *OutputStream) Close() error {
	os.mu.Lock()
	defer os.mu.Unlock()
	if os.n > 0 {
		clear(os.buf[os.n:])
		os.stream.write(os.buf)
		os.n = 0
	}
	return os.stream.close()
}

// OpenInput opens the default input device with DefaultBufferDuration. It
// matches capture.InputFunc.
func OpenInput(format pcm.Format) (io.ReadCloser, error) {
	return NewInputStream(format, DefaultBufferDuration)
}

// OpenOutput opens the default output device with DefaultBufferDuration.
// It matches player.OutputFunc.
func OpenOutput(format pcm.Format) (io.WriteCloser, error) {
	return NewOutputStream(format, DefaultBufferDuration)
}
