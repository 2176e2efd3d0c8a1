package player

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
)

// Output opens a writer for PCM in the given format. Every Open is paired
// with exactly one Close of the returned writer.
type Output interface {
	Open(f pcm.Format) (io.WriteCloser, error)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(f pcm.Format) (io.WriteCloser, error)

// Open calls fn.
func (fn OutputFunc) Open(f pcm.Format) (io.WriteCloser, error) {
	return fn(f)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Discard drops all audio.
var Discard Output = OutputFunc(func(pcm.Format) (io.WriteCloser, error) {
	return nopCloser{io.Discard}, nil
})

// WAVFiles records each opened output to its own numbered WAV file in dir,
// named prefix-001.wav, prefix-002.wav and so on.
func WAVFiles(dir, prefix string) Output {
	var seq atomic.Int64
	return OutputFunc(func(f pcm.Format) (io.WriteCloser, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%03d.wav", prefix, seq.Add(1)))
		file, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		w, err := pcm.NewWAVWriter(file, f)
		if err != nil {
			file.Close()
			return nil, err
		}
		return w, nil
	})
}
