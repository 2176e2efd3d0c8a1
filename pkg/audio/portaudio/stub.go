//go:build !portaudio

package portaudio

import (
	"io"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
)

// Initialize reports ErrUnavailable.
func Initialize() error { return ErrUnavailable }

// Terminate is a no-op.
func Terminate() error { return nil }

// Devices reports ErrUnavailable.
func Devices() ([]DeviceInfo, error) { return nil, ErrUnavailable }

// OpenInput reports ErrUnavailable.
func OpenInput(pcm.Format) (io.ReadCloser, error) { return nil, ErrUnavailable }

// OpenOutput reports ErrUnavailable.
func OpenOutput(pcm.Format) (io.WriteCloser, error) { return nil, ErrUnavailable }
