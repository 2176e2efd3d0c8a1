// Package portaudio connects the capture and player packages to sound
// devices through the PortAudio C library.
//
// The cgo bindings are only compiled with the portaudio build tag, which
// requires portaudio installed via pkg-config (brew install portaudio,
// apt install portaudio19-dev). Without the tag every entry point returns
// ErrUnavailable, so the rest of the module builds without a C toolchain.
package portaudio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUnavailable is returned when the binary was built without PortAudio.
var ErrUnavailable = errors.New("portaudio: not available in this build (rebuild with -tags portaudio)")

// DefaultBufferDuration is the length of one device buffer.
const DefaultBufferDuration = 20 * time.Millisecond

// DeviceInfo contains information about an audio device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// PrintDevices writes a listing of all available devices to w.
func PrintDevices(w io.Writer) error {
	devices, err := Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefaultInput {
			marker += " [DEFAULT INPUT]"
		}
		if d.IsDefaultOutput {
			marker += " [DEFAULT OUTPUT]"
		}
		fmt.Fprintf(w, "%d: %s%s\n", d.Index, d.Name, marker)
		fmt.Fprintf(w, "   Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "   Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
	}
	return nil
}
