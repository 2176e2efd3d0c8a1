package deepgram

import (
	"context"
	"encoding/base64"
	"fmt"
)

// SampleEncoding tags the sample format of a captured Frame.
type SampleEncoding int

const (
	// EncodingFloat32 is little-endian 32-bit float samples in [-1, 1].
	EncodingFloat32 SampleEncoding = iota + 1
	// EncodingInt16 is little-endian signed 16-bit PCM.
	EncodingInt16
)

// String returns the encoding name.
func (e SampleEncoding) String() string {
	switch e {
	case EncodingFloat32:
		return "float32"
	case EncodingInt16:
		return "int16"
	}
	return fmt.Sprintf("SampleEncoding(%d)", int(e))
}

// Frame is one chunk of mono audio from a CaptureSource. Frames are values:
// once delivered, the producer must not modify Data.
type Frame struct {
	Data       []byte
	SampleRate int
	Encoding   SampleEncoding
}

// DecodeBase64Frame builds a float32 frame from a base64 payload, the
// shape native capture bridges commonly emit.
func DecodeBase64Frame(b64 string, sampleRate int) (Frame, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: base64 frame: %v", ErrEncoding, err)
	}
	return Frame{Data: data, SampleRate: sampleRate, Encoding: EncodingFloat32}, nil
}

// CaptureSource produces microphone frames.
//
// No frame may be delivered to a subscriber after StopCapture returns or
// after the subscriber's unsubscribe function returns.
type CaptureSource interface {
	StartCapture(ctx context.Context) error
	StopCapture() error
	Subscribe(fn func(Frame)) (unsubscribe func())
}

// PlaybackSink renders audio to a speaker.
//
// Feed buffers small chunks internally and flushes once a minimum size is
// reached. PlayOnce plays a complete clip and releases its resources when
// done.
type PlaybackSink interface {
	Configure(sampleRate, channels int) error
	Feed(data []byte) error
	PlayOnce(data []byte) error
	Stop() error
}

// PermissionGate grants or refuses microphone access. A false result is
// fatal for any start operation that captures audio.
type PermissionGate interface {
	RequestMicrophonePermission(ctx context.Context) bool
}

// PermissionFunc adapts a function to PermissionGate.
type PermissionFunc func(ctx context.Context) bool

// RequestMicrophonePermission calls f.
func (f PermissionFunc) RequestMicrophonePermission(ctx context.Context) bool {
	return f(ctx)
}

var (
	// AllowMicrophone always grants access.
	AllowMicrophone PermissionGate = PermissionFunc(func(context.Context) bool { return true })

	// DenyMicrophone always refuses access.
	DenyMicrophone PermissionGate = PermissionFunc(func(context.Context) bool { return false })
)

// requestPermission treats a nil gate as granted.
func requestPermission(ctx context.Context, gate PermissionGate) error {
	if gate == nil || gate.RequestMicrophonePermission(ctx) {
		return nil
	}
	return ErrPermissionDenied
}
