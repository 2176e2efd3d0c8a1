//go:build portaudio

package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error

	errStreamClosed = errors.New("portaudio: stream closed")
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New("portaudio: " + C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library. It is safe to call
// multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate terminates the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// Devices returns a list of available audio devices.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}
	defaultInput := int(C.Pa_GetDefaultInputDevice())
	defaultOutput := int(C.Pa_GetDefaultOutputDevice())

	devices := make([]DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxInputChannels:  int(info.maxInputChannels),
			MaxOutputChannels: int(info.maxOutputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefaultInput:    i == defaultInput,
			IsDefaultOutput:   i == defaultOutput,
		})
	}
	return devices, nil
}

// stream is one blocking-mode PortAudio stream with a C-side buffer of
// exactly one device buffer.
type stream struct {
	mu         sync.Mutex
	pa         unsafe.Pointer
	buffer     unsafe.Pointer
	bufferSize int
	frames     int
	closed     bool
}

func openStream(inputChannels, outputChannels, sampleRate, framesPerBuffer int) (*stream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	var inputParams, outputParams *C.PaStreamParameters
	if inputChannels > 0 {
		dev := C.Pa_GetDefaultInputDevice()
		if dev == C.paNoDevice {
			return nil, errors.New("portaudio: no default input device")
		}
		info := C.Pa_GetDeviceInfo(dev)
		inputParams = &C.PaStreamParameters{
			device:           dev,
			channelCount:     C.int(inputChannels),
			sampleFormat:     C.paInt16,
			suggestedLatency: info.defaultLowInputLatency,
		}
	}
	if outputChannels > 0 {
		dev := C.Pa_GetDefaultOutputDevice()
		if dev == C.paNoDevice {
			return nil, errors.New("portaudio: no default output device")
		}
		info := C.Pa_GetDeviceInfo(dev)
		outputParams = &C.PaStreamParameters{
			device:           dev,
			channelCount:     C.int(outputChannels),
			sampleFormat:     C.paInt16,
			suggestedLatency: info.defaultLowOutputLatency,
		}
	}

	var pa unsafe.Pointer
	err := paError(C.pa_open_stream(
		&pa,
		inputParams,
		outputParams,
		C.double(sampleRate),
		C.ulong(framesPerBuffer),
		C.paClipOff,
	))
	if err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(pa)); err != nil {
		C.pa_close_stream(pa)
		return nil, err
	}

	channels := max(inputChannels, outputChannels)
	size := framesPerBuffer * channels * 2
	return &stream{
		pa:         pa,
		buffer:     C.malloc(C.size_t(size)),
		bufferSize: size,
		frames:     framesPerBuffer,
	}, nil
}

// read fills dst, which must be exactly one device buffer.
func (s *stream) read(dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if err := paError(C.pa_read_stream(s.pa, s.buffer, C.ulong(s.frames))); err != nil {
		return err
	}
	C.memcpy(unsafe.Pointer(&dst[0]), s.buffer, C.size_t(s.bufferSize))
	return nil
}

// write plays src, which must be exactly one device buffer.
func (s *stream) write(src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	C.memcpy(s.buffer, unsafe.Pointer(&src[0]), C.size_t(s.bufferSize))
	return paError(C.pa_write_stream(s.pa, s.buffer, C.ulong(s.frames)))
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_stop_stream(s.pa)
	err := paError(C.pa_close_stream(s.pa))
	C.free(s.buffer)
	return err
}
