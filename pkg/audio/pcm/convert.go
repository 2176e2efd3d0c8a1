package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecimationFactor returns the integer stride used to downsample audio
// captured at nativeRate to targetRate: floor(nativeRate / targetRate).
//
// A non-positive target, or a target at or above the native rate, yields 1
// (no decimation).
func DecimationFactor(nativeRate, targetRate int) int {
	if targetRate <= 0 || nativeRate <= targetRate {
		return 1
	}
	f := nativeRate / targetRate
	if f < 1 {
		return 1
	}
	return f
}

// Decimate keeps every factor-th sample, starting with the first one.
//
// This is nearest-neighbor downsampling without a low-pass filter. The
// output aliases, which is accepted in exchange for zero added latency.
func Decimate[T any](samples []T, factor int) []T {
	if factor <= 1 {
		out := make([]T, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]T, 0, (len(samples)+factor-1)/factor)
	for i := 0; i < len(samples); i += factor {
		out = append(out, samples[i])
	}
	return out
}

// Float32ToInt16 converts a normalized float sample to signed 16-bit PCM.
//
// The input is clamped to [-1, 1]; negative values scale by 0x8000 and
// positive values by 0x7fff, truncating toward zero. NaN maps to 0.
func Float32ToInt16(f float32) int16 {
	v := float64(f)
	if math.IsNaN(v) {
		return 0
	}
	v = max(-1, min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7fff)
}

// Float32LEToInt16LE decodes little-endian float32 samples, decimates them
// by factor and re-encodes the result as little-endian int16 PCM.
func Float32LEToInt16LE(data []byte, factor int) ([]byte, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("pcm: float32 payload length %d is not a multiple of 4", len(data))
	}
	if factor < 1 {
		factor = 1
	}
	n := len(data) / 4
	out := make([]byte, 0, ((n+factor-1)/factor)*2)
	for i := 0; i < n; i += factor {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		s := Float32ToInt16(math.Float32frombits(bits))
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out, nil
}

// Int16LE returns the little-endian byte encoding of samples.
func Int16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32LE returns the little-endian byte encoding of samples.
func Float32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// ParseInt16LE decodes little-endian int16 samples. A trailing odd byte is
// ignored.
func ParseInt16LE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
