// Package pcm provides types and utilities for 16-bit PCM audio.
//
// Key pieces:
//   - Format: sample rate and channel count of a linear16 stream
//   - Float32 to int16 conversion and nearest-neighbor decimation, used
//     to turn native capture frames into what the service expects
//   - WAV: wrapping raw PCM in a RIFF header and reading it back
//
// Example usage:
//
//	format := pcm.L16Mono16K
//
//	// Bytes needed for 20ms of audio
//	n := format.BytesInDuration(20 * time.Millisecond)
//
//	// 48kHz float32 capture to 16kHz linear16
//	out, err := pcm.Float32LEToInt16LE(frame, pcm.DecimationFactor(48000, 16000))
package pcm
