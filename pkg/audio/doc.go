// Package audio groups the local audio plumbing around the deepgram client:
//
//   - pcm: linear16 formats, float32 conversion and WAV framing
//   - resampler: sample rate and channel conversion
//   - capture: microphone and file frame sources
//   - player: buffered playback to a device or WAV files
//   - portaudio: device input and output via PortAudio (build tag portaudio)
//
// Example usage:
//
//	import (
//	    "github.com/haivivi/deepgram-voice/pkg/audio/capture"
//	    "github.com/haivivi/deepgram-voice/pkg/audio/player"
//	)
//
//	mic := capture.New(capture.Config{Input: capture.File("hello.wav"), Realtime: true})
//	out := player.New(player.Config{Output: player.WAVFiles("out", "reply")})
package audio
