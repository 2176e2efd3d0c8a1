package resampler

import (
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Converter converts int16 PCM between formats one chunk at a time. It keeps
// filter state between calls, so consecutive chunks of one stream must go
// through the same Converter. A Converter is not safe for concurrent use.
type Converter struct {
	src Format
	dst Format

	rs      resampling.Resampler
	partial []byte
}

// NewConverter creates a converter from src to dst.
func NewConverter(src, dst Format) (*Converter, error) {
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", src.SampleRate, dst.SampleRate)
	}
	c := &Converter{src: src, dst: dst}
	if src.SampleRate != dst.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   dst.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		c.rs = rs
	}
	return c, nil
}

// Passthrough reports whether the converter leaves audio untouched.
func (c *Converter) Passthrough() bool {
	return c.src == c.dst
}

// Process converts one chunk. Bytes that do not form a whole source frame
// are held back and prepended to the next chunk. The returned slice may be
// empty while the filter primes.
func (c *Converter) Process(chunk []byte) ([]byte, error) {
	if c.Passthrough() {
		return chunk, nil
	}

	data := chunk
	if len(c.partial) > 0 {
		data = append(c.partial, chunk...)
		c.partial = nil
	}
	frameBytes := c.src.sampleBytes()
	if rem := len(data) % frameBytes; rem != 0 {
		c.partial = append([]byte(nil), data[len(data)-rem:]...)
		data = data[:len(data)-rem]
	}
	if len(data) == 0 {
		return nil, nil
	}

	switch {
	case c.src.Stereo && !c.dst.Stereo:
		data = stereoToMono(data)
	case !c.src.Stereo && c.dst.Stereo:
		data = monoToStereo(data)
	}
	if c.rs == nil {
		return data, nil
	}

	n := len(data) / 2
	input := make([]float64, n)
	for i := range n {
		input[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	output, err := c.rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	// Keep whole destination frames only.
	output = output[:len(output)/c.dst.channels()*c.dst.channels()]
	out := make([]byte, len(output)*2)
	for i, s := range output {
		var v int16
		switch {
		case s >= 1.0:
			v = 32767
		case s <= -1.0:
			v = -32768
		default:
			v = int16(s * 32767.0)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}

// stereoToMono averages the L and R channels of interleaved frames.
func stereoToMono(b []byte) []byte {
	frames := len(b) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int16(binary.LittleEndian.Uint16(b[i*4:]))
		r := int16(binary.LittleEndian.Uint16(b[i*4+2:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((int32(l)+int32(r))/2)))
	}
	return out
}

// monoToStereo duplicates each sample into both channels.
func monoToStereo(b []byte) []byte {
	samples := len(b) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		out[i*4], out[i*4+1] = b[i*2], b[i*2+1]
		out[i*4+2], out[i*4+3] = b[i*2], b[i*2+1]
	}
	return out
}
