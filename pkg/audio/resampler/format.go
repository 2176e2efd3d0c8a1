package resampler

// Format describes a 16-bit signed little-endian PCM stream.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 24000, 48000).
	SampleRate int

	// Stereo indicates 2 interleaved channels; mono otherwise.
	Stereo bool
}

// Mono returns a mono format at the given rate.
func Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate}
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// sampleBytes is the size of one frame (all channels) in bytes.
func (f Format) sampleBytes() int {
	return 2 * f.channels()
}
