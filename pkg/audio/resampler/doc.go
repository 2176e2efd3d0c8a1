// Package resampler converts 16-bit PCM between sample rates and channel
// layouts using a pure Go resampler.
//
// Converter works on chunks and is used on the playback path, where audio
// arrives from the network in arbitrary sizes. Reader wraps an io.Reader
// for file input.
//
//	conv, err := resampler.NewConverter(resampler.Mono(24000), resampler.Mono(48000))
//	if err != nil {
//	    return err
//	}
//	out, err := conv.Process(chunk)
package resampler
