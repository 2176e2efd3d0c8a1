// Package player renders linear16 audio to a speaker or a file.
//
// A Player satisfies the playback side of the deepgram package: Configure
// fixes the stream format, Feed buffers small network chunks and writes
// them once MinChunk bytes have accumulated, PlayOnce plays a complete
// clip, and Stop discards everything not yet written.
//
// Outputs are pluggable. Discard drops audio, WAVFiles records it, and the
// portaudio package provides a device output.
package player
