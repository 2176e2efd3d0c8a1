package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAVHeaderSize is the size of the canonical 44-byte RIFF header written by
// WrapWAV and WAVWriter.
const WAVHeaderSize = 44

const (
	wavFormatPCM = 1
	minFmtChunk  = 16

	// streamingSize is the placeholder length written by encoders that
	// cannot seek back to patch the header.
	streamingSize = 0xFFFFFFFF
)

// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("pcm: not a WAV stream")

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// WrapWAV prepends a canonical WAV header to raw PCM data.
func WrapWAV(data []byte, f Format) []byte {
	out := make([]byte, WAVHeaderSize+len(data))
	putWAVHeader(out[:WAVHeaderSize], f, uint32(len(data)))
	copy(out[WAVHeaderSize:], data)
	return out
}

func putWAVHeader(h []byte, f Format, dataSize uint32) {
	copy(h[0:4], "RIFF")
	riffSize := dataSize
	if dataSize != streamingSize {
		riffSize = dataSize + WAVHeaderSize - 8
	}
	binary.LittleEndian.PutUint32(h[4:8], riffSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], minFmtChunk)
	binary.LittleEndian.PutUint16(h[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.BytesRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.FrameBytes()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.Depth()))

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
}

// ReadWAVHeader consumes a WAV header from r, stopping at the first byte of
// the data chunk. Only 16-bit integer PCM is accepted. The returned size is
// -1 when the header carries the streaming placeholder length.
func ReadWAVHeader(r io.Reader) (Format, int64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, 0, fmt.Errorf("pcm: read RIFF header: %w", err)
	}
	if !IsWAV(riff[:]) {
		return Format{}, 0, ErrNotWAV
	}

	var (
		f      Format
		haveFm bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return Format{}, 0, errors.New("pcm: data chunk not found")
			}
			return Format{}, 0, fmt.Errorf("pcm: read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := binary.LittleEndian.Uint32(ch[4:8])

		switch id {
		case "fmt ":
			if size < minFmtChunk {
				return Format{}, 0, errors.New("pcm: fmt chunk too small")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, 0, fmt.Errorf("pcm: read fmt chunk: %w", err)
			}
			code := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if code != wavFormatPCM || bits != 16 {
				return Format{}, 0, fmt.Errorf("pcm: unsupported WAV encoding (format %d, %d bits)", code, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			if !f.Valid() {
				return Format{}, 0, fmt.Errorf("pcm: invalid WAV format %d Hz, %d channels", f.SampleRate, f.Channels)
			}
			haveFm = true
		case "data":
			if !haveFm {
				return Format{}, 0, errors.New("pcm: data chunk before fmt chunk")
			}
			if size == streamingSize {
				return f, -1, nil
			}
			return f, int64(size), nil
		default:
			// Chunks are word aligned.
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Format{}, 0, fmt.Errorf("pcm: skip chunk %q: %w", id, err)
			}
		}
	}
}

// ParseWAV splits a complete WAV file into its format and PCM payload. A
// data chunk that claims more bytes than are present is truncated to what
// is available.
func ParseWAV(data []byte) (Format, []byte, error) {
	r := bytes.NewReader(data)
	f, size, err := ReadWAVHeader(r)
	if err != nil {
		return Format{}, nil, err
	}
	start := len(data) - r.Len()
	end := len(data)
	if size >= 0 && int64(start)+size < int64(end) {
		end = start + int(size)
	}
	return f, data[start:end], nil
}

// WAVWriter streams PCM into a WAV file. The header is written up front
// with a zero length and patched on Close.
type WAVWriter struct {
	w      io.WriteSeeker
	format Format
	n      int64
	closed bool
}

// NewWAVWriter writes a placeholder header to w and returns a writer for
// the PCM payload.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("pcm: invalid format %v", f)
	}
	var h [WAVHeaderSize]byte
	putWAVHeader(h[:], f, 0)
	if _, err := w.Write(h[:]); err != nil {
		return nil, err
	}
	return &WAVWriter{w: w, format: f}, nil
}

// Format returns the format the writer was created with.
func (ww *WAVWriter) Format() Format {
	return ww.format
}

// Write appends PCM bytes.
func (ww *WAVWriter) Write(p []byte) (int, error) {
	if ww.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := ww.w.Write(p)
	ww.n += int64(n)
	return n, err
}

// Close patches the header lengths and closes the underlying writer if it
// implements io.Closer.
func (ww *WAVWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true

	var h [WAVHeaderSize]byte
	putWAVHeader(h[:], ww.format, uint32(ww.n))
	_, err := ww.w.Seek(0, io.SeekStart)
	if err == nil {
		_, err = ww.w.Write(h[:])
	}
	if c, ok := ww.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
