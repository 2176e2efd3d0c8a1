package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Reader wraps an io.Reader and resamples the PCM read from it.
type Reader struct {
	src  io.Reader
	conv *Converter
	buf  []byte

	mu       sync.Mutex
	leftover []byte
	srcErr   error
	closeErr error
}

// New returns a Reader that converts audio read from src from srcFmt to
// dstFmt.
//
// Example:
//
//	r, err := resampler.New(wavBody, resampler.Mono(44100), resampler.Mono(16000))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	io.Copy(out, r)
func New(src io.Reader, srcFmt, dstFmt Format) (*Reader, error) {
	conv, err := NewConverter(srcFmt, dstFmt)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, conv: conv, buf: make([]byte, 4096)}, nil
}

// Read fills p with converted audio. It is not safe for concurrent use
// with other Reads.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.leftover) == 0 {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		if r.srcErr != nil {
			return 0, r.srcErr
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			out, cerr := r.conv.Process(r.buf[:n])
			if cerr != nil {
				return 0, cerr
			}
			r.leftover = append(r.leftover, out...)
		}
		if err != nil {
			r.srcErr = err
		}
	}

	n := copy(p, r.leftover)
	r.leftover = r.leftover[n:]
	return n, nil
}

// Close releases the reader. Subsequent Reads return io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError closes the reader so that subsequent Reads return err.
func (r *Reader) CloseWithError(err error) error {
	if err == nil {
		err = errors.New("resampler: closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.leftover = nil
	return nil
}
