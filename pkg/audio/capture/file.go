package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/audio/resampler"
)

// File reads audio from a WAV or raw PCM file. WAV audio in another mono or
// stereo format is converted to the requested format. Raw files are assumed
// to already match it.
func File(path string) Input {
	return InputFunc(func(want pcm.Format) (io.ReadCloser, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		rc, err := openFile(file, want)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("capture: %s: %w", path, err)
		}
		return rc, nil
	})
}

func openFile(file *os.File, want pcm.Format) (io.ReadCloser, error) {
	src, size, err := pcm.ReadWAVHeader(file)
	if errors.Is(err, pcm.ErrNotWAV) {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return file, nil
	}
	if err != nil {
		return nil, err
	}

	var body io.Reader = file
	if size >= 0 {
		body = io.LimitReader(file, size)
	}
	if src == want {
		return &fileReader{Reader: body, file: file}, nil
	}
	if src.Channels > 2 || want.Channels > 2 {
		return nil, fmt.Errorf("cannot convert %v to %v", src, want)
	}
	conv, err := resampler.New(body,
		resampler.Format{SampleRate: src.SampleRate, Stereo: src.Channels == 2},
		resampler.Format{SampleRate: want.SampleRate, Stereo: want.Channels == 2},
	)
	if err != nil {
		return nil, err
	}
	return &fileReader{Reader: conv, file: file, conv: conv}, nil
}

type fileReader struct {
	io.Reader
	file *os.File
	conv *resampler.Reader
}

// Close closes the file first so a Read blocked on it returns.
func (r *fileReader) Close() error {
	err := r.file.Close()
	if r.conv != nil {
		r.conv.Close()
	}
	return err
}
