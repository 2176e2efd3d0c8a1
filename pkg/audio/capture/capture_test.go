package capture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var _ deepgram.CaptureSource = (*Source)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type frameLog struct {
	mu     sync.Mutex
	frames []deepgram.Frame
}

func (l *frameLog) add(f deepgram.Frame) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
}

func (l *frameLog) snapshot() []deepgram.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]deepgram.Frame(nil), l.frames...)
}

func (l *frameLog) bytes() int {
	n := 0
	for _, f := range l.snapshot() {
		n += len(f.Data)
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// pipeInput hands out the read side of a pipe the test writes into.
func pipeInput(opens *atomic.Int32) (Input, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return InputFunc(func(pcm.Format) (io.ReadCloser, error) {
		opens.Add(1)
		return pr, nil
	}), pw
}

func TestSource_DeliversFixedFrames(t *testing.T) {
	var opens atomic.Int32
	in, pw := pipeInput(&opens)
	src := New(Config{Input: in, Logger: testLogger()})
	log := &frameLog{}
	src.Subscribe(log.add)

	if err := src.StartCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := src.StartCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer src.StopCapture()

	go pw.Write(make([]byte, 2*640))
	waitFor(t, "two frames", func() bool { return len(log.snapshot()) == 2 })

	f := log.snapshot()[0]
	if len(f.Data) != 640 || f.SampleRate != 16000 || f.Encoding != deepgram.EncodingInt16 {
		t.Errorf("frame = %d bytes, %d Hz, %v", len(f.Data), f.SampleRate, f.Encoding)
	}
	if opens.Load() != 1 {
		t.Errorf("input opened %d times", opens.Load())
	}
}

func TestSource_StopCaptureUnblocksRead(t *testing.T) {
	var opens atomic.Int32
	in, _ := pipeInput(&opens)
	var ended atomic.Bool
	src := New(Config{Input: in, Logger: testLogger(), OnEnd: func(error) { ended.Store(true) }})
	if err := src.StartCapture(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		src.StopCapture()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopCapture blocked on a pending read")
	}
	if ended.Load() {
		t.Error("OnEnd called after StopCapture")
	}
	if err := src.StopCapture(); err != nil {
		t.Errorf("second StopCapture = %v", err)
	}
}

func TestSource_Unsubscribe(t *testing.T) {
	var opens atomic.Int32
	in, pw := pipeInput(&opens)
	src := New(Config{Input: in, SampleRate: 8000, Logger: testLogger()})
	kept, dropped := &frameLog{}, &frameLog{}
	src.Subscribe(kept.add)
	unsubscribe := src.Subscribe(dropped.add)
	unsubscribe()
	unsubscribe()

	src.StartCapture(context.Background())
	defer src.StopCapture()
	go pw.Write(make([]byte, 320))
	waitFor(t, "frame", func() bool { return len(kept.snapshot()) == 1 })
	if len(dropped.snapshot()) != 0 {
		t.Error("unsubscribed callback received a frame")
	}
}

func TestSource_RawFileEndsAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.raw")
	if err := os.WriteFile(path, make([]byte, 1001), 0o644); err != nil {
		t.Fatal(err)
	}
	ended := make(chan error, 1)
	log := &frameLog{}
	src := New(Config{Input: File(path), Logger: testLogger(), OnEnd: func(err error) { ended <- err }})
	src.Subscribe(log.add)
	if err := src.StartCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := <-ended; err != nil {
		t.Errorf("OnEnd(%v)", err)
	}
	src.StopCapture()

	frames := log.snapshot()
	if len(frames) != 2 || len(frames[0].Data) != 640 || len(frames[1].Data) != 360 {
		t.Errorf("frames = %d", len(frames))
	}
}

func TestSource_WAVFileResampled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	samples := make([]int16, 48000)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	if err := os.WriteFile(path, pcm.WrapWAV(pcm.Int16LE(samples), pcm.L16Mono48K), 0o644); err != nil {
		t.Fatal(err)
	}

	ended := make(chan error, 1)
	log := &frameLog{}
	src := New(Config{Input: File(path), Logger: testLogger(), OnEnd: func(err error) { ended <- err }})
	src.Subscribe(log.add)
	src.StartCapture(context.Background())
	if err := <-ended; err != nil {
		t.Fatalf("OnEnd(%v)", err)
	}
	src.StopCapture()

	// One second at 16kHz is 32000 bytes, less whatever the filter holds.
	if n := log.bytes(); n < 24000 || n > 33000 {
		t.Errorf("resampled %d bytes", n)
	}
	for _, f := range log.snapshot() {
		if f.SampleRate != 16000 {
			t.Fatalf("frame rate = %d", f.SampleRate)
		}
	}
}

func TestSource_RealtimePacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.raw")
	// Three 10ms frames at 16kHz.
	os.WriteFile(path, make([]byte, 3*320), 0o644)

	ended := make(chan error, 1)
	src := New(Config{
		Input:         File(path),
		FrameDuration: 10 * time.Millisecond,
		Realtime:      true,
		Logger:        testLogger(),
		OnEnd:         func(err error) { ended <- err },
	})
	start := time.Now()
	src.StartCapture(context.Background())
	<-ended
	src.StopCapture()
	// The first frame waits as well, so all three frames are paced.
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("30ms of audio delivered in %v", elapsed)
	}
}

func TestSource_NoInput(t *testing.T) {
	if err := New(Config{}).StartCapture(context.Background()); err == nil {
		t.Error("StartCapture without input succeeded")
	}
}
