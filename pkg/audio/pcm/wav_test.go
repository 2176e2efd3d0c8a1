package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	f := Format{SampleRate: 24000, Channels: 2}
	if f.FrameBytes() != 4 || f.BytesRate() != 96000 {
		t.Errorf("FrameBytes = %d, BytesRate = %d", f.FrameBytes(), f.BytesRate())
	}
	if got := f.BytesInDuration(10 * time.Millisecond); got != 960 {
		t.Errorf("BytesInDuration(10ms) = %d, want 960", got)
	}
	if got := f.Duration(96000); got != time.Second {
		t.Errorf("Duration = %v", got)
	}
	if L16Mono16K.String() != "audio/L16; rate=16000; channels=1" {
		t.Errorf("String = %q", L16Mono16K.String())
	}
	if (Format{}).Valid() || !Mono(8000).Valid() {
		t.Error("Valid mismatch")
	}
}

func TestWrapParseWAV(t *testing.T) {
	payload := Int16LE([]int16{1, -1, 300, -300})
	wav := WrapWAV(payload, L16Mono24K)

	if len(wav) != WAVHeaderSize+len(payload) || !IsWAV(wav) {
		t.Fatalf("len = %d, IsWAV = %v", len(wav), IsWAV(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(payload)) {
		t.Errorf("RIFF size = %d", got)
	}

	f, data, err := ParseWAV(wav)
	if err != nil {
		t.Fatal(err)
	}
	if f != L16Mono24K {
		t.Errorf("format = %v", f)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("data = %v, want %v", data, payload)
	}
}

func TestParseWAV_SkipsExtraChunks(t *testing.T) {
	payload := []byte{1, 0, 2, 0}
	base := WrapWAV(payload, L16Mono16K)

	// Insert an odd-sized LIST chunk between fmt and data.
	var buf bytes.Buffer
	buf.Write(base[:36])
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(base[36:])

	f, data, err := ParseWAV(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if f != L16Mono16K || !bytes.Equal(data, payload) {
		t.Errorf("format = %v, data = %v", f, data)
	}
}

func TestParseWAV_TruncatedAndStreaming(t *testing.T) {
	wav := WrapWAV([]byte{1, 0, 2, 0, 3, 0}, L16Mono16K)
	if _, data, err := ParseWAV(wav[:len(wav)-2]); err != nil || len(data) != 4 {
		t.Errorf("truncated: data = %v, err = %v", data, err)
	}

	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)
	_, size, err := ReadWAVHeader(bytes.NewReader(wav))
	if err != nil || size != -1 {
		t.Errorf("streaming size = %d, err = %v", size, err)
	}
}

func TestParseWAV_Rejects(t *testing.T) {
	if _, _, err := ParseWAV([]byte("ID3\x03 not a wav file")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("mp3: err = %v", err)
	}

	float := WrapWAV([]byte{0, 0, 0, 0}, L16Mono16K)
	binary.LittleEndian.PutUint16(float[20:22], 3)
	binary.LittleEndian.PutUint16(float[34:36], 32)
	if _, _, err := ParseWAV(float); err == nil {
		t.Error("float WAV accepted")
	}

	if _, _, err := ParseWAV(WrapWAV(nil, L16Mono16K)[:36]); err == nil {
		t.Error("missing data chunk accepted")
	}
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWAVWriter(file, L16Mono48K)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte{1, 0, 2, 0})
	w.Write([]byte{3, 0})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := w.Write([]byte{0}); err == nil {
		t.Error("Write after Close succeeded")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f, data, err := ParseWAV(raw)
	if err != nil {
		t.Fatal(err)
	}
	if f != L16Mono48K || !bytes.Equal(data, []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("format = %v, data = %v", f, data)
	}
}
