package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

// Transcript is an archived transcription.
type Transcript struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Source names where the audio came from: a file path, a URL or
	// "microphone".
	Source string `json:"source,omitempty"`
	Model  string `json:"model,omitempty"`

	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`

	// Audio is the archive path of the recording, when one was stored.
	Audio string `json:"audio,omitempty"`
}

// Segment is one finalized piece of a transcript.
type Segment struct {
	Text string `json:"text"`

	// Start and End are offsets in seconds when known.
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`

	Speaker *int `json:"speaker,omitempty"`

	// Turn is the v2 turn index for streamed transcripts.
	Turn int `json:"turn,omitempty"`
}

// NewTranscript returns an empty transcript with a fresh id.
func NewTranscript(source, model string) *Transcript {
	return &Transcript{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    source,
		Model:     model,
	}
}

// AddEvent appends a final streaming result. Interim results are ignored.
// It reports whether the event was kept.
func (t *Transcript) AddEvent(ev *deepgram.TranscriptEvent) bool {
	text := strings.TrimSpace(ev.Transcript)
	if !ev.IsFinal || text == "" {
		return false
	}
	t.Segments = append(t.Segments, Segment{Text: text, Turn: ev.TurnIndex})
	if t.Text == "" {
		t.Text = text
	} else {
		t.Text += " " + text
	}
	return true
}

// SetResponse fills the transcript from a one-shot result, with one segment
// per speaker run when word timings are present.
func (t *Transcript) SetResponse(resp *deepgram.PrerecordedResponse) {
	t.Text = resp.Transcript()
	t.Segments = nil
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return
	}
	var cur *Segment
	for _, w := range resp.Results.Channels[0].Alternatives[0].Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		if cur != nil && sameSpeaker(cur.Speaker, w.Speaker) {
			cur.Text += " " + word
			cur.End = w.End
			continue
		}
		t.Segments = append(t.Segments, Segment{Text: word, Start: w.Start, End: w.End, Speaker: w.Speaker})
		cur = &t.Segments[len(t.Segments)-1]
	}
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Archive reads and writes records on a Backend.
type Archive struct {
	backend Backend
}

// New returns an Archive over backend.
func New(backend Backend) *Archive {
	return &Archive{backend: backend}
}

func transcriptPath(id string) string {
	return "transcripts/" + id + ".json"
}

// AudioPath returns the path of the audio stored for id with extension ext
// (without the dot).
func AudioPath(id, ext string) string {
	return "audio/" + id + "." + strings.TrimPrefix(ext, ".")
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("archive: invalid id %q", id)
	}
	return nil
}

// SaveTranscript writes t as indented JSON. A missing id is generated.
func (a *Archive) SaveTranscript(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := validID(t.ID); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return a.put(ctx, transcriptPath(t.ID), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// LoadTranscript reads the transcript stored under id.
func (a *Archive) LoadTranscript(ctx context.Context, id string) (*Transcript, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	r, err := a.backend.Read(ctx, transcriptPath(id))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("archive: decode transcript %s: %w", id, err)
	}
	return &t, nil
}

// SaveAudio copies r into audio/<id>.<ext> and returns the path.
func (a *Archive) SaveAudio(ctx context.Context, id, ext string, r io.Reader) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	p := AudioPath(id, ext)
	err := a.put(ctx, p, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
	if err != nil {
		return "", err
	}
	return p, nil
}

// OpenAudio opens audio/<id>.<ext>.
func (a *Archive) OpenAudio(ctx context.Context, id, ext string) (io.ReadCloser, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	return a.backend.Read(ctx, AudioPath(id, ext))
}

// Exists reports whether a transcript is stored under id.
func (a *Archive) Exists(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	return a.backend.Exists(ctx, transcriptPath(id))
}

// List yields every stored transcript. Transcripts that fail to decode
// are yielded as errors and listing continues.
func (a *Archive) List(ctx context.Context) iter.Seq2[*Transcript, error] {
	return func(yield func(*Transcript, error) bool) {
		for p, err := range a.backend.List(ctx, "transcripts/") {
			if err != nil {
				yield(nil, err)
				return
			}
			id, ok := strings.CutSuffix(strings.TrimPrefix(p, "transcripts/"), ".json")
			if !ok || validID(id) != nil {
				continue
			}
			if !yield(a.LoadTranscript(ctx, id)) {
				return
			}
		}
	}
}

// Delete removes the transcript for id and the audio it references.
func (a *Archive) Delete(ctx context.Context, id string) error {
	t, err := a.LoadTranscript(ctx, id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if t != nil && t.Audio != "" {
		if err := a.backend.Delete(ctx, t.Audio); err != nil {
			return err
		}
	}
	return a.backend.Delete(ctx, transcriptPath(id))
}

// aborter is implemented by backend writers that can discard a partial
// object instead of committing it.
type aborter interface {
	Abort(err error)
}

func (a *Archive) put(ctx context.Context, p string, fill func(io.Writer) error) error {
	w, err := a.backend.Write(ctx, p)
	if err != nil {
		return fmt.Errorf("archive: write %s: %w", p, err)
	}
	if err := fill(w); err != nil {
		if ab, ok := w.(aborter); ok {
			ab.Abort(err)
		} else {
			w.Close()
		}
		return fmt.Errorf("archive: write %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: write %s: %w", p, err)
	}
	return nil
}
