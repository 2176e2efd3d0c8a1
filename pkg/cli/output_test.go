package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testTranscript struct {
	Transcript string  `json:"transcript" yaml:"transcript"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Words      []struct {
		Word string `json:"word" yaml:"word"`
	} `json:"words,omitempty" yaml:"words,omitempty"`
}

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := Output(testTranscript{Transcript: "hello", Confidence: 0.9}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result["transcript"] != "hello" {
		t.Errorf("transcript = %v, want %q", result["transcript"], "hello")
	}
	if !strings.Contains(buf.String(), "\n  \"") {
		t.Errorf("default indent should be two spaces, got: %s", buf.String())
	}
}

func TestOutput_JSONIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Indent: "    ",
	}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "    \"key\"") {
		t.Errorf("Output should be indented, got: %s", buf.String())
	}
}

func TestOutput_YAMLRawMessage(t *testing.T) {
	var buf bytes.Buffer
	raw := json.RawMessage(`{"results":{"channels":[]},"metadata":{"duration":1.5}}`)
	if err := Output(raw, OutputOptions{Format: FormatYAML, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "duration: 1.5") {
		t.Errorf("raw JSON should be rendered as YAML, got: %s", buf.String())
	}
}

func TestOutput_YAMLDefault(t *testing.T) {
	for _, format := range []OutputFormat{FormatYAML, ""} {
		var buf bytes.Buffer
		if err := Output(testTranscript{Transcript: "hello"}, OutputOptions{Format: format, Writer: &buf}); err != nil {
			t.Fatalf("Output(%q) error: %v", format, err)
		}
		if !strings.Contains(buf.String(), "transcript: hello") {
			t.Errorf("Output(%q) = %s", format, buf.String())
		}
	}
}

func TestOutput_Raw(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"bytes", []byte("raw bytes"), "raw bytes"},
		{"string", "raw string", "raw string"},
		{"other falls back to yaml", map[string]int{"count": 42}, "count: 42\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(tt.result, OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
				t.Fatalf("Output error: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("data", OutputOptions{Format: "table", Writer: &buf}); err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "output.json")
	if err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: FormatJSON,
		File:   filePath,
	}); err != nil {
		t.Fatalf("Output error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestOutput_Query(t *testing.T) {
	tr := testTranscript{Transcript: "hi there", Confidence: 0.5}
	tr.Words = append(tr.Words, struct {
		Word string `json:"word" yaml:"word"`
	}{"hi"}, struct {
		Word string `json:"word" yaml:"word"`
	}{"there"})

	var buf bytes.Buffer
	if err := Output(tr, OutputOptions{Format: FormatRaw, Writer: &buf, Query: ".words[].word"}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if buf.String() != "hi\nthere\n" {
		t.Errorf("raw query output = %q", buf.String())
	}

	buf.Reset()
	if err := Output(tr, OutputOptions{Format: FormatJSON, Writer: &buf, Query: "{t: .transcript}"}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["t"] != "hi there" {
		t.Errorf("json query output = %s (%v)", buf.String(), err)
	}

	buf.Reset()
	if err := Output(tr, OutputOptions{Format: FormatYAML, Writer: &buf, Query: ".words[]"}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "word: hi\n---\nword: there") {
		t.Errorf("yaml query output = %q", buf.String())
	}
}

func TestOutput_QueryInvalid(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("x", OutputOptions{Writer: &buf, Query: ".["}); err == nil {
		t.Error("Output should fail for an invalid query")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got %q", buf.String())
	}
}

func TestOutputBytes(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "speech.wav")
	data := []byte("RIFF\x00\x00\x00\x00WAVE")

	if err := OutputBytes(data, filePath); err != nil {
		t.Fatalf("OutputBytes error: %v", err)
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Errorf("File content = %v, want %v", content, data)
	}

	if err := OutputBytes(data, ""); err == nil {
		t.Error("OutputBytes should fail for empty path")
	}
}
