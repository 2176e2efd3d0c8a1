package deepgram

import (
	"net/url"
	"testing"
)

func TestQuery_SkipsZeroValues(t *testing.T) {
	q := NewQuery().
		Set("model", "").
		SetInt("sample_rate", 0).
		SetFloat("eot_threshold", 0).
		SetBool("punctuate", false).
		SetList("keywords", []string{"", ""})
	if got := q.Encode(); got != "" {
		t.Errorf("Encode() = %q, want empty", got)
	}
}

func TestQuery_Encoding(t *testing.T) {
	q := NewQuery().
		Set("model", "nova-3").
		SetInt("sample_rate", 16000).
		SetFloat("eot_threshold", 0.7).
		SetBool("punctuate", true).
		SetList("keywords", []string{"deepgram:2", "haivivi"})

	v := q.Values()
	tests := []struct {
		key  string
		want []string
	}{
		{"model", []string{"nova-3"}},
		{"sample_rate", []string{"16000"}},
		{"eot_threshold", []string{"0.7"}},
		{"punctuate", []string{"true"}},
		{"keywords", []string{"deepgram:2", "haivivi"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v[tt.key]
			if len(got) != len(tt.want) {
				t.Fatalf("%s = %v, want %v", tt.key, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("%s[%d] = %q, want %q", tt.key, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestQuery_SetExtra(t *testing.T) {
	q := NewQuery().SetExtra(map[string]any{
		"team":  "voice",
		"trial": true,
		"ids":   []any{1, 2},
	})
	v := q.Values()
	if got := v.Get("extra.team"); got != "voice" {
		t.Errorf("extra.team = %q, want voice", got)
	}
	if got := v.Get("extra.trial"); got != "true" {
		t.Errorf("extra.trial = %q, want true", got)
	}
	if got := v["extra.ids"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("extra.ids = %v, want [1 2]", got)
	}
}

func TestBuildURL(t *testing.T) {
	if got := buildURL("wss://api.deepgram.com/v1", "/listen", nil); got != "wss://api.deepgram.com/v1/listen" {
		t.Errorf("buildURL without query = %q", got)
	}
	got := buildURL("wss://api.deepgram.com/v1", "/listen", NewQuery().Set("model", "nova-2"))
	if got != "wss://api.deepgram.com/v1/listen?model=nova-2" {
		t.Errorf("buildURL = %q", got)
	}
	if got := buildURL("https://x", "/read", NewQuery()); got != "https://x/read" {
		t.Errorf("buildURL with empty query = %q", got)
	}
}

func TestListenOptions_Defaults(t *testing.T) {
	opts := ListenOptions{}.withDefaults()
	if opts.Encoding != "linear16" || opts.SampleRate != 16000 || opts.Model != "nova-2" {
		t.Errorf("v1 defaults = %+v", opts)
	}
	if opts.APIVersion != ListenV1 {
		t.Errorf("APIVersion = %q, want v1", opts.APIVersion)
	}

	v2 := ListenOptions{APIVersion: ListenV2}.withDefaults()
	if v2.Model != DefaultListenV2Model {
		t.Errorf("v2 model = %q, want %q", v2.Model, DefaultListenV2Model)
	}

	custom := ListenOptions{Model: "nova-3", SampleRate: 8000}.withDefaults()
	if custom.Model != "nova-3" || custom.SampleRate != 8000 {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}

func TestListenOptions_Query(t *testing.T) {
	opts := ListenOptions{
		Model:          "nova-3",
		InterimResults: true,
		Keyterm:        []string{"giztoy"},
		EOTThreshold:   0.8,
		Extra:          map[string]any{"k": "v"},
	}.withDefaults()
	v, err := url.ParseQuery(opts.Query().Encode())
	if err != nil {
		t.Fatal(err)
	}
	if v.Get("model") != "nova-3" || v.Get("interim_results") != "true" || v.Get("keyterm") != "giztoy" {
		t.Errorf("query = %v", v)
	}
	if v.Get("encoding") != "linear16" || v.Get("sample_rate") != "16000" {
		t.Errorf("defaults missing from query: %v", v)
	}
	if v.Has("eot_threshold") {
		t.Error("v2-only parameter sent on v1")
	}
	if v.Get("extra.k") != "v" {
		t.Errorf("extra.k = %q", v.Get("extra.k"))
	}

	v2 := ListenOptions{APIVersion: ListenV2, EOTThreshold: 0.8}.withDefaults()
	if got := v2.Query().Values().Get("eot_threshold"); got != "0.8" {
		t.Errorf("v2 eot_threshold = %q, want 0.8", got)
	}
}

func TestPrerecordedOptions_DetectLanguages(t *testing.T) {
	opts := &PrerecordedOptions{DetectLanguage: true, DetectLanguages: []string{"en", "es"}}
	got := opts.Query().Values()["detect_language"]
	if len(got) != 2 || got[0] != "en" || got[1] != "es" {
		t.Errorf("detect_language = %v, want [en es]", got)
	}

	opts = &PrerecordedOptions{DetectLanguage: true}
	if got := opts.Query().Values().Get("detect_language"); got != "true" {
		t.Errorf("detect_language = %q, want true", got)
	}
}

func TestSpeakOptions_Query(t *testing.T) {
	opts := SpeakOptions{QueryParams: map[string]any{"tag": "demo"}}.withDefaults()

	hq := opts.HTTPQuery().Values()
	if hq.Get("model") != DefaultSpeakModel || hq.Get("encoding") != "linear16" || hq.Get("sample_rate") != "16000" {
		t.Errorf("HTTP query = %v", hq)
	}
	if hq.Get("container") != "none" {
		t.Errorf("container = %q, want none for linear16", hq.Get("container"))
	}
	if hq.Get("tag") != "demo" {
		t.Errorf("tag = %q, want demo", hq.Get("tag"))
	}

	stream := opts.StreamQuery().Values()
	if stream.Has("container") {
		t.Error("container sent on streaming query")
	}
	if stream.Get("model") != DefaultSpeakModel || stream.Get("tag") != "demo" {
		t.Errorf("stream query = %v", stream)
	}

	mp3 := SpeakOptions{Encoding: "mp3"}.withDefaults()
	if mp3.HTTPQuery().Values().Has("container") {
		t.Error("container defaulted for mp3")
	}
}

func TestSpeakOptions_AutoFlush(t *testing.T) {
	off := false
	if !(&SpeakOptions{}).autoFlush() {
		t.Error("autoFlush default = false, want true")
	}
	if (&SpeakOptions{AutoFlush: &off}).autoFlush() {
		t.Error("autoFlush = true, want false")
	}
}

func TestMergeOptions(t *testing.T) {
	base := &ListenOptions{Model: "nova-2", Punctuate: true, SampleRate: 16000}
	override := &ListenOptions{Model: "nova-3", InterimResults: true}

	got, err := mergeOptions(base, override)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "nova-3" {
		t.Errorf("Model = %q, want nova-3", got.Model)
	}
	if !got.Punctuate || !got.InterimResults || got.SampleRate != 16000 {
		t.Errorf("merged = %+v", got)
	}
	if base.Model != "nova-2" {
		t.Error("base mutated")
	}

	empty, err := mergeOptions[ListenOptions](nil, nil)
	if err != nil || empty == nil {
		t.Fatalf("mergeOptions(nil, nil) = %v, %v", empty, err)
	}
}

func TestMergeOptions_AgentSettingsTopLevel(t *testing.T) {
	base := DefaultAgentSettings()
	override := &AgentSettings{
		Agent: &AgentConfig{Greeting: "Hello!"},
	}
	got, err := mergeOptions(base, override)
	if err != nil {
		t.Fatal(err)
	}
	// Top-level fields are replaced, not deep-merged.
	if got.Agent.Greeting != "Hello!" || got.Agent.Think != nil {
		t.Errorf("agent = %+v", got.Agent)
	}
	if got.Audio == nil || got.Audio.Input.SampleRate != DefaultAgentInputSampleRate {
		t.Errorf("audio not kept from base: %+v", got.Audio)
	}
}
