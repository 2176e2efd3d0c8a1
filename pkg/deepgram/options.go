package deepgram

import (
	"encoding/json"
	"fmt"
)

// APIVersion selects the streaming listen protocol.
type APIVersion string

const (
	// ListenV1 is the classic streaming transcription protocol.
	ListenV1 APIVersion = "v1"
	// ListenV2 is the turn-based (Flux) protocol.
	ListenV2 APIVersion = "v2"
)

// Listen defaults.
const (
	DefaultListenEncoding   = "linear16"
	DefaultListenSampleRate = 16000
	DefaultListenModel      = "nova-2"
	DefaultListenV2Model    = "flux-general-en"
)

// Speak defaults.
const (
	DefaultSpeakModel      = "aura-2-thalia-en"
	DefaultSpeakEncoding   = "linear16"
	DefaultSpeakSampleRate = 16000
	DefaultSpeakContainer  = "none"
)

// ListenOptions configures a live transcription session.
type ListenOptions struct {
	APIVersion      APIVersion `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	Callback        string     `json:"callback,omitempty" yaml:"callback,omitempty"`
	CallbackMethod  string     `json:"callback_method,omitempty" yaml:"callback_method,omitempty"`
	Channels        int        `json:"channels,omitempty" yaml:"channels,omitempty"`
	Diarize         bool       `json:"diarize,omitempty" yaml:"diarize,omitempty"`
	Dictation       bool       `json:"dictation,omitempty" yaml:"dictation,omitempty"`
	Encoding        string     `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Endpointing     int        `json:"endpointing,omitempty" yaml:"endpointing,omitempty"`
	FillerWords     bool       `json:"filler_words,omitempty" yaml:"filler_words,omitempty"`
	InterimResults  bool       `json:"interim_results,omitempty" yaml:"interim_results,omitempty"`
	Keyterm         []string   `json:"keyterm,omitempty" yaml:"keyterm,omitempty"`
	Keywords        []string   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Language        string     `json:"language,omitempty" yaml:"language,omitempty"`
	MipOptOut       bool       `json:"mip_opt_out,omitempty" yaml:"mip_opt_out,omitempty"`
	Model           string     `json:"model,omitempty" yaml:"model,omitempty"`
	Multichannel    bool       `json:"multichannel,omitempty" yaml:"multichannel,omitempty"`
	Numerals        bool       `json:"numerals,omitempty" yaml:"numerals,omitempty"`
	ProfanityFilter bool       `json:"profanity_filter,omitempty" yaml:"profanity_filter,omitempty"`
	Punctuate       bool       `json:"punctuate,omitempty" yaml:"punctuate,omitempty"`
	Redact          []string   `json:"redact,omitempty" yaml:"redact,omitempty"`
	Replace         []string   `json:"replace,omitempty" yaml:"replace,omitempty"`
	SampleRate      int        `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Search          []string   `json:"search,omitempty" yaml:"search,omitempty"`
	SmartFormat     bool       `json:"smart_format,omitempty" yaml:"smart_format,omitempty"`
	Tag             []string   `json:"tag,omitempty" yaml:"tag,omitempty"`
	UtteranceEndMs  int        `json:"utterance_end_ms,omitempty" yaml:"utterance_end_ms,omitempty"`
	VADEvents       bool       `json:"vad_events,omitempty" yaml:"vad_events,omitempty"`
	Version         string     `json:"version,omitempty" yaml:"version,omitempty"`

	// v2 only.
	EagerEOTThreshold float64 `json:"eager_eot_threshold,omitempty" yaml:"eager_eot_threshold,omitempty"`
	EOTThreshold      float64 `json:"eot_threshold,omitempty" yaml:"eot_threshold,omitempty"`
	EOTTimeoutMs      int     `json:"eot_timeout_ms,omitempty" yaml:"eot_timeout_ms,omitempty"`

	// Extra is sent as extra.<key> parameters.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// version returns the effective API version.
func (o *ListenOptions) version() APIVersion {
	if o.APIVersion == ListenV2 {
		return ListenV2
	}
	return ListenV1
}

// withDefaults fills encoding, sample rate and model.
func (o ListenOptions) withDefaults() *ListenOptions {
	if o.Encoding == "" {
		o.Encoding = DefaultListenEncoding
	}
	if o.SampleRate == 0 {
		o.SampleRate = DefaultListenSampleRate
	}
	if o.Model == "" {
		if o.version() == ListenV2 {
			o.Model = DefaultListenV2Model
		} else {
			o.Model = DefaultListenModel
		}
	}
	o.APIVersion = o.version()
	return &o
}

// Query encodes the options as handshake parameters.
func (o *ListenOptions) Query() *Query {
	q := NewQuery().
		Set("callback", o.Callback).
		Set("callback_method", o.CallbackMethod).
		SetInt("channels", o.Channels).
		SetBool("diarize", o.Diarize).
		SetBool("dictation", o.Dictation).
		Set("encoding", o.Encoding).
		SetInt("endpointing", o.Endpointing).
		SetBool("filler_words", o.FillerWords).
		SetBool("interim_results", o.InterimResults).
		SetList("keyterm", o.Keyterm).
		SetList("keywords", o.Keywords).
		Set("language", o.Language).
		SetBool("mip_opt_out", o.MipOptOut).
		Set("model", o.Model).
		SetBool("multichannel", o.Multichannel).
		SetBool("numerals", o.Numerals).
		SetBool("profanity_filter", o.ProfanityFilter).
		SetBool("punctuate", o.Punctuate).
		SetList("replace", o.Replace).
		SetInt("sample_rate", o.SampleRate).
		SetList("search", o.Search).
		SetBool("smart_format", o.SmartFormat).
		SetList("tag", o.Tag).
		SetInt("utterance_end_ms", o.UtteranceEndMs).
		SetBool("vad_events", o.VADEvents).
		Set("version", o.Version)
	if o.version() == ListenV2 {
		q.SetFloat("eager_eot_threshold", o.EagerEOTThreshold).
			SetFloat("eot_threshold", o.EOTThreshold).
			SetInt("eot_timeout_ms", o.EOTTimeoutMs)
	}
	q.SetList("redact", o.Redact)
	q.SetExtra(o.Extra)
	return q
}

// PrerecordedOptions configures one-shot file transcription.
type PrerecordedOptions struct {
	Callback         string   `json:"callback,omitempty" yaml:"callback,omitempty"`
	CallbackMethod   string   `json:"callback_method,omitempty" yaml:"callback_method,omitempty"`
	Sentiment        bool     `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	Summarize        bool     `json:"summarize,omitempty" yaml:"summarize,omitempty"`
	Tag              []string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Topics           bool     `json:"topics,omitempty" yaml:"topics,omitempty"`
	CustomTopic      []string `json:"custom_topic,omitempty" yaml:"custom_topic,omitempty"`
	CustomTopicMode  string   `json:"custom_topic_mode,omitempty" yaml:"custom_topic_mode,omitempty"`
	Intents          bool     `json:"intents,omitempty" yaml:"intents,omitempty"`
	CustomIntent     []string `json:"custom_intent,omitempty" yaml:"custom_intent,omitempty"`
	CustomIntentMode string   `json:"custom_intent_mode,omitempty" yaml:"custom_intent_mode,omitempty"`
	DetectEntities   bool     `json:"detect_entities,omitempty" yaml:"detect_entities,omitempty"`
	DetectLanguage   bool     `json:"detect_language,omitempty" yaml:"detect_language,omitempty"`
	// DetectLanguages restricts language detection to the listed codes.
	DetectLanguages []string `json:"detect_languages,omitempty" yaml:"detect_languages,omitempty"`
	Diarize         bool     `json:"diarize,omitempty" yaml:"diarize,omitempty"`
	Dictation       bool     `json:"dictation,omitempty" yaml:"dictation,omitempty"`
	Encoding        string   `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	FillerWords     bool     `json:"filler_words,omitempty" yaml:"filler_words,omitempty"`
	Keyterm         []string `json:"keyterm,omitempty" yaml:"keyterm,omitempty"`
	Keywords        []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Language        string   `json:"language,omitempty" yaml:"language,omitempty"`
	Measurements    bool     `json:"measurements,omitempty" yaml:"measurements,omitempty"`
	Model           string   `json:"model,omitempty" yaml:"model,omitempty"`
	Multichannel    bool     `json:"multichannel,omitempty" yaml:"multichannel,omitempty"`
	Numerals        bool     `json:"numerals,omitempty" yaml:"numerals,omitempty"`
	Paragraphs      bool     `json:"paragraphs,omitempty" yaml:"paragraphs,omitempty"`
	ProfanityFilter bool     `json:"profanity_filter,omitempty" yaml:"profanity_filter,omitempty"`
	Punctuate       bool     `json:"punctuate,omitempty" yaml:"punctuate,omitempty"`
	Redact          []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	Replace         []string `json:"replace,omitempty" yaml:"replace,omitempty"`
	Search          []string `json:"search,omitempty" yaml:"search,omitempty"`
	SmartFormat     bool     `json:"smart_format,omitempty" yaml:"smart_format,omitempty"`
	Utterances      bool     `json:"utterances,omitempty" yaml:"utterances,omitempty"`
	UttSplit        float64  `json:"utt_split,omitempty" yaml:"utt_split,omitempty"`
	Version         string   `json:"version,omitempty" yaml:"version,omitempty"`

	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Query encodes the options as request parameters.
func (o *PrerecordedOptions) Query() *Query {
	q := NewQuery().
		Set("callback", o.Callback).
		Set("callback_method", o.CallbackMethod).
		SetBool("sentiment", o.Sentiment).
		SetBool("summarize", o.Summarize).
		SetList("tag", o.Tag).
		SetBool("topics", o.Topics).
		Set("custom_topic_mode", o.CustomTopicMode).
		SetBool("intents", o.Intents).
		Set("custom_intent_mode", o.CustomIntentMode).
		SetBool("detect_entities", o.DetectEntities).
		SetBool("diarize", o.Diarize).
		SetBool("dictation", o.Dictation).
		Set("encoding", o.Encoding).
		SetBool("filler_words", o.FillerWords).
		SetList("keyterm", o.Keyterm).
		SetList("keywords", o.Keywords).
		Set("language", o.Language).
		SetBool("measurements", o.Measurements).
		Set("model", o.Model).
		SetBool("multichannel", o.Multichannel).
		SetBool("numerals", o.Numerals).
		SetBool("paragraphs", o.Paragraphs).
		SetBool("profanity_filter", o.ProfanityFilter).
		SetBool("punctuate", o.Punctuate).
		SetList("replace", o.Replace).
		SetList("search", o.Search).
		SetBool("smart_format", o.SmartFormat).
		SetBool("utterances", o.Utterances).
		SetFloat("utt_split", o.UttSplit).
		Set("version", o.Version).
		SetList("custom_topic", o.CustomTopic).
		SetList("custom_intent", o.CustomIntent)
	if len(o.DetectLanguages) > 0 {
		q.SetList("detect_language", o.DetectLanguages)
	} else {
		q.SetBool("detect_language", o.DetectLanguage)
	}
	q.SetList("redact", o.Redact)
	q.SetExtra(o.Extra)
	return q
}

// SpeakOptions configures one-shot and streaming synthesis.
type SpeakOptions struct {
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	Encoding       string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Container      string `json:"container,omitempty" yaml:"container,omitempty"`
	BitRate        int    `json:"bit_rate,omitempty" yaml:"bit_rate,omitempty"`
	Callback       string `json:"callback,omitempty" yaml:"callback,omitempty"`
	CallbackMethod string `json:"callback_method,omitempty" yaml:"callback_method,omitempty"`
	MipOptOut      bool   `json:"mip_opt_out,omitempty" yaml:"mip_opt_out,omitempty"`

	// QueryParams are appended to both HTTP and streaming requests.
	QueryParams map[string]any `json:"query_params,omitempty" yaml:"query_params,omitempty"`

	// AutoFlush makes SendText follow each Text message with a Flush.
	// Defaults to true.
	AutoFlush *bool `json:"auto_flush,omitempty" yaml:"auto_flush,omitempty"`
}

func (o SpeakOptions) withDefaults() *SpeakOptions {
	if o.Model == "" {
		o.Model = DefaultSpeakModel
	}
	if o.Encoding == "" {
		o.Encoding = DefaultSpeakEncoding
	}
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSpeakSampleRate
	}
	return &o
}

func (o *SpeakOptions) autoFlush() bool {
	return o.AutoFlush == nil || *o.AutoFlush
}

// HTTPQuery encodes the options for the one-shot /speak endpoint.
func (o *SpeakOptions) HTTPQuery() *Query {
	container := o.Container
	if container == "" && o.Encoding == DefaultSpeakEncoding {
		container = DefaultSpeakContainer
	}
	q := NewQuery().
		Set("model", o.Model).
		Set("encoding", o.Encoding).
		SetInt("sample_rate", o.SampleRate).
		Set("container", container).
		SetInt("bit_rate", o.BitRate).
		Set("callback", o.Callback).
		Set("callback_method", o.CallbackMethod).
		SetBool("mip_opt_out", o.MipOptOut)
	q.SetRaw(o.QueryParams)
	return q
}

// StreamQuery encodes the options for the streaming /speak endpoint.
func (o *SpeakOptions) StreamQuery() *Query {
	q := NewQuery().
		Set("model", o.Model).
		Set("encoding", o.Encoding).
		SetInt("sample_rate", o.SampleRate).
		SetBool("mip_opt_out", o.MipOptOut)
	q.SetRaw(o.QueryParams)
	return q
}

// ReadOptions selects which text intelligence analyses to run.
type ReadOptions struct {
	Summarize        bool     `json:"summarize,omitempty" yaml:"summarize,omitempty"`
	Topics           bool     `json:"topics,omitempty" yaml:"topics,omitempty"`
	CustomTopic      []string `json:"custom_topic,omitempty" yaml:"custom_topic,omitempty"`
	CustomTopicMode  string   `json:"custom_topic_mode,omitempty" yaml:"custom_topic_mode,omitempty"`
	Intents          bool     `json:"intents,omitempty" yaml:"intents,omitempty"`
	CustomIntent     []string `json:"custom_intent,omitempty" yaml:"custom_intent,omitempty"`
	CustomIntentMode string   `json:"custom_intent_mode,omitempty" yaml:"custom_intent_mode,omitempty"`
	Sentiment        bool     `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	Language         string   `json:"language,omitempty" yaml:"language,omitempty"`
	Callback         string   `json:"callback,omitempty" yaml:"callback,omitempty"`
	CallbackMethod   string   `json:"callback_method,omitempty" yaml:"callback_method,omitempty"`
}

// Query encodes the options as request parameters.
func (o *ReadOptions) Query() *Query {
	return NewQuery().
		SetBool("summarize", o.Summarize).
		SetBool("topics", o.Topics).
		SetBool("intents", o.Intents).
		SetBool("sentiment", o.Sentiment).
		Set("language", o.Language).
		SetList("custom_topic", o.CustomTopic).
		Set("custom_topic_mode", o.CustomTopicMode).
		SetList("custom_intent", o.CustomIntent).
		Set("custom_intent_mode", o.CustomIntentMode).
		Set("callback", o.Callback).
		Set("callback_method", o.CallbackMethod)
}

// mergeOptions overlays the non-zero fields of override onto base. Both
// may be nil. Fields are compared through their omitempty JSON encoding.
func mergeOptions[T any](base, override *T) (*T, error) {
	merged := map[string]json.RawMessage{}
	for _, src := range []*T{base, override} {
		if src == nil {
			continue
		}
		data, err := json.Marshal(src)
		if err != nil {
			return nil, fmt.Errorf("deepgram: merge options: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("deepgram: merge options: %w", err)
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("deepgram: merge options: %w", err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("deepgram: merge options: %w", err)
	}
	return out, nil
}
