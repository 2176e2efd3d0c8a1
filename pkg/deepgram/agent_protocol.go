package deepgram

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Voice agent audio defaults.
const (
	DefaultAgentInputSampleRate  = 24000
	DefaultAgentOutputSampleRate = 24000

	// NativeCaptureRate is the rate the reference capture path records at.
	NativeCaptureRate = 48000
)

// AgentSettings configures a voice agent conversation. It is sent as the
// Settings message right after the socket opens.
type AgentSettings struct {
	Tags         []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Experimental bool                `json:"experimental,omitempty" yaml:"experimental,omitempty"`
	Flags        *AgentFlags         `json:"flags,omitempty" yaml:"flags,omitempty"`
	MipOptOut    bool                `json:"mip_opt_out,omitempty" yaml:"mip_opt_out,omitempty"`
	Audio        *AgentAudioSettings `json:"audio,omitempty" yaml:"audio,omitempty"`
	Agent        *AgentConfig        `json:"agent,omitempty" yaml:"agent,omitempty"`
}

type AgentFlags struct {
	History *bool `json:"history,omitempty" yaml:"history,omitempty"`
}

type AgentAudioSettings struct {
	Input  *AgentAudioConfig `json:"input,omitempty" yaml:"input,omitempty"`
	Output *AgentAudioConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

type AgentAudioConfig struct {
	Encoding   string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`
	Container  string `json:"container,omitempty" yaml:"container,omitempty"`
	Channels   int    `json:"channels,omitempty" yaml:"channels,omitempty"`
}

type AgentConfig struct {
	Language string             `json:"language,omitempty" yaml:"language,omitempty"`
	Context  *AgentContext      `json:"context,omitempty" yaml:"context,omitempty"`
	Listen   *AgentListenConfig `json:"listen,omitempty" yaml:"listen,omitempty"`
	Think    *AgentThinkConfig  `json:"think,omitempty" yaml:"think,omitempty"`
	Speak    *AgentSpeakConfig  `json:"speak,omitempty" yaml:"speak,omitempty"`
	Greeting string             `json:"greeting,omitempty" yaml:"greeting,omitempty"`
}

type AgentContext struct {
	Messages []AgentContextMessage `json:"messages,omitempty" yaml:"messages,omitempty"`
}

type AgentContextMessage struct {
	Type    string `json:"type" yaml:"type"`
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

type AgentListenConfig struct {
	Provider *AgentListenProvider `json:"provider,omitempty" yaml:"provider,omitempty"`
}

type AgentListenProvider struct {
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Keyterms    []string `json:"keyterms,omitempty" yaml:"keyterms,omitempty"`
	SmartFormat bool     `json:"smart_format,omitempty" yaml:"smart_format,omitempty"`
}

type AgentThinkConfig struct {
	Provider      *AgentThinkProvider   `json:"provider,omitempty" yaml:"provider,omitempty"`
	Functions     []AgentFunctionConfig `json:"functions,omitempty" yaml:"functions,omitempty"`
	Prompt        string                `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	ContextLength int                   `json:"context_length,omitempty" yaml:"context_length,omitempty"`
}

type AgentThinkProvider struct {
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// AgentFunctionConfig declares a function the agent may call. Functions
// without an Endpoint are executed on the client.
type AgentFunctionConfig struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  any                    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Endpoint    *AgentFunctionEndpoint `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type AgentFunctionEndpoint struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type AgentSpeakConfig struct {
	Provider map[string]any `json:"provider,omitempty" yaml:"provider,omitempty"`
}

func (s *AgentSettings) inputSampleRate() int {
	if s != nil && s.Audio != nil && s.Audio.Input != nil && s.Audio.Input.SampleRate > 0 {
		return s.Audio.Input.SampleRate
	}
	return DefaultAgentInputSampleRate
}

func (s *AgentSettings) outputFormat() (rate, channels int) {
	rate, channels = DefaultAgentOutputSampleRate, 1
	if s != nil && s.Audio != nil && s.Audio.Output != nil {
		if s.Audio.Output.SampleRate > 0 {
			rate = s.Audio.Output.SampleRate
		}
		if s.Audio.Output.Channels > 0 {
			channels = s.Audio.Output.Channels
		}
	}
	return rate, channels
}

// AgentClientMessage is a message sent to the voice agent.
type AgentClientMessage interface {
	agentClientMessage()
}

// SettingsMessage wraps AgentSettings.
type SettingsMessage struct {
	AgentSettings
}

type UpdateSpeakMessage struct {
	Speak *AgentSpeakConfig `json:"speak"`
}

type InjectUserMessage struct {
	Content string `json:"content"`
}

type InjectAgentMessage struct {
	Message string `json:"message"`
}

// FunctionCallResponseMessage answers a FunctionCallRequest.
type FunctionCallResponseMessage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	ClientSide *bool  `json:"client_side,omitempty"`
}

type KeepAliveMessage struct{}

type UpdatePromptMessage struct {
	Prompt string `json:"prompt"`
}

func (SettingsMessage) agentClientMessage()             {}
func (UpdateSpeakMessage) agentClientMessage()          {}
func (InjectUserMessage) agentClientMessage()           {}
func (InjectAgentMessage) agentClientMessage()          {}
func (FunctionCallResponseMessage) agentClientMessage() {}
func (KeepAliveMessage) agentClientMessage()            {}
func (UpdatePromptMessage) agentClientMessage()         {}

func (m SettingsMessage) MarshalJSON() ([]byte, error) {
	type alias AgentSettings
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"Settings", alias(m.AgentSettings)})
}

func (m UpdateSpeakMessage) MarshalJSON() ([]byte, error) {
	type alias UpdateSpeakMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"UpdateSpeak", alias(m)})
}

func (m InjectUserMessage) MarshalJSON() ([]byte, error) {
	type alias InjectUserMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"InjectUserMessage", alias(m)})
}

func (m InjectAgentMessage) MarshalJSON() ([]byte, error) {
	type alias InjectAgentMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"InjectAgentMessage", alias(m)})
}

func (m FunctionCallResponseMessage) MarshalJSON() ([]byte, error) {
	type alias FunctionCallResponseMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"FunctionCallResponse", alias(m)})
}

func (KeepAliveMessage) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"KeepAlive"}`), nil
}

func (m UpdatePromptMessage) MarshalJSON() ([]byte, error) {
	type alias UpdatePromptMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"UpdatePrompt", alias(m)})
}

// AgentServerMessage is a message received from the voice agent. Raw
// returns the frame as received.
type AgentServerMessage interface {
	MessageType() string
	Raw() json.RawMessage
}

type agentRaw struct {
	raw json.RawMessage
}

func (m *agentRaw) Raw() json.RawMessage { return m.raw }

func (m *agentRaw) setRaw(raw json.RawMessage) { m.raw = raw }

type AgentWelcome struct {
	agentRaw
	RequestID string `json:"request_id"`
}

type AgentSettingsApplied struct {
	agentRaw
}

type AgentConversationText struct {
	agentRaw
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AgentThinking struct {
	agentRaw
	Content string `json:"content"`
}

type AgentStartedSpeaking struct {
	agentRaw
	TotalLatency float64 `json:"total_latency,omitempty"`
	TTSLatency   float64 `json:"tts_latency,omitempty"`
	TTTLatency   float64 `json:"ttt_latency,omitempty"`
}

type AgentAudioDone struct {
	agentRaw
}

type UserStartedSpeaking struct {
	agentRaw
}

// FunctionCall is one function the agent wants to invoke.
type FunctionCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ClientSide bool   `json:"client_side"`
}

type FunctionCallRequest struct {
	agentRaw
	Functions []FunctionCall `json:"functions"`
}

type FunctionCallResponse struct {
	agentRaw
	ID         string `json:"id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	ClientSide bool   `json:"client_side,omitempty"`
}

type PromptUpdated struct {
	agentRaw
}

type SpeakUpdated struct {
	agentRaw
}

// AgentAudio carries a base64 audio chunk inside a text frame.
type AgentAudio struct {
	agentRaw
	Chunk      string `json:"chunk"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// AgentAudioConfigMessage announces the format of subsequent agent audio.
type AgentAudioConfigMessage struct {
	agentRaw
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

type InjectionRefused struct {
	agentRaw
	Message string `json:"message"`
}

type AgentWarning struct {
	agentRaw
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
}

type AgentError struct {
	agentRaw
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
}

// AgentUnknown is any message with an unrecognized type, or a known type
// that is missing required fields.
type AgentUnknown struct {
	agentRaw
	Type string
}

func (*AgentWelcome) MessageType() string            { return "Welcome" }
func (*AgentSettingsApplied) MessageType() string    { return "SettingsApplied" }
func (*AgentConversationText) MessageType() string   { return "ConversationText" }
func (*AgentThinking) MessageType() string           { return "AgentThinking" }
func (*AgentStartedSpeaking) MessageType() string    { return "AgentStartedSpeaking" }
func (*AgentAudioDone) MessageType() string          { return "AgentAudioDone" }
func (*UserStartedSpeaking) MessageType() string     { return "UserStartedSpeaking" }
func (*FunctionCallRequest) MessageType() string     { return "FunctionCallRequest" }
func (*FunctionCallResponse) MessageType() string    { return "FunctionCallResponse" }
func (*PromptUpdated) MessageType() string           { return "PromptUpdated" }
func (*SpeakUpdated) MessageType() string            { return "SpeakUpdated" }
func (*AgentAudio) MessageType() string              { return "Audio" }
func (*AgentAudioConfigMessage) MessageType() string { return "AudioConfig" }
func (*InjectionRefused) MessageType() string        { return "InjectionRefused" }
func (*AgentWarning) MessageType() string            { return "Warning" }
func (*AgentError) MessageType() string              { return "Error" }
func (m *AgentUnknown) MessageType() string          { return m.Type }

// Err converts the message into an error.
func (m *AgentError) Err() error {
	return &ServerError{Description: m.Description, Code: m.Code}
}

type agentMessage interface {
	AgentServerMessage
	setRaw(json.RawMessage)
}

// agentVariants lists the required keys of each known message type.
var agentVariants = map[string]struct {
	required []string
	new      func() agentMessage
}{
	"Welcome":              {[]string{"request_id"}, func() agentMessage { return new(AgentWelcome) }},
	"SettingsApplied":      {nil, func() agentMessage { return new(AgentSettingsApplied) }},
	"ConversationText":     {[]string{"role", "content"}, func() agentMessage { return new(AgentConversationText) }},
	"AgentThinking":        {[]string{"content"}, func() agentMessage { return new(AgentThinking) }},
	"AgentStartedSpeaking": {nil, func() agentMessage { return new(AgentStartedSpeaking) }},
	"AgentAudioDone":       {nil, func() agentMessage { return new(AgentAudioDone) }},
	"UserStartedSpeaking":  {nil, func() agentMessage { return new(UserStartedSpeaking) }},
	"FunctionCallRequest":  {[]string{"functions"}, func() agentMessage { return new(FunctionCallRequest) }},
	"FunctionCallResponse": {[]string{"id", "name"}, func() agentMessage { return new(FunctionCallResponse) }},
	"PromptUpdated":        {nil, func() agentMessage { return new(PromptUpdated) }},
	"SpeakUpdated":         {nil, func() agentMessage { return new(SpeakUpdated) }},
	"Audio":                {nil, func() agentMessage { return new(AgentAudio) }},
	"AudioConfig":          {nil, func() agentMessage { return new(AgentAudioConfigMessage) }},
	"InjectionRefused":     {[]string{"message"}, func() agentMessage { return new(InjectionRefused) }},
	"Warning":              {[]string{"description"}, func() agentMessage { return new(AgentWarning) }},
	"Error":                {nil, func() agentMessage { return new(AgentError) }},
}

// ParseAgentMessage interprets one text frame from the voice agent. It
// returns an error only for frames that are not JSON objects.
func ParseAgentMessage(data []byte) (AgentServerMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: agent message is not a JSON object", ErrProtocol)
	}
	raw := json.RawMessage(append([]byte(nil), data...))

	var typ string
	if t, ok := fields["type"]; ok {
		json.Unmarshal(t, &typ)
	}
	unknown := &AgentUnknown{agentRaw: agentRaw{raw: raw}, Type: typ}

	variant, ok := agentVariants[typ]
	if !ok || !hasKeys(fields, variant.required) {
		return unknown, nil
	}
	msg := variant.new()
	// A mistyped optional field is left zero; the rest still decodes.
	_ = json.Unmarshal(data, msg)
	msg.setRaw(raw)
	return msg, nil
}

func hasKeys(fields map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return false
		}
	}
	return true
}

// agentEffects is what the facade must do in response to one message.
type agentEffects struct {
	// suppressChanged is set when the microphone suppression flag flipped.
	suppressChanged bool
	suppressed      bool

	// configure requests a playback reconfiguration.
	configure  bool
	sampleRate int
	channels   int

	// audio is decoded agent audio to play and report.
	audio []byte

	serverError bool
	err         error
}

// agentState is the derived state of one voice agent session. It performs
// no I/O.
type agentState struct {
	autoPlay   bool
	suppressed bool
}

func newAgentState(autoPlay bool) *agentState {
	return &agentState{autoPlay: autoPlay}
}

func (s *agentState) setSuppressed(v bool, fx *agentEffects) {
	if s.suppressed != v {
		s.suppressed = v
		fx.suppressChanged = true
	}
	fx.suppressed = s.suppressed
}

// apply updates the state for msg and returns the side effects.
func (s *agentState) apply(msg AgentServerMessage) agentEffects {
	fx := agentEffects{suppressed: s.suppressed}
	switch m := msg.(type) {
	case *AgentStartedSpeaking:
		if s.autoPlay {
			s.setSuppressed(true, &fx)
		}
	case *AgentAudioDone, *UserStartedSpeaking:
		s.setSuppressed(false, &fx)
	case *AgentAudio:
		if m.SampleRate > 0 {
			fx.configure = true
			fx.sampleRate, fx.channels = m.SampleRate, normalizeChannels(m.Channels)
		}
		if m.Chunk != "" {
			data, err := base64.StdEncoding.DecodeString(m.Chunk)
			if err != nil {
				fx.err = fmt.Errorf("%w: agent audio: %v", ErrEncoding, err)
			} else {
				fx.audio = data
			}
		}
	case *AgentAudioConfigMessage:
		if m.SampleRate > 0 {
			fx.configure = true
			fx.sampleRate, fx.channels = m.SampleRate, normalizeChannels(m.Channels)
		}
	case *AgentError:
		fx.serverError = m.Description != "" || m.Code != ""
		if fx.serverError {
			fx.err = m.Err()
		} else {
			fx.err = &ServerError{Description: "Voice agent error"}
		}
	}
	return fx
}

// reset clears suppression for a new session.
func (s *agentState) reset() {
	s.suppressed = false
}

func normalizeChannels(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
