package deepgram

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// VoiceAgentConfig configures a VoiceAgent.
type VoiceAgentConfig struct {
	// Capture provides microphone audio, sent while the agent is not
	// speaking.
	Capture CaptureSource

	// Playback renders agent audio. Nil disables playback.
	Playback PlaybackSink

	// PlaybackSampleRate is the fixed rate of Playback, if any.
	PlaybackSampleRate int

	// Permission gates microphone access. Nil grants access.
	Permission PermissionGate

	// DefaultSettings is merged under the settings passed to Connect.
	DefaultSettings *AgentSettings

	// AutoStartMicrophone starts capture on connect. Defaults to true.
	AutoStartMicrophone *bool

	// AutoPlayAgentAudio plays agent audio and suppresses the microphone
	// while the agent speaks. Defaults to true.
	AutoPlayAgentAudio *bool

	// DownsampleFactor overrides the computed decimation factor.
	DownsampleFactor int

	// KeepAliveInterval sends KeepAlive messages at this interval while
	// connected. Zero disables them.
	KeepAliveInterval time.Duration

	// Functions are answered automatically when the agent requests a
	// client-side call to one of them.
	Functions Functions

	OnBeforeConnect        func()
	OnConnect              func()
	OnClose                func()
	OnError                func(error)
	OnMessage              func(AgentServerMessage)
	OnWelcome              func(*AgentWelcome)
	OnSettingsApplied      func(*AgentSettingsApplied)
	OnConversationText     func(*AgentConversationText)
	OnAgentThinking        func(*AgentThinking)
	OnAgentStartedSpeaking func(*AgentStartedSpeaking)
	OnAgentAudioDone       func(*AgentAudioDone)
	OnUserStartedSpeaking  func(*UserStartedSpeaking)
	OnFunctionCallRequest  func(*FunctionCallRequest)
	OnFunctionCallResponse func(*FunctionCallResponse)
	OnPromptUpdated        func(*PromptUpdated)
	OnSpeakUpdated         func(*SpeakUpdated)
	OnInjectionRefused     func(*InjectionRefused)
	OnWarning              func(*AgentWarning)
	OnServerError          func(*AgentError)
	OnAgentAudio           func(chunk []byte)
}

func (c *VoiceAgentConfig) setDefaults() {
	if c.OnBeforeConnect == nil {
		c.OnBeforeConnect = noop
	}
	if c.OnConnect == nil {
		c.OnConnect = noop
	}
	if c.OnClose == nil {
		c.OnClose = noop
	}
	if c.OnError == nil {
		c.OnError = noopErr
	}
	if c.OnMessage == nil {
		c.OnMessage = func(AgentServerMessage) {}
	}
	if c.OnWelcome == nil {
		c.OnWelcome = func(*AgentWelcome) {}
	}
	if c.OnSettingsApplied == nil {
		c.OnSettingsApplied = func(*AgentSettingsApplied) {}
	}
	if c.OnConversationText == nil {
		c.OnConversationText = func(*AgentConversationText) {}
	}
	if c.OnAgentThinking == nil {
		c.OnAgentThinking = func(*AgentThinking) {}
	}
	if c.OnAgentStartedSpeaking == nil {
		c.OnAgentStartedSpeaking = func(*AgentStartedSpeaking) {}
	}
	if c.OnAgentAudioDone == nil {
		c.OnAgentAudioDone = func(*AgentAudioDone) {}
	}
	if c.OnUserStartedSpeaking == nil {
		c.OnUserStartedSpeaking = func(*UserStartedSpeaking) {}
	}
	if c.OnFunctionCallRequest == nil {
		c.OnFunctionCallRequest = func(*FunctionCallRequest) {}
	}
	if c.OnFunctionCallResponse == nil {
		c.OnFunctionCallResponse = func(*FunctionCallResponse) {}
	}
	if c.OnPromptUpdated == nil {
		c.OnPromptUpdated = func(*PromptUpdated) {}
	}
	if c.OnSpeakUpdated == nil {
		c.OnSpeakUpdated = func(*SpeakUpdated) {}
	}
	if c.OnInjectionRefused == nil {
		c.OnInjectionRefused = func(*InjectionRefused) {}
	}
	if c.OnWarning == nil {
		c.OnWarning = func(*AgentWarning) {}
	}
	if c.OnServerError == nil {
		c.OnServerError = func(*AgentError) {}
	}
	if c.OnAgentAudio == nil {
		c.OnAgentAudio = func([]byte) {}
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// DefaultAgentSettings returns settings for a linear16 conversation at
// 24 kHz in both directions, with Deepgram listen and speak providers and
// an OpenAI think provider.
func DefaultAgentSettings() *AgentSettings {
	return &AgentSettings{
		Audio: &AgentAudioSettings{
			Input: &AgentAudioConfig{
				Encoding:   DefaultListenEncoding,
				SampleRate: DefaultAgentInputSampleRate,
			},
			Output: &AgentAudioConfig{
				Encoding:   DefaultSpeakEncoding,
				SampleRate: DefaultAgentOutputSampleRate,
				Container:  DefaultSpeakContainer,
			},
		},
		Agent: &AgentConfig{
			Language: "en",
			Listen: &AgentListenConfig{
				Provider: &AgentListenProvider{Type: "deepgram", Model: "nova-3"},
			},
			Think: &AgentThinkConfig{
				Provider: &AgentThinkProvider{Type: "open_ai", Model: "gpt-4o-mini"},
				Prompt:   "You are a helpful voice assistant. Keep answers short.",
			},
			Speak: &AgentSpeakConfig{
				Provider: map[string]any{"type": "deepgram", "model": DefaultSpeakModel},
			},
		},
	}
}

// VoiceAgent runs a full-duplex conversation with the Deepgram voice
// agent: microphone audio goes up, agent speech comes back and is played,
// and the microphone is muted while the agent talks.
//
// At most one conversation is active at a time. All methods are safe for
// concurrent use.
type VoiceAgent struct {
	client   *Client
	config   VoiceAgentConfig
	logger   *slog.Logger
	playback *playbackAdapter
	autoMic  bool
	autoPlay bool

	mu   sync.Mutex
	sess *agentSession
}

type agentSession struct {
	id     string
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// state is guarded by VoiceAgent.mu.
	state *agentState

	conn      *Conn
	capture   *captureLink
	closed    bool
	opened    bool
	stopAfter func() bool
}

// NewVoiceAgent creates a VoiceAgent.
func NewVoiceAgent(client *Client, config VoiceAgentConfig) *VoiceAgent {
	if client == nil {
		panic("deepgram: nil client")
	}
	config.setDefaults()
	logger := client.logger()
	return &VoiceAgent{
		client:   client,
		config:   config,
		logger:   logger,
		playback: newPlaybackAdapter(config.Playback, config.PlaybackSampleRate, logger),
		autoMic:  boolOr(config.AutoStartMicrophone, true),
		autoPlay: boolOr(config.AutoPlayAgentAudio, true),
	}
}

// Connect opens a conversation. settings are merged over
// DefaultSettings, top-level field by field, and sent as the first
// message.
//
// Failures are reported through OnError as well as returned. The
// conversation ends when ctx is cancelled.
func (a *VoiceAgent) Connect(ctx context.Context, settings *AgentSettings) error {
	a.Disconnect()
	a.config.OnBeforeConnect()

	id, logger := newSessionLogger(a.logger, modeAgent)
	s := &agentSession{id: id, logger: logger, state: newAgentState(a.autoPlay)}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Lock()
	a.sess = s
	a.mu.Unlock()

	err := a.connect(ctx, s, settings)
	if errors.Is(err, ErrRequestAborted) {
		return err
	}
	if err != nil {
		a.client.metrics().sessionFailed(modeAgent)
		logger.Debug("connect failed", "error", err)
		a.config.OnError(err)
		a.teardown(s)
		return err
	}
	return nil
}

func (a *VoiceAgent) connect(ctx context.Context, s *agentSession, override *AgentSettings) error {
	capture := a.autoMic && a.config.Capture != nil
	if capture {
		if err := requestPermission(ctx, a.config.Permission); err != nil {
			return err
		}
	}
	if err := a.client.checkCredential(); err != nil {
		return err
	}

	settings, err := mergeOptions(a.config.DefaultSettings, override)
	if err != nil {
		return err
	}
	inputRate := settings.inputSampleRate()
	outputRate, outputChannels := settings.outputFormat()

	conn, err := a.client.dialConn(ctx, a.client.config.agentURL, connHandler{
		onText:   func(data []byte) { a.handleText(s, data) },
		onBinary: func(data []byte) { a.handleAudio(s, data) },
		onClose:  func(err error) { a.handleClose(s, err) },
	}, s.logger)
	if err != nil {
		return err
	}

	// Settings is queued before the conn is published so no other client
	// message can go out ahead of it.
	a.mu.Lock()
	if s.closed {
		a.mu.Unlock()
		conn.Close(CloseNormal, "cleanup")
		return ErrRequestAborted
	}
	if !conn.SendJSON(SettingsMessage{AgentSettings: *settings}) {
		a.mu.Unlock()
		conn.Close(CloseNormal, "cleanup")
		return ErrTransportClosed
	}
	s.conn = conn
	s.opened = true
	a.mu.Unlock()
	a.client.metrics().sessionOpened(modeAgent)
	s.logger.Info("agent connected", "input_rate", inputRate, "output_rate", outputRate)
	a.config.OnConnect()

	if a.autoPlay {
		if err := a.playback.configure(outputRate, outputChannels); err != nil {
			return err
		}
	}

	if capture {
		link, err := startCaptureLink(ctx, a.config.Capture, captureSink{
			adapter:  captureAdapter{targetRate: inputRate, factor: a.config.DownsampleFactor},
			send:     conn.SendBinary,
			suppress: func() bool { return a.suppressed(s) },
			mode:     modeAgent,
			metrics:  a.client.metrics(),
			logger:   s.logger,
		})
		if err != nil {
			return err
		}
		a.mu.Lock()
		if s.closed {
			a.mu.Unlock()
			link.stop(s.logger)
			return ErrRequestAborted
		}
		s.capture = link
		a.mu.Unlock()
	}

	if a.config.KeepAliveInterval > 0 {
		go a.keepAlive(s, conn)
	}

	stop := context.AfterFunc(ctx, func() {
		if a.teardown(s) {
			a.config.OnClose()
		}
	})
	a.mu.Lock()
	s.stopAfter = stop
	a.mu.Unlock()
	return nil
}

func (a *VoiceAgent) keepAlive(s *agentSession, conn *Conn) {
	ticker := time.NewTicker(a.config.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			conn.SendJSON(KeepAliveMessage{})
		}
	}
}

func (a *VoiceAgent) suppressed(s *agentSession) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return s.state.suppressed
}

func (a *VoiceAgent) current(s *agentSession) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess == s && !s.closed
}

func (a *VoiceAgent) handleText(s *agentSession, data []byte) {
	if !a.current(s) {
		return
	}
	msg, err := ParseAgentMessage(data)
	if err != nil {
		// Some agent deployments send audio as bare base64 text frames.
		audio, derr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil || len(audio) == 0 {
			s.logger.Debug("ignore agent frame", "error", err)
			return
		}
		a.handleAudio(s, audio)
		return
	}

	a.config.OnMessage(msg)

	a.mu.Lock()
	fx := s.state.apply(msg)
	a.mu.Unlock()
	if fx.suppressChanged {
		s.logger.Debug("microphone suppression", "suppressed", fx.suppressed)
	}
	if fx.configure && a.autoPlay {
		if err := a.playback.configure(fx.sampleRate, fx.channels); err != nil {
			a.config.OnError(err)
		}
	}

	switch m := msg.(type) {
	case *AgentWelcome:
		a.config.OnWelcome(m)
	case *AgentSettingsApplied:
		a.config.OnSettingsApplied(m)
	case *AgentConversationText:
		a.config.OnConversationText(m)
	case *AgentThinking:
		a.config.OnAgentThinking(m)
	case *AgentStartedSpeaking:
		a.config.OnAgentStartedSpeaking(m)
	case *AgentAudioDone:
		a.config.OnAgentAudioDone(m)
	case *UserStartedSpeaking:
		a.config.OnUserStartedSpeaking(m)
	case *FunctionCallRequest:
		a.config.OnFunctionCallRequest(m)
		a.answerFunctionCalls(s, m)
	case *FunctionCallResponse:
		a.config.OnFunctionCallResponse(m)
	case *PromptUpdated:
		a.config.OnPromptUpdated(m)
	case *SpeakUpdated:
		a.config.OnSpeakUpdated(m)
	case *InjectionRefused:
		a.config.OnInjectionRefused(m)
	case *AgentWarning:
		s.logger.Warn("agent warning", "code", m.Code, "description", m.Description)
		a.config.OnWarning(m)
	case *AgentError:
		if fx.serverError {
			a.config.OnServerError(m)
		}
		a.config.OnError(fx.err)
	case *AgentAudio:
		if fx.err != nil {
			a.config.OnError(fx.err)
		} else if len(fx.audio) > 0 {
			a.handleAudio(s, fx.audio)
		}
	}
}

// handleAudio plays and reports one chunk of agent speech.
func (a *VoiceAgent) handleAudio(s *agentSession, data []byte) {
	if !a.current(s) || len(data) == 0 {
		return
	}
	a.config.OnAgentAudio(data)
	if !a.autoPlay {
		return
	}
	if err := a.playback.feed(data); err != nil {
		a.config.OnError(err)
	}
}

// answerFunctionCalls runs the registered client-side functions of req
// in the background and sends their responses.
func (a *VoiceAgent) answerFunctionCalls(s *agentSession, req *FunctionCallRequest) {
	for i := range req.Functions {
		call := req.Functions[i]
		if !call.ClientSide {
			continue
		}
		fn := a.config.Functions.Lookup(call.Name)
		if fn == nil {
			continue
		}
		go func() {
			content, err := fn.Call(s.ctx, &call)
			if err != nil {
				s.logger.Warn("function call failed", "name", call.Name, "error", err)
				content = "error: " + err.Error()
			}
			a.mu.Lock()
			conn := s.conn
			live := a.sess == s && !s.closed
			a.mu.Unlock()
			if !live || conn == nil {
				return
			}
			conn.SendJSON(FunctionCallResponseMessage{
				ID:      call.ID,
				Name:    call.Name,
				Content: content,
			})
		}()
	}
}

func (a *VoiceAgent) handleClose(s *agentSession, err error) {
	if !a.teardown(s) {
		return
	}
	if err != nil {
		a.config.OnError(err)
	}
	a.config.OnClose()
}

// teardown releases the microphone, stops playback and closes the
// transport, in that order. It reports whether this call did the work.
func (a *VoiceAgent) teardown(s *agentSession) bool {
	a.mu.Lock()
	if s.closed {
		a.mu.Unlock()
		return false
	}
	s.closed = true
	if a.sess == s {
		a.sess = nil
	}
	s.state.reset()
	conn, link, stop, opened := s.conn, s.capture, s.stopAfter, s.opened
	a.mu.Unlock()

	s.cancel()
	if stop != nil {
		stop()
	}
	link.stop(s.logger)
	a.playback.stop()
	if conn != nil {
		conn.Close(CloseNormal, "cleanup")
	}
	if opened {
		a.client.metrics().sessionClosed(modeAgent)
	}
	s.logger.Debug("agent session torn down")
	return true
}

// Disconnect ends the conversation. OnClose fires only when one was
// active.
func (a *VoiceAgent) Disconnect() {
	a.mu.Lock()
	s := a.sess
	a.mu.Unlock()
	if s != nil && a.teardown(s) {
		a.config.OnClose()
	}
}

func (a *VoiceAgent) conn() *Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil || a.sess.closed {
		return nil
	}
	return a.sess.conn
}

// IsConnected reports whether the conversation socket is open.
func (a *VoiceAgent) IsConnected() bool {
	c := a.conn()
	return c != nil && c.State() == StateOpen
}

// IsMicSuppressed reports whether captured audio is currently discarded
// because the agent is speaking.
func (a *VoiceAgent) IsMicSuppressed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess != nil && a.sess.state.suppressed
}

// SendMessage sends a client message. It reports false when not
// connected.
func (a *VoiceAgent) SendMessage(msg AgentClientMessage) bool {
	c := a.conn()
	if c == nil {
		return false
	}
	return c.SendJSON(msg)
}

// SendSettings replaces the conversation settings.
func (a *VoiceAgent) SendSettings(settings AgentSettings) bool {
	return a.SendMessage(SettingsMessage{AgentSettings: settings})
}

// UpdatePrompt appends to the agent's system prompt.
func (a *VoiceAgent) UpdatePrompt(prompt string) bool {
	return a.SendMessage(UpdatePromptMessage{Prompt: prompt})
}

// UpdateSpeak switches the speak provider.
func (a *VoiceAgent) UpdateSpeak(speak *AgentSpeakConfig) bool {
	return a.SendMessage(UpdateSpeakMessage{Speak: speak})
}

// InjectUserMessage sends text as if the user had said it.
func (a *VoiceAgent) InjectUserMessage(content string) bool {
	return a.SendMessage(InjectUserMessage{Content: content})
}

// InjectAgentMessage makes the agent say message.
func (a *VoiceAgent) InjectAgentMessage(message string) bool {
	return a.SendMessage(InjectAgentMessage{Message: message})
}

// SendFunctionCallResponse answers a function call.
func (a *VoiceAgent) SendFunctionCallResponse(resp FunctionCallResponseMessage) bool {
	return a.SendMessage(resp)
}

// SendKeepAlive keeps an idle conversation open.
func (a *VoiceAgent) SendKeepAlive() bool {
	return a.SendMessage(KeepAliveMessage{})
}

// SendMedia sends raw audio in the configured input format.
func (a *VoiceAgent) SendMedia(data []byte) bool {
	c := a.conn()
	if c == nil {
		return false
	}
	return c.SendBinary(data)
}
