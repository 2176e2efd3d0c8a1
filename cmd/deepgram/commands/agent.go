package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var (
	agentPrompt      string
	agentGreeting    string
	agentThinkModel  string
	agentVoice       string
	agentListenModel string
	agentLanguage    string
	agentAudio       string
	agentWAVDir      string
	agentKeepAlive   time.Duration
	agentFunctions   bool
	agentTUI         bool
	agentNoMic       bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to a voice agent",
	Long: `Hold a spoken conversation with the Deepgram voice agent.

Microphone audio is sent while the agent is silent; agent speech is played
on the default output device. The conversation text is printed as it
happens. Settings can be loaded with -f; missing parts use built-in
defaults.

While connected, typed lines are sent as user messages. Lines starting
with a slash are commands:

  /say <text>      make the agent say text
  /prompt <text>   append to the system prompt
  /voice <model>   switch the speaking voice
  /quit            end the conversation

Examples:
  deepgram agent
  deepgram agent --prompt "You are a pirate." --voice aura-2-draco-en
  deepgram agent -f agent.yaml --functions
  deepgram agent --audio question.wav --wav-dir replies/ --no-mic`,
	RunE: runAgent,
}

func init() {
	f := agentCmd.Flags()
	f.StringVar(&agentPrompt, "prompt", "", "system prompt")
	f.StringVar(&agentGreeting, "greeting", "", "first thing the agent says")
	f.StringVar(&agentThinkModel, "think-model", "", "language model")
	f.StringVar(&agentVoice, "voice", "", "speak model")
	f.StringVar(&agentListenModel, "listen-model", "", "transcription model")
	f.StringVar(&agentLanguage, "language", "", "conversation language")
	f.StringVar(&agentAudio, "audio", "", "WAV file to send instead of the microphone")
	f.StringVar(&agentWAVDir, "wav-dir", "", "write agent speech to WAV files in this directory")
	f.DurationVar(&agentKeepAlive, "keepalive", 5*time.Second, "keep-alive interval (0 disables)")
	f.BoolVar(&agentFunctions, "functions", false, "offer the built-in client-side functions")
	f.BoolVar(&agentTUI, "tui", false, "full-screen view")
	f.BoolVar(&agentNoMic, "no-mic", false, "do not capture audio; only typed messages")
}

// agentSettings loads -f and fills the missing agent sections from the
// defaults, then applies the flags.
func agentSettings(cmd *cobra.Command, fns deepgram.Functions) (*deepgram.AgentSettings, error) {
	settings := &deepgram.AgentSettings{}
	if path := getInputFile(); path != "" {
		if err := loadRequest(path, settings); err != nil {
			return nil, err
		}
	}
	defaults := deepgram.DefaultAgentSettings()
	if settings.Audio == nil {
		settings.Audio = defaults.Audio
	}
	if settings.Agent == nil {
		settings.Agent = defaults.Agent
	} else {
		a, d := settings.Agent, defaults.Agent
		if a.Language == "" {
			a.Language = d.Language
		}
		if a.Listen == nil {
			a.Listen = d.Listen
		}
		if a.Think == nil {
			a.Think = d.Think
		}
		if a.Speak == nil {
			a.Speak = d.Speak
		}
	}

	a := settings.Agent
	flags := cmd.Flags()
	if flags.Changed("prompt") {
		a.Think.Prompt = agentPrompt
	}
	if flags.Changed("greeting") {
		a.Greeting = agentGreeting
	}
	if flags.Changed("think-model") {
		if a.Think.Provider == nil {
			a.Think.Provider = &deepgram.AgentThinkProvider{Type: "open_ai"}
		}
		a.Think.Provider.Model = agentThinkModel
	}
	if flags.Changed("voice") {
		a.Speak = speakConfig(agentVoice)
	}
	if flags.Changed("listen-model") {
		a.Listen = &deepgram.AgentListenConfig{
			Provider: &deepgram.AgentListenProvider{Type: "deepgram", Model: agentListenModel},
		}
	}
	if flags.Changed("language") {
		a.Language = agentLanguage
	}
	if len(fns) > 0 {
		a.Think.Functions = append(a.Think.Functions, fns.Configs()...)
	}
	return settings, nil
}

func speakConfig(model string) *deepgram.AgentSpeakConfig {
	return &deepgram.AgentSpeakConfig{Provider: map[string]any{"type": "deepgram", "model": model}}
}

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone such as Europe/Paris; empty means local time"`
}

// builtinFunctions are answered on the client when --functions is set.
func builtinFunctions() deepgram.Functions {
	return deepgram.Functions{
		deepgram.MustNewFunction("get_time", "Get the current date and time",
			func(ctx context.Context, args timeArgs) (any, error) {
				loc := time.Local
				if args.Timezone != "" {
					l, err := time.LoadLocation(args.Timezone)
					if err != nil {
						return nil, err
					}
					loc = l
				}
				now := time.Now().In(loc)
				return map[string]string{
					"time":     now.Format(time.RFC3339),
					"weekday":  now.Weekday().String(),
					"timezone": loc.String(),
				}, nil
			}),
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}
	var fns deepgram.Functions
	if agentFunctions {
		fns = builtinFunctions()
	}
	settings, err := agentSettings(cmd, fns)
	if err != nil {
		return err
	}
	if agentNoMic && agentTUI {
		return fmt.Errorf("--no-mic needs typed input, which --tui does not support")
	}

	return runLive(cmd.Context(), "Deepgram Voice Agent", agentTUI, func(ctx context.Context, out presenter) error {
		return converse(ctx, cfgCtx, settings, fns, out)
	})
}

func converse(ctx context.Context, cfgCtx *cli.Context, settings *deepgram.AgentSettings, fns deepgram.Functions, out presenter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputRate := deepgram.DefaultAgentInputSampleRate
	if in := settings.Audio.Input; in != nil && in.SampleRate > 0 {
		inputRate = in.SampleRate
	}

	p := newPlayer(agentWAVDir)
	defer p.Stop()

	ended := make(chan struct{})
	var endOnce sync.Once
	var (
		errMu    sync.Mutex
		firstErr error
	)

	autoMic := !agentNoMic
	agent := deepgram.NewVoiceAgent(createClient(cfgCtx), deepgram.VoiceAgentConfig{
		Capture:             newCapture(agentAudio, inputRate, nil),
		Playback:            p,
		DefaultSettings:     deepgram.DefaultAgentSettings(),
		AutoStartMicrophone: &autoMic,
		KeepAliveInterval:   agentKeepAlive,
		Functions:           fns,

		OnConnect: func() {
			out.Status("connected")
		},
		OnWelcome: func(m *deepgram.AgentWelcome) {
			out.Event("welcome (request %s)", m.RequestID)
		},
		OnSettingsApplied: func(*deepgram.AgentSettingsApplied) {
			out.Status("listening")
		},
		OnConversationText: func(m *deepgram.AgentConversationText) {
			out.Transcript(m.Role, m.Content, true)
		},
		OnUserStartedSpeaking: func(*deepgram.UserStartedSpeaking) {
			out.Status("user speaking")
		},
		OnAgentThinking: func(m *deepgram.AgentThinking) {
			out.Status("thinking")
			if m.Content != "" {
				out.Event("thinking: %s", m.Content)
			}
		},
		OnAgentStartedSpeaking: func(m *deepgram.AgentStartedSpeaking) {
			out.Status("agent speaking")
			if m.TotalLatency > 0 {
				out.Event("latency %.0fms (tts %.0fms, llm %.0fms)", m.TotalLatency*1000, m.TTSLatency*1000, m.TTTLatency*1000)
			}
		},
		OnAgentAudioDone: func(*deepgram.AgentAudioDone) {
			out.Status("listening")
		},
		OnFunctionCallRequest: func(m *deepgram.FunctionCallRequest) {
			for _, fn := range m.Functions {
				out.Event("call %s(%s) client_side=%v", fn.Name, fn.Arguments, fn.ClientSide)
			}
		},
		OnFunctionCallResponse: func(m *deepgram.FunctionCallResponse) {
			out.Event("result %s: %s", m.Name, m.Content)
		},
		OnPromptUpdated: func(*deepgram.PromptUpdated) {
			out.Event("prompt updated")
		},
		OnSpeakUpdated: func(*deepgram.SpeakUpdated) {
			out.Event("voice updated")
		},
		OnInjectionRefused: func(m *deepgram.InjectionRefused) {
			out.Event("injection refused: %s", m.Message)
		},
		OnWarning: func(m *deepgram.AgentWarning) {
			out.Event("warning %s: %s", m.Code, m.Description)
		},
		OnServerError: func(m *deepgram.AgentError) {
			out.Event("server error %s: %s", m.Code, m.Description)
		},
		OnError: func(err error) {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		},
		OnClose: func() {
			out.Status("closed")
			endOnce.Do(func() { close(ended) })
		},
	})

	if err := agent.Connect(ctx, settings); err != nil {
		return err
	}
	defer agent.Disconnect()

	if !agentTUI {
		go readAgentInput(ctx, agent, cancel, out)
	}

	select {
	case <-ctx.Done():
	case <-ended:
	}
	agent.Disconnect()

	errMu.Lock()
	defer errMu.Unlock()
	return firstErr
}

// readAgentInput turns stdin lines into user messages and slash commands.
func readAgentInput(ctx context.Context, agent *deepgram.VoiceAgent, quit context.CancelFunc, out presenter) {
	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(lines.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		var ok bool
		switch {
		case !strings.HasPrefix(line, "/"):
			ok = agent.InjectUserMessage(line)
		case cmd == "/quit" || cmd == "/exit":
			quit()
			return
		case cmd == "/say" && arg != "":
			ok = agent.InjectAgentMessage(arg)
		case cmd == "/prompt" && arg != "":
			ok = agent.UpdatePrompt(arg)
		case cmd == "/voice" && arg != "":
			ok = agent.UpdateSpeak(speakConfig(arg))
		default:
			out.Event("unknown command %q", line)
			continue
		}
		if !ok {
			out.Event("not connected")
		}
	}
}
