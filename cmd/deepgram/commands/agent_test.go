package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

func TestAgentSettings_Defaults(t *testing.T) {
	inputFile = ""
	s, err := agentSettings(agentCmd, builtinFunctions())
	if err != nil {
		t.Fatal(err)
	}
	if s.Audio == nil || s.Audio.Input.SampleRate != deepgram.DefaultAgentInputSampleRate {
		t.Errorf("audio = %+v", s.Audio)
	}
	if s.Agent.Listen == nil || s.Agent.Speak == nil || s.Agent.Think == nil {
		t.Fatalf("agent sections missing: %+v", s.Agent)
	}
	fns := s.Agent.Think.Functions
	if len(fns) != 1 || fns[0].Name != "get_time" || fns[0].Parameters == nil {
		t.Errorf("functions = %+v", fns)
	}
}

func TestAgentSettings_FileKeepsOwnSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	data := `
agent:
  greeting: Ahoy!
  think:
    prompt: You are a pirate.
    provider:
      type: anthropic
      model: claude-3-haiku
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	inputFile = path
	defer func() { inputFile = "" }()

	s, err := agentSettings(agentCmd, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := s.Agent
	if a.Greeting != "Ahoy!" || a.Think.Prompt != "You are a pirate." || a.Think.Provider.Type != "anthropic" {
		t.Errorf("file values lost: %+v / %+v", a, a.Think)
	}
	if a.Language != "en" || a.Listen == nil || a.Speak == nil {
		t.Errorf("missing sections should come from defaults: %+v", a)
	}
	if len(a.Think.Functions) != 0 {
		t.Errorf("no functions expected, got %+v", a.Think.Functions)
	}
}

func TestBuiltinFunctions_GetTime(t *testing.T) {
	fn := builtinFunctions().Lookup("get_time")
	if fn == nil {
		t.Fatal("get_time not registered")
	}
	out, err := fn.Call(context.Background(), &deepgram.FunctionCall{Name: "get_time", Arguments: `{"timezone":"UTC"}`})
	if err != nil {
		t.Fatal(err)
	}
	if want := `"timezone":"UTC"`; !strings.Contains(out, want) {
		t.Errorf("result = %s, want it to contain %s", out, want)
	}

	if _, err := fn.Call(context.Background(), &deepgram.FunctionCall{Name: "get_time", Arguments: `{"timezone":"Nowhere/Atlantis"}`}); err == nil {
		t.Error("unknown time zone should fail")
	}
}
