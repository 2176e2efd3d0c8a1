// Package deepgram provides a Go client for Deepgram speech-to-text,
// text-to-speech, voice agent and text intelligence APIs.
//
// The package is organized around four facades sharing one Client:
//
//   - Listener streams microphone audio for live transcription and runs
//     one-shot file transcription.
//   - Speaker synthesizes speech in one request or over a streaming
//     session fed with text incrementally.
//   - VoiceAgent runs a full-duplex conversation with the voice agent.
//   - Reader runs text intelligence analyses.
//
// Audio devices are abstracted by CaptureSource, PlaybackSink and
// PermissionGate, so the facades run unchanged against a native device
// (package portaudio), a file, or a test fake.
//
// # Basic Usage
//
//	client := deepgram.NewClient(os.Getenv("DEEPGRAM_API_KEY"))
//
//	listener := deepgram.NewListener(client, deepgram.ListenerConfig{
//	    Capture: mic,
//	    OnTranscript: func(ev *deepgram.TranscriptEvent) {
//	        fmt.Println(ev.Transcript)
//	    },
//	})
//	if err := listener.StartListening(ctx, &deepgram.ListenOptions{
//	    Model:          "nova-3",
//	    InterimResults: true,
//	}); err != nil {
//	    return err
//	}
//	defer listener.StopListening()
//
// # One-shot Requests
//
//	resp, err := listener.TranscribeFile(ctx, deepgram.AudioURL("https://example.com/a.wav"), nil)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Transcript())
//
// Starting a one-shot request of the same kind aborts the previous one,
// which then returns ErrRequestAborted.
//
// # Voice Agent
//
//	agent := deepgram.NewVoiceAgent(client, deepgram.VoiceAgentConfig{
//	    Capture:         mic,
//	    Playback:        player,
//	    DefaultSettings: deepgram.DefaultAgentSettings(),
//	    OnConversationText: func(m *deepgram.AgentConversationText) {
//	        fmt.Printf("%s: %s\n", m.Role, m.Content)
//	    },
//	})
//	if err := agent.Connect(ctx, nil); err != nil {
//	    return err
//	}
//
// While the agent speaks, captured audio is discarded so the agent does
// not hear itself.
//
// # Error Handling
//
// Every error matches one of ErrPermissionDenied, ErrCredentialMissing,
// ErrConnection, ErrProtocol, ErrTransportClosed, ErrRequestAborted or
// ErrEncoding with errors.Is. HTTP failures are also *Error:
//
//	if e, ok := deepgram.AsError(err); ok && e.IsRateLimit() {
//	    // back off
//	}
package deepgram
