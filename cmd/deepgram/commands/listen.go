package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/archive"
	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var (
	listenAudio      string
	listenModel      string
	listenLanguage   string
	listenV2         bool
	listenInterim    bool
	listenSmart      bool
	listenPunctuate  bool
	listenDiarize    bool
	listenEndpoint   int
	listenKeyterms   []string
	listenSampleRate int
	listenLinger     time.Duration
	listenTUI        bool
	listenArchive    bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Live transcription",
	Long: `Stream audio to Deepgram and print transcripts as they arrive.

Audio comes from the default microphone, or from a WAV file played back in
real time with --audio. Press Ctrl+C to stop.

Options can be loaded from a YAML or JSON file with -f; flags given on the
command line override it.

Examples:
  deepgram listen --interim
  deepgram listen --audio meeting.wav --smart-format --diarize
  deepgram listen --v2 --tui
  deepgram listen --audio call.wav --json --jq 'select(.is_final) | .channel.alternatives[0].transcript'
  deepgram listen -f listen.yaml --archive`,
	RunE: runListen,
}

func init() {
	f := listenCmd.Flags()
	f.StringVar(&listenAudio, "audio", "", "WAV file to stream instead of the microphone")
	f.StringVar(&listenModel, "model", "", "model (default nova-2, or flux-general-en with --v2)")
	f.StringVar(&listenLanguage, "language", "", "language code")
	f.BoolVar(&listenV2, "v2", false, "use the turn-based v2 protocol")
	f.BoolVar(&listenInterim, "interim", false, "show interim results")
	f.BoolVar(&listenSmart, "smart-format", false, "apply smart formatting")
	f.BoolVar(&listenPunctuate, "punctuate", false, "add punctuation")
	f.BoolVar(&listenDiarize, "diarize", false, "label speakers")
	f.IntVar(&listenEndpoint, "endpointing", 0, "silence in ms that ends an utterance")
	f.StringSliceVar(&listenKeyterms, "keyterm", nil, "boosted key terms")
	f.IntVar(&listenSampleRate, "sample-rate", deepgram.DefaultListenSampleRate, "capture sample rate")
	f.DurationVar(&listenLinger, "linger", 3*time.Second, "time to wait for final results after --audio ends")
	f.BoolVar(&listenTUI, "tui", false, "full-screen view")
	f.BoolVar(&listenArchive, "archive", false, "store the final transcript in the archive")
}

// listenOptions builds the session options from -f and the flags.
func listenOptions(cmd *cobra.Command, ctx *cli.Context) (*deepgram.ListenOptions, error) {
	opts := &deepgram.ListenOptions{}
	if path := getInputFile(); path != "" {
		if err := loadRequest(path, opts); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("v2") && listenV2 {
		opts.APIVersion = deepgram.ListenV2
	}
	if flags.Changed("model") {
		opts.Model = listenModel
	} else if opts.Model == "" && opts.APIVersion != deepgram.ListenV2 {
		opts.Model = ctx.ListenModel
	}
	if flags.Changed("language") {
		opts.Language = listenLanguage
	}
	if flags.Changed("interim") {
		opts.InterimResults = listenInterim
	}
	if flags.Changed("smart-format") {
		opts.SmartFormat = listenSmart
	}
	if flags.Changed("punctuate") {
		opts.Punctuate = listenPunctuate
	}
	if flags.Changed("diarize") {
		opts.Diarize = listenDiarize
	}
	if flags.Changed("endpointing") {
		opts.Endpointing = listenEndpoint
	}
	if flags.Changed("keyterm") {
		opts.Keyterm = listenKeyterms
	}
	if flags.Changed("sample-rate") || opts.SampleRate == 0 {
		opts.SampleRate = listenSampleRate
	}
	if opts.Encoding != "" && opts.Encoding != deepgram.DefaultListenEncoding {
		return nil, fmt.Errorf("listen captures %s audio; encoding %q is not supported", deepgram.DefaultListenEncoding, opts.Encoding)
	}
	return opts, nil
}

func runListen(cmd *cobra.Command, args []string) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}
	opts, err := listenOptions(cmd, cfgCtx)
	if err != nil {
		return err
	}

	source := "microphone"
	if listenAudio != "" {
		source = listenAudio
	}
	var record *archive.Transcript
	if listenArchive {
		record = archive.NewTranscript(source, opts.Model)
	}

	title := fmt.Sprintf("Deepgram Listen · %s", source)
	err = runLive(cmd.Context(), title, listenTUI, func(ctx context.Context, out presenter) error {
		return listen(ctx, cfgCtx, opts, record, out)
	})
	if err != nil {
		return err
	}

	if record != nil && record.Text != "" {
		arc, err := openArchive(cfgCtx)
		if err != nil {
			return err
		}
		if err := arc.SaveTranscript(context.WithoutCancel(cmd.Context()), record); err != nil {
			return err
		}
		printSuccess("Archived transcript %s", record.ID)
	}
	return nil
}

// listen runs one live session until ctx is cancelled, the server ends it,
// or the --audio file has been sent and the linger period has passed.
func listen(ctx context.Context, cfgCtx *cli.Context, opts *deepgram.ListenOptions, record *archive.Transcript, out presenter) error {
	ended := make(chan struct{})
	var endOnce sync.Once
	inputDone := make(chan error, 1)

	var (
		errMu    sync.Mutex
		firstErr error
	)

	src := newCapture(listenAudio, opts.SampleRate, func(err error) {
		inputDone <- err
	})

	listener := deepgram.NewListener(createClient(cfgCtx), deepgram.ListenerConfig{
		Capture: src,
		OnStart: func() {
			out.Status("listening")
			out.Event("session opened (%s)", opts.APIVersion)
		},
		OnTranscript: func(ev *deepgram.TranscriptEvent) {
			if record != nil {
				record.AddEvent(ev)
			}
			if !isJSONOutput() {
				out.Transcript("", ev.Transcript, ev.IsFinal)
			}
		},
		OnMessage: func(ev deepgram.ListenEvent) {
			switch ev := ev.(type) {
			case *deepgram.TranscriptEvent:
				emitRaw(ev.Raw)
			case *deepgram.ListenOtherEvent:
				emitRaw(ev.Raw)
				if ev.Type != "" {
					out.Event("%s", ev.Type)
				}
			case *deepgram.ListenErrorEvent:
				emitRaw(ev.Raw)
			}
		},
		OnError: func(err error) {
			out.Event("error: %v", err)
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		},
		OnEnd: func() {
			out.Status("closed")
			endOnce.Do(func() { close(ended) })
		},
	})

	if err := listener.StartListening(ctx, opts); err != nil {
		return err
	}
	defer listener.StopListening()

	select {
	case <-ctx.Done():
	case <-ended:
	case err := <-inputDone:
		if err != nil {
			return fmt.Errorf("read %s: %w", listenAudio, err)
		}
		out.Event("input ended, waiting %s for final results", listenLinger)
		select {
		case <-ctx.Done():
		case <-ended:
		case <-time.After(listenLinger):
		}
	}
	listener.StopListening()

	errMu.Lock()
	defer errMu.Unlock()
	if firstErr != nil && !errors.Is(firstErr, deepgram.ErrRequestAborted) {
		return firstErr
	}
	return nil
}

// emitRaw prints one server message when --json is set.
func emitRaw(raw json.RawMessage) {
	if !isJSONOutput() || len(raw) == 0 {
		return
	}
	if err := cli.Output(raw, cli.OutputOptions{Format: cli.FormatJSON, Query: jqQuery}); err != nil {
		printVerbose("output: %v", err)
	}
}
