package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/deepgram-voice/pkg/archive"
	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var (
	transcribeModel       string
	transcribeLanguage    string
	transcribeSmart       bool
	transcribePunctuate   bool
	transcribeDiarize     bool
	transcribeUtterances  bool
	transcribeParagraphs  bool
	transcribeSummarize   bool
	transcribeTopics      bool
	transcribeDetectLang  bool
	transcribeConcurrency int
	transcribeArchive     bool
	transcribeText        bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file|url>...",
	Short: "Transcribe recordings in one request",
	Long: `Transcribe audio files or URLs with the pre-recorded API.

Local files are uploaded; http(s) URLs are fetched by Deepgram. Several
inputs are transcribed concurrently. Results are printed as YAML, or JSON
with --json; --text prints only the transcript.

Examples:
  deepgram transcribe call.wav
  deepgram transcribe https://example.com/audio.mp3 --smart-format --diarize
  deepgram transcribe *.wav --text -j 4
  deepgram transcribe call.wav --json --jq '.results.channels[0].alternatives[0].words | length'
  deepgram transcribe -f options.yaml meeting.mp3 --archive`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	f := transcribeCmd.Flags()
	f.StringVar(&transcribeModel, "model", "", "model")
	f.StringVar(&transcribeLanguage, "language", "", "language code")
	f.BoolVar(&transcribeSmart, "smart-format", false, "apply smart formatting")
	f.BoolVar(&transcribePunctuate, "punctuate", false, "add punctuation")
	f.BoolVar(&transcribeDiarize, "diarize", false, "label speakers")
	f.BoolVar(&transcribeUtterances, "utterances", false, "split into utterances")
	f.BoolVar(&transcribeParagraphs, "paragraphs", false, "split into paragraphs")
	f.BoolVar(&transcribeSummarize, "summarize", false, "add a summary")
	f.BoolVar(&transcribeTopics, "topics", false, "detect topics")
	f.BoolVar(&transcribeDetectLang, "detect-language", false, "detect the spoken language")
	f.IntVarP(&transcribeConcurrency, "concurrency", "j", 2, "inputs transcribed at once")
	f.BoolVar(&transcribeArchive, "archive", false, "store transcripts and uploaded audio in the archive")
	f.BoolVar(&transcribeText, "text", false, "print only the transcript text")
}

func transcribeOptions(cmd *cobra.Command, ctx *cli.Context) (*deepgram.PrerecordedOptions, error) {
	opts := &deepgram.PrerecordedOptions{}
	if path := getInputFile(); path != "" {
		if err := loadRequest(path, opts); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("model") {
		opts.Model = transcribeModel
	} else if opts.Model == "" {
		opts.Model = ctx.ListenModel
	}
	if flags.Changed("language") {
		opts.Language = transcribeLanguage
	}
	set := func(name string, dst *bool, v bool) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("smart-format", &opts.SmartFormat, transcribeSmart)
	set("punctuate", &opts.Punctuate, transcribePunctuate)
	set("diarize", &opts.Diarize, transcribeDiarize)
	set("utterances", &opts.Utterances, transcribeUtterances)
	set("paragraphs", &opts.Paragraphs, transcribeParagraphs)
	set("summarize", &opts.Summarize, transcribeSummarize)
	set("topics", &opts.Topics, transcribeTopics)
	set("detect-language", &opts.DetectLanguage, transcribeDetectLang)
	return opts, nil
}

type transcribeResult struct {
	input string
	resp  *deepgram.PrerecordedResponse
	id    string
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}
	opts, err := transcribeOptions(cmd, cfgCtx)
	if err != nil {
		return err
	}

	var arc *archive.Archive
	if transcribeArchive {
		if arc, err = openArchive(cfgCtx); err != nil {
			return err
		}
	}

	client := createClient(cfgCtx)
	results := make([]transcribeResult, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(transcribeConcurrency, 1))
	for i, input := range args {
		g.Go(func() error {
			// A Listener aborts its previous one-shot request, so each
			// input gets its own.
			listener := deepgram.NewListener(client, deepgram.ListenerConfig{
				Prerecorded: opts,
				OnBeforeTranscribe: func() {
					printVerbose("Transcribing %s", input)
				},
			})
			resp, err := transcribeOne(ctx, listener, input)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = transcribeResult{input: input, resp: resp}
			if arc != nil {
				id, err := archiveResult(ctx, arc, input, opts.Model, resp)
				if err != nil {
					return fmt.Errorf("%s: archive: %w", input, err)
				}
				results[i].id = id
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.id != "" {
			printInfo("%s archived as %s", r.input, r.id)
		}
	}
	return printTranscripts(results)
}

func transcribeOne(ctx context.Context, listener *deepgram.Listener, input string) (*deepgram.PrerecordedResponse, error) {
	if isURL(input) {
		return listener.TranscribeFile(ctx, deepgram.AudioURL(input), nil)
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return listener.TranscribeFile(ctx, deepgram.AudioReader(f, filepath.Base(input), contentType(input)), nil)
}

// archiveResult stores the transcript and, for local files, the audio.
func archiveResult(ctx context.Context, arc *archive.Archive, input, model string, resp *deepgram.PrerecordedResponse) (string, error) {
	t := archive.NewTranscript(input, model)
	t.SetResponse(resp)
	if !isURL(input) {
		f, err := os.Open(input)
		if err != nil {
			return "", err
		}
		defer f.Close()
		ext := strings.TrimPrefix(filepath.Ext(input), ".")
		if ext == "" {
			ext = "bin"
		}
		p, err := arc.SaveAudio(ctx, t.ID, ext, f)
		if err != nil {
			return "", err
		}
		t.Audio = p
	}
	if err := arc.SaveTranscript(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func printTranscripts(results []transcribeResult) error {
	if transcribeText {
		for _, r := range results {
			if len(results) > 1 {
				fmt.Printf("# %s\n", r.input)
			}
			fmt.Println(r.resp.Transcript())
		}
		return nil
	}
	if len(results) == 1 {
		return outputResult(results[0].resp.Raw, getOutputFile())
	}
	all := make(map[string]any, len(results))
	for _, r := range results {
		var v any
		if err := json.Unmarshal(r.resp.Raw, &v); err != nil {
			return fmt.Errorf("%s: %w", r.input, err)
		}
		all[r.input] = v
	}
	return outputResult(all, getOutputFile())
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// contentType guesses the upload type from the file extension.
func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
