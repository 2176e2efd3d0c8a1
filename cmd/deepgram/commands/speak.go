package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/audio/player"
	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var (
	speakModel      string
	speakEncoding   string
	speakSampleRate int
	speakContainer  string
	speakBitRate    int
	speakStream     bool
	speakNoPlay     bool
	speakWAVDir     string
	speakNoCache    bool
	speakBatch      bool
)

var speakCmd = &cobra.Command{
	Use:   "speak [text]",
	Short: "Synthesize speech",
	Long: `Synthesize speech from text and play it, or save it with -o.

Without a text argument, text is read from stdin. With --stream the text is
sent line by line over a streaming session and audio plays as it arrives.

One-shot results are cached per context; identical requests are served
from the cache. Use --no-cache to bypass it.

Examples:
  deepgram speak "Hello, world"
  deepgram speak "Hello" -o hello.wav
  deepgram speak --model aura-2-apollo-en --encoding mp3 "Hi there" -o hi.mp3
  cat story.txt | deepgram speak --stream
  deepgram speak --stream --wav-dir out/ < lines.txt`,
	RunE: runSpeak,
}

func init() {
	f := speakCmd.Flags()
	f.StringVar(&speakModel, "model", "", "voice model (default aura-2-thalia-en)")
	f.StringVar(&speakEncoding, "encoding", "", "audio encoding (linear16, mp3, opus, ...)")
	f.IntVar(&speakSampleRate, "sample-rate", 0, "sample rate in Hz")
	f.StringVar(&speakContainer, "container", "", "container (none, wav, ogg)")
	f.IntVar(&speakBitRate, "bit-rate", 0, "bit rate for compressed encodings")
	f.BoolVar(&speakStream, "stream", false, "stream text line by line")
	f.BoolVar(&speakNoPlay, "no-play", false, "do not play the audio")
	f.StringVar(&speakWAVDir, "wav-dir", "", "write played audio to WAV files in this directory")
	f.BoolVar(&speakNoCache, "no-cache", false, "bypass the synthesis cache")
	f.BoolVar(&speakBatch, "batch", false, "with --stream, flush once after the last line instead of after each")
}

func speakOptions(cmd *cobra.Command, ctx *cli.Context) (*deepgram.SpeakOptions, error) {
	opts := &deepgram.SpeakOptions{}
	if path := getInputFile(); path != "" {
		if err := loadRequest(path, opts); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("model") {
		opts.Model = speakModel
	} else if opts.Model == "" {
		opts.Model = ctx.SpeakModel
	}
	if flags.Changed("encoding") {
		opts.Encoding = speakEncoding
	}
	if flags.Changed("sample-rate") {
		opts.SampleRate = speakSampleRate
	}
	if flags.Changed("container") {
		opts.Container = speakContainer
	}
	if flags.Changed("bit-rate") {
		opts.BitRate = speakBitRate
	}
	// Fill defaults here so playback and WAV wrapping know the format.
	if opts.Model == "" {
		opts.Model = deepgram.DefaultSpeakModel
	}
	if opts.Encoding == "" {
		opts.Encoding = deepgram.DefaultSpeakEncoding
	}
	if opts.SampleRate == 0 && opts.Encoding == deepgram.DefaultSpeakEncoding {
		opts.SampleRate = deepgram.DefaultSpeakSampleRate
	}
	return opts, nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}
	opts, err := speakOptions(cmd, cfgCtx)
	if err != nil {
		return err
	}
	if speakStream {
		return speakStreaming(cmd.Context(), cfgCtx, opts, args)
	}

	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("no text to synthesize")
	}
	return speakOnce(cmd.Context(), cfgCtx, opts, text)
}

func speakOnce(ctx context.Context, cfgCtx *cli.Context, opts *deepgram.SpeakOptions, text string) error {
	config := deepgram.SpeakerConfig{
		Options: opts,
		OnSynthesizeSuccess: func(audio []byte) {
			printVerbose("Synthesized %s", cli.FormatBytes(int64(len(audio))))
		},
	}
	if !speakNoCache {
		cache, err := openCache(cfgCtx)
		if err != nil {
			return err
		}
		if cache != nil {
			defer cache.Close()
			config.Cache = cache
		}
	}

	audio, err := deepgram.NewSpeaker(createClient(cfgCtx), config).Synthesize(ctx, text)
	if err != nil {
		return err
	}

	if path := getOutputFile(); path != "" {
		if err := outputBytes(wrapForFile(audio, opts, path), path); err != nil {
			return err
		}
		printSuccess("Audio saved to %s (%s)", path, cli.FormatBytes(int64(len(audio))))
		return nil
	}
	if speakNoPlay {
		return nil
	}
	return playClip(audio, opts)
}

// wrapForFile adds a WAV header to raw linear16 audio saved as .wav.
func wrapForFile(audio []byte, opts *deepgram.SpeakOptions, path string) []byte {
	if !strings.EqualFold(filepath.Ext(path), ".wav") || opts.Encoding != deepgram.DefaultSpeakEncoding || pcm.IsWAV(audio) {
		return audio
	}
	return pcm.WrapWAV(audio, pcm.Mono(opts.SampleRate))
}

func playClip(audio []byte, opts *deepgram.SpeakOptions) error {
	p := newPlayer(speakWAVDir)
	if opts.Encoding == deepgram.DefaultSpeakEncoding && !pcm.IsWAV(audio) {
		if err := p.Configure(opts.SampleRate, 1); err != nil {
			return err
		}
		if err := p.Feed(audio); err != nil {
			return err
		}
	} else if err := p.PlayOnce(audio); err != nil {
		if errors.Is(err, player.ErrUnsupportedClip) {
			return fmt.Errorf("cannot play %s audio; save it with -o instead", opts.Encoding)
		}
		return err
	}
	return p.Drain()
}

// speakStreaming sends text lines over one streaming session. Lines come
// from args, or from stdin until EOF.
func speakStreaming(ctx context.Context, cfgCtx *cli.Context, opts *deepgram.SpeakOptions, args []string) error {
	if opts.Encoding != deepgram.DefaultSpeakEncoding && getOutputFile() == "" {
		return fmt.Errorf("streamed %s audio cannot be played; use -o or linear16", opts.Encoding)
	}

	var p *player.Player
	if !speakNoPlay {
		p = newPlayer(speakWAVDir)
		if err := p.Configure(opts.SampleRate, 1); err != nil {
			return err
		}
		defer p.Stop()
	}

	var (
		mu        sync.Mutex
		recorded  bytes.Buffer
		streamErr error
	)
	ended := make(chan struct{})
	var endOnce sync.Once

	speaker := deepgram.NewSpeaker(createClient(cfgCtx), deepgram.SpeakerConfig{
		Options: opts,
		OnStreamStart: func() {
			printVerbose("Stream opened (%s)", opts.Model)
		},
		OnAudioChunk: func(chunk []byte) {
			if getOutputFile() != "" {
				mu.Lock()
				recorded.Write(chunk)
				mu.Unlock()
			}
			if p != nil {
				if err := p.Feed(chunk); err != nil {
					printVerbose("playback: %v", err)
				}
			}
		},
		OnStreamMetadata: func(m *deepgram.SpeakMetadata) {
			printVerbose("Model %s %s (request %s)", m.ModelName, m.ModelVersion, m.RequestID)
		},
		OnStreamFlushed: func(f *deepgram.SpeakFlushed) {
			printVerbose("Flushed line %d", f.SequenceID)
		},
		OnStreamWarning: func(w *deepgram.SpeakWarning) {
			cli.PrintWarning("%s: %s", w.Code, w.Description)
		},
		OnStreamError: func(err error) {
			mu.Lock()
			if streamErr == nil {
				streamErr = err
			}
			mu.Unlock()
		},
		OnStreamEnd: func() { endOnce.Do(func() { close(ended) }) },
	})

	if err := speaker.StartStreaming(ctx, ""); err != nil {
		return err
	}
	defer speaker.StopStreaming()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var lines *bufio.Scanner
		if len(args) > 0 {
			lines = bufio.NewScanner(strings.NewReader(strings.Join(args, " ")))
		} else {
			lines = bufio.NewScanner(os.Stdin)
		}
		seq := 0
		for lines.Scan() {
			line := strings.TrimSpace(lines.Text())
			if line == "" {
				continue
			}
			seq++
			id := seq
			sendOpts := deepgram.SendTextOptions{SequenceID: &id}
			if speakBatch {
				sendOpts.Flush = new(bool)
			}
			if !speaker.SendText(line, sendOpts) {
				return fmt.Errorf("stream closed before line %d was sent", id)
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
		}
		if err := lines.Err(); err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		if speakBatch {
			speaker.FlushStream()
		}
		speaker.CloseStreamGracefully()
		return nil
	})
	g.Go(func() error {
		select {
		case <-ended:
		case <-gctx.Done():
			speaker.StopStreaming()
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	mu.Lock()
	err := streamErr
	mu.Unlock()
	if err != nil {
		return err
	}

	if p != nil {
		if err := p.Drain(); err != nil {
			return err
		}
	}
	if path := getOutputFile(); path != "" {
		if err := outputBytes(wrapForFile(recorded.Bytes(), opts, path), path); err != nil {
			return err
		}
		printSuccess("Audio saved to %s (%s)", path, cli.FormatBytes(int64(recorded.Len())))
	}
	return nil
}
