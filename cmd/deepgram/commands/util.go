package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/deepgram-voice/pkg/archive"
	"github.com/haivivi/deepgram-voice/pkg/audio/capture"
	"github.com/haivivi/deepgram-voice/pkg/audio/player"
	"github.com/haivivi/deepgram-voice/pkg/audio/portaudio"
	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
	"github.com/haivivi/deepgram-voice/pkg/speechcache"
)

// loadRequest loads a request from a YAML or JSON file
func loadRequest(path string, v any) error {
	return cli.LoadRequest(path, v)
}

// outputBytes outputs binary data to a file
func outputBytes(data []byte, outputPath string) error {
	return cli.OutputBytes(data, outputPath)
}

// printSuccess prints a success message
func printSuccess(format string, args ...any) {
	cli.PrintSuccess(format, args...)
}

// printInfo prints an info message
func printInfo(format string, args ...any) {
	cli.PrintInfo(format, args...)
}

// createClient creates a Deepgram client from context configuration
func createClient(ctx *cli.Context) *deepgram.Client {
	opts := []deepgram.Option{
		deepgram.WithLogger(slog.Default()),
		deepgram.WithMetrics(metrics),
	}
	if ctx.BaseURL != "" {
		opts = append(opts, deepgram.WithBaseURL(ctx.BaseURL))
	}
	if ctx.WebSocketURL != "" {
		opts = append(opts, deepgram.WithWebSocketURL(ctx.WebSocketURL))
	}
	if ctx.AgentURL != "" {
		opts = append(opts, deepgram.WithAgentURL(ctx.AgentURL))
	}
	if d := ctx.RequestTimeout(); d > 0 {
		opts = append(opts, deepgram.WithTimeout(d))
	}
	return deepgram.NewClient(ctx.APIKey, opts...)
}

// openCache opens the synthesis cache of ctx, or returns nil when it is
// disabled.
func openCache(ctx *cli.Context) (*speechcache.Cache, error) {
	if !ctx.CacheEnabled() {
		return nil, nil
	}
	ttl, err := ctx.CacheTTL()
	if err != nil {
		return nil, err
	}
	dir := ""
	if ctx.Cache != nil {
		dir = ctx.Cache.Dir
	}
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		dir = paths.ContextCacheDir(ctx.Name)
	}
	if err := cli.EnsureDir(dir); err != nil {
		return nil, err
	}
	printVerbose("Synthesis cache: %s", dir)
	return speechcache.Open(speechcache.Options{Dir: dir, TTL: ttl, Logger: slog.Default()})
}

// openArchive returns the archive configured for ctx: the S3 bucket if
// one is set, otherwise a local directory.
func openArchive(ctx *cli.Context) (*archive.Archive, error) {
	cfg := ctx.Archive
	if cfg != nil && cfg.S3 != nil {
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("context %q: archive s3 bucket is required", ctx.Name)
		}
		printVerbose("Archive: s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
		return archive.New(archive.NewS3(newS3Client(cfg.S3), cfg.S3.Bucket, cfg.S3.Prefix)), nil
	}

	dir := ""
	if cfg != nil {
		dir = cfg.Dir
	}
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		dir = paths.ArchiveDir()
	}
	local, err := archive.NewLocal(dir)
	if err != nil {
		return nil, err
	}
	printVerbose("Archive: %s", local.Root())
	return archive.New(local), nil
}

func newS3Client(cfg *cli.S3Config) *s3.Client {
	keyID, secret := cfg.AccessKeyID, cfg.SecretAccessKey
	if keyID == "" {
		keyID = os.Getenv("AWS_ACCESS_KEY_ID")
		secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     keyID,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "deepgram-cli",
			}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// newSpeakerOutput returns the player output: the default sound device,
// or numbered WAV files in dir when dir is set.
func newSpeakerOutput(dir string) player.Output {
	if dir != "" {
		return player.WAVFiles(dir, "speech")
	}
	return player.OutputFunc(portaudio.OpenOutput)
}

// newPlayer creates a player on the sound device, or writing WAV files to
// dir when it is set.
func newPlayer(dir string) *player.Player {
	return player.New(player.Config{
		Output: newSpeakerOutput(dir),
		Logger: slog.Default(),
	})
}

// newCapture returns a microphone source at sampleRate, or a file source
// paced in real time when path is set.
func newCapture(path string, sampleRate int, onEnd func(error)) *capture.Source {
	var in capture.Input = capture.InputFunc(portaudio.OpenInput)
	if path != "" {
		in = capture.File(path)
	}
	return capture.New(capture.Config{
		Input:      in,
		SampleRate: sampleRate,
		Realtime:   path != "",
		OnEnd:      onEnd,
		Logger:     slog.Default(),
	})
}
