package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

const appName = "deepgram"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	jqQuery     string
	verbose     bool
	metricsAddr string

	globalConfig *cli.Config

	// metrics stays nil unless --metrics-addr is given.
	metrics *deepgram.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "deepgram",
	Short: "Deepgram speech API CLI tool",
	Long: `Deepgram CLI - A command line interface for the Deepgram speech APIs.

This tool allows you to:
  - Transcribe live audio from the microphone or a file (listen)
  - Transcribe recordings in one request (transcribe)
  - Synthesize speech, in one request or streamed (speak)
  - Talk to a Deepgram voice agent (agent)
  - Analyze text (read)

Configuration is stored in ~/.giztoy/deepgram/ and supports multiple contexts,
similar to kubectl's context management. Without a context, the
DEEPGRAM_API_KEY environment variable is used.

Examples:
  # Set up a new context
  deepgram config add-context dev --api-key YOUR_API_KEY

  # Transcribe a file
  deepgram -c dev transcribe call.wav --smart-format

  # Pipe output to another command
  deepgram transcribe call.wav --json --jq '.results.channels[0].alternatives[0].transcript'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(os.Stderr)
		return startMetrics()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which ends any open session cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.giztoy/deepgram/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file for audio or results (default: stdout)")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "input request file (YAML or JSON, - for stdin)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().StringVar(&jqQuery, "jq", "", "jq expression applied to the result before printing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(speakCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(devicesCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c, set a default with 'deepgram config use-context', or export %s", cli.APIKeyEnv)
		}
		return nil, err
	}
	return ctx, nil
}

// setupLogging installs the default slog handler writing to w. Library
// logs are quiet unless -v is given.
func setupLogging(w io.Writer) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// startMetrics serves the client collectors when --metrics-addr is set.
// The listener is bound before returning so address errors surface
// immediately.
func startMetrics() error {
	if metricsAddr == "" || metrics != nil {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := deepgram.NewMetrics(appName)
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()
	printVerbose("Serving metrics on http://%s/metrics", ln.Addr())

	metrics = m
	return nil
}

// getInputFile returns the input file path
func getInputFile() string {
	return inputFile
}

// getOutputFile returns the output file path
func getOutputFile() string {
	return outputFile
}

// isJSONOutput returns whether output should be JSON
func isJSONOutput() bool {
	return outputJSON
}

// outputResult prints result to stdout, or to path when it is set.
func outputResult(result any, path string) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   path,
		Query:  jqQuery,
	})
}

// printVerbose prints verbose output if enabled
func printVerbose(format string, args ...any) {
	cli.PrintVerbose(verbose, format, args...)
}
