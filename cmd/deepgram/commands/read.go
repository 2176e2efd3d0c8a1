package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

var (
	readText      string
	readURL       string
	readSummarize bool
	readTopics    bool
	readIntents   bool
	readSentiment bool
	readLanguage  string
)

var readCmd = &cobra.Command{
	Use:   "read [text]",
	Short: "Analyze text",
	Long: `Run text intelligence on a piece of text: summary, topics, intents and
sentiment.

Text is taken from the argument, --text, a URL with --url, or stdin.
Without any analysis flag, all four are requested.

Examples:
  deepgram read "I'd like to cancel my subscription, the app keeps crashing."
  deepgram read --url https://example.com/article.txt --summarize
  cat notes.txt | deepgram read --topics --json --jq '.results.topics'`,
	RunE: runRead,
}

func init() {
	f := readCmd.Flags()
	f.StringVar(&readText, "text", "", "text to analyze")
	f.StringVar(&readURL, "url", "", "URL of the text to analyze")
	f.BoolVar(&readSummarize, "summarize", false, "summarize")
	f.BoolVar(&readTopics, "topics", false, "detect topics")
	f.BoolVar(&readIntents, "intents", false, "detect intents")
	f.BoolVar(&readSentiment, "sentiment", false, "analyze sentiment")
	f.StringVar(&readLanguage, "language", "en", "language of the text")
}

func runRead(cmd *cobra.Command, args []string) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}

	opts := &deepgram.ReadOptions{}
	if path := getInputFile(); path != "" {
		if err := loadRequest(path, opts); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("language") || opts.Language == "" {
		opts.Language = readLanguage
	}
	opts.Summarize = opts.Summarize || readSummarize
	opts.Topics = opts.Topics || readTopics
	opts.Intents = opts.Intents || readIntents
	opts.Sentiment = opts.Sentiment || readSentiment
	if !opts.Summarize && !opts.Topics && !opts.Intents && !opts.Sentiment {
		opts.Summarize, opts.Topics, opts.Intents, opts.Sentiment = true, true, true, true
	}

	input := deepgram.ReadInput{Text: readText, URL: readURL}
	if input.Text == "" && len(args) > 0 {
		input.Text = strings.Join(args, " ")
	}
	if input.Text == "" && input.URL == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input.Text = strings.TrimSpace(string(data))
	}

	reader := deepgram.NewReader(createClient(cfgCtx), deepgram.ReaderConfig{
		OnBeforeAnalyze: func() { printVerbose("Analyzing...") },
	})
	resp, err := reader.Analyze(cmd.Context(), input, opts)
	if err != nil {
		return err
	}

	if !isJSONOutput() && jqQuery == "" && getOutputFile() == "" && resp.Results.Summary != nil {
		printInfo("Summary: %s", resp.Results.Summary.Text)
	}
	return outputResult(resp.Raw, getOutputFile())
}
