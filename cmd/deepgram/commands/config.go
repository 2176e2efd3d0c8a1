package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

Contexts allow you to manage multiple API keys and endpoints,
similar to kubectl's context management.

Configuration is stored in ~/.giztoy/deepgram/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name. An existing context with
the same name is replaced.

Example:
  deepgram config add-context dev --api-key YOUR_API_KEY
  deepgram config add-context eu --api-key KEY --base-url https://api.eu.deepgram.com/v1 \
      --websocket-url wss://api.eu.deepgram.com/v1
  deepgram config add-context prod --api-key KEY --archive-s3-bucket transcripts --archive-s3-region eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()

		apiKey, _ := flags.GetString("api-key")
		if apiKey == "" {
			return fmt.Errorf("--api-key is required")
		}

		ctx := &cli.Context{APIKey: apiKey}
		ctx.BaseURL, _ = flags.GetString("base-url")
		ctx.WebSocketURL, _ = flags.GetString("websocket-url")
		ctx.AgentURL, _ = flags.GetString("agent-url")
		ctx.Timeout, _ = flags.GetInt("timeout")
		ctx.ListenModel, _ = flags.GetString("listen-model")
		ctx.SpeakModel, _ = flags.GetString("speak-model")

		noCache, _ := flags.GetBool("no-cache")
		cacheTTL, _ := flags.GetString("cache-ttl")
		if noCache || cacheTTL != "" {
			ctx.Cache = &cli.CacheConfig{Disabled: noCache, TTL: cacheTTL}
			if _, err := ctx.CacheTTL(); err != nil {
				return err
			}
		}

		archiveDir, _ := flags.GetString("archive-dir")
		bucket, _ := flags.GetString("archive-s3-bucket")
		if archiveDir != "" || bucket != "" {
			ctx.Archive = &cli.ArchiveConfig{Dir: archiveDir}
			if bucket != "" {
				s3cfg := &cli.S3Config{Bucket: bucket}
				s3cfg.Prefix, _ = flags.GetString("archive-s3-prefix")
				s3cfg.Region, _ = flags.GetString("archive-s3-region")
				s3cfg.Endpoint, _ = flags.GetString("archive-s3-endpoint")
				s3cfg.PathStyle, _ = flags.GetBool("archive-s3-path-style")
				ctx.Archive.S3 = s3cfg
			}
		}

		cfg := getConfig()
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(name); err != nil {
				return err
			}
		}

		printSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		printSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		printSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tBASE_URL\tLISTEN_MODEL\tSPEAK_MODEL")
		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name,
				orDefault(ctx.BaseURL), orDefault(ctx.ListenModel), orDefault(ctx.SpeakModel))
		}
		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			fmt.Printf("\n  %s:\n", name)
			fmt.Printf("    API Key: %s\n", cli.MaskAPIKey(ctx.APIKey))
			if ctx.BaseURL != "" {
				fmt.Printf("    Base URL: %s\n", ctx.BaseURL)
			}
			if ctx.WebSocketURL != "" {
				fmt.Printf("    WebSocket URL: %s\n", ctx.WebSocketURL)
			}
			if ctx.AgentURL != "" {
				fmt.Printf("    Agent URL: %s\n", ctx.AgentURL)
			}
			if ctx.Timeout > 0 {
				fmt.Printf("    Timeout: %ds\n", ctx.Timeout)
			}
			if ctx.ListenModel != "" {
				fmt.Printf("    Listen Model: %s\n", ctx.ListenModel)
			}
			if ctx.SpeakModel != "" {
				fmt.Printf("    Speak Model: %s\n", ctx.SpeakModel)
			}
			if !ctx.CacheEnabled() {
				fmt.Printf("    Cache: disabled\n")
			} else if ctx.Cache != nil && ctx.Cache.TTL != "" {
				fmt.Printf("    Cache TTL: %s\n", ctx.Cache.TTL)
			}
			if a := ctx.Archive; a != nil {
				if a.S3 != nil {
					fmt.Printf("    Archive: s3://%s/%s\n", a.S3.Bucket, a.S3.Prefix)
				} else if a.Dir != "" {
					fmt.Printf("    Archive: %s\n", a.Dir)
				}
			}
		}
		return nil
	},
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("api-key", "", "Deepgram API key (required)")
	f.String("base-url", "", "REST base URL")
	f.String("websocket-url", "", "streaming base URL")
	f.String("agent-url", "", "voice agent URL")
	f.Int("timeout", 0, "one-shot request timeout in seconds")
	f.String("listen-model", "", "default transcription model")
	f.String("speak-model", "", "default synthesis model")
	f.Bool("no-cache", false, "disable the synthesis cache")
	f.String("cache-ttl", "", "synthesis cache entry lifetime (e.g. 168h)")
	f.String("archive-dir", "", "local archive directory")
	f.String("archive-s3-bucket", "", "archive to this S3 bucket")
	f.String("archive-s3-prefix", "", "key prefix inside the bucket")
	f.String("archive-s3-region", "", "bucket region")
	f.String("archive-s3-endpoint", "", "S3-compatible endpoint (MinIO, R2)")
	f.Bool("archive-s3-path-style", false, "use path-style bucket addressing")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
