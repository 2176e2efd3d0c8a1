package commands

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/audio/pcm"
	"github.com/haivivi/deepgram-voice/pkg/cli"
	"github.com/haivivi/deepgram-voice/pkg/deepgram"
	"github.com/haivivi/deepgram-voice/pkg/speechcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Synthesis cache maintenance",
	Long: `Inspect and clear the per-context cache of one-shot syntheses.

Cached audio is stored with BadgerDB under ~/.giztoy/deepgram/cache/<context>.`,
}

// withCache opens the cache of the current context for fn.
func withCache(fn func(c *speechcache.Cache) error) error {
	cfgCtx, err := getContext()
	if err != nil {
		return err
	}
	c, err := openCache(cfgCtx)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("the synthesis cache is disabled for context %q", cfgCtx.Name)
	}
	defer c.Close()
	return fn(c)
}

type cacheEntry struct {
	Key        string    `json:"key"`
	Text       string    `json:"text"`
	Model      string    `json:"model"`
	Encoding   string    `json:"encoding"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

var cacheLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List cached syntheses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(c *speechcache.Cache) error {
			var entries []cacheEntry
			for rec, err := range c.List(cmd.Context()) {
				if err != nil {
					cli.PrintWarning("%v", err)
					continue
				}
				entries = append(entries, cacheEntry{
					Key:        rec.Key,
					Text:       rec.Text,
					Model:      rec.Model,
					Encoding:   rec.Encoding,
					SampleRate: rec.SampleRate,
					Size:       len(rec.Audio),
					CreatedAt:  rec.CreatedAt,
				})
			}
			if isJSONOutput() || jqQuery != "" {
				return outputResult(entries, getOutputFile())
			}
			if len(entries) == 0 {
				fmt.Println("Cache is empty")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tMODEL\tENCODING\tSIZE\tAGE\tTEXT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Key, e.Model, e.Encoding,
					cli.FormatBytes(int64(e.Size)),
					cli.FormatDuration(time.Since(e.CreatedAt).Truncate(time.Second)),
					truncate(e.Text, 40))
			}
			return w.Flush()
		})
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Save cached audio to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := getOutputFile()
		if out == "" {
			return fmt.Errorf("output file is required (-o)")
		}
		return withCache(func(c *speechcache.Cache) error {
			rec, err := c.Get(cmd.Context(), args[0])
			if errors.Is(err, speechcache.ErrNotFound) {
				return fmt.Errorf("no cache entry %q", args[0])
			}
			if err != nil {
				return err
			}
			audio := rec.Audio
			if rec.Encoding == deepgram.DefaultSpeakEncoding && rec.SampleRate > 0 && !pcm.IsWAV(audio) {
				audio = pcm.WrapWAV(audio, pcm.Mono(rec.SampleRate))
			}
			if err := outputBytes(audio, out); err != nil {
				return err
			}
			printSuccess("Audio saved to %s", out)
			return nil
		})
	},
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete cache entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(c *speechcache.Cache) error {
			for _, key := range args {
				if err := c.Delete(cmd.Context(), key); err != nil {
					return err
				}
			}
			printSuccess("Deleted %d entries", len(args))
			return nil
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(c *speechcache.Cache) error {
			n, err := c.Purge(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Purged %d entries", n)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheRmCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}
