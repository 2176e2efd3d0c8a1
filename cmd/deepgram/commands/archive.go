package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/archive"
	"github.com/haivivi/deepgram-voice/pkg/cli"
)

var archiveText bool

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Stored transcripts and audio",
	Long: `List, read and delete transcripts stored with --archive.

The archive lives in a local directory (~/.giztoy/deepgram/archive by
default) or an S3 bucket, as configured on the context.`,
}

type archiveEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Model     string    `json:"model,omitempty"`
	Segments  int       `json:"segments"`
	Audio     bool      `json:"audio"`
	Text      string    `json:"text"`
}

var archiveLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored transcripts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgCtx, err := getContext()
		if err != nil {
			return err
		}
		arc, err := openArchive(cfgCtx)
		if err != nil {
			return err
		}
		var entries []archiveEntry
		for t, err := range arc.List(cmd.Context()) {
			if err != nil {
				if cmd.Context().Err() != nil {
					return err
				}
				cli.PrintWarning("%v", err)
				continue
			}
			entries = append(entries, archiveEntry{
				ID:        t.ID,
				CreatedAt: t.CreatedAt,
				Source:    t.Source,
				Model:     t.Model,
				Segments:  len(t.Segments),
				Audio:     t.Audio != "",
				Text:      t.Text,
			})
		}
		slices.SortFunc(entries, func(a, b archiveEntry) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})

		if isJSONOutput() || jqQuery != "" {
			return outputResult(entries, getOutputFile())
		}
		if len(entries) == 0 {
			fmt.Println("Archive is empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tAUDIO\tTEXT")
		for _, e := range entries {
			audio := ""
			if e.Audio {
				audio = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID,
				e.CreatedAt.Local().Format(time.DateTime),
				truncate(e.Source, 24), audio, truncate(e.Text, 40))
		}
		return w.Flush()
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgCtx, err := getContext()
		if err != nil {
			return err
		}
		arc, err := openArchive(cfgCtx)
		if err != nil {
			return err
		}
		t, err := arc.LoadTranscript(cmd.Context(), args[0])
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no transcript %q", args[0])
		}
		if err != nil {
			return err
		}
		if archiveText {
			printSegments(t)
			return nil
		}
		return outputResult(t, getOutputFile())
	},
}

func printSegments(t *archive.Transcript) {
	if len(t.Segments) == 0 {
		fmt.Println(t.Text)
		return
	}
	for _, s := range t.Segments {
		var prefix []string
		if s.Start > 0 || s.End > 0 {
			prefix = append(prefix, "["+cli.FormatOffset(s.Start)+"]")
		}
		if s.Speaker != nil {
			prefix = append(prefix, fmt.Sprintf("Speaker %d:", *s.Speaker))
		}
		if len(prefix) > 0 {
			fmt.Printf("%s %s\n", strings.Join(prefix, " "), s.Text)
		} else {
			fmt.Println(s.Text)
		}
	}
}

var archiveAudioCmd = &cobra.Command{
	Use:   "audio <id>",
	Short: "Save the audio stored with a transcript",
	Long: `Copy the recording stored with a transcript to a file given with -o.

Example:
  deepgram archive audio 3f2a... -o call.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := getOutputFile()
		if out == "" {
			return fmt.Errorf("output file is required (-o)")
		}
		cfgCtx, err := getContext()
		if err != nil {
			return err
		}
		arc, err := openArchive(cfgCtx)
		if err != nil {
			return err
		}
		t, err := arc.LoadTranscript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if t.Audio == "" {
			return fmt.Errorf("transcript %s has no stored audio", t.ID)
		}
		ext := strings.TrimPrefix(path.Ext(t.Audio), ".")
		r, err := arc.OpenAudio(cmd.Context(), t.ID, ext)
		if err != nil {
			return err
		}
		defer r.Close()

		f, err := os.Create(out)
		if err != nil {
			return err
		}
		n, err := io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		printSuccess("Audio saved to %s (%s)", out, cli.FormatBytes(n))
		return nil
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete transcripts and their audio",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgCtx, err := getContext()
		if err != nil {
			return err
		}
		arc, err := openArchive(cfgCtx)
		if err != nil {
			return err
		}
		for _, id := range args {
			ok, err := arc.Exists(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no transcript %q", id)
			}
			if err := arc.Delete(cmd.Context(), id); err != nil {
				return err
			}
			printSuccess("Deleted %s", id)
		}
		return nil
	},
}

func init() {
	archiveGetCmd.Flags().BoolVar(&archiveText, "text", false, "print the segments as text")

	archiveCmd.AddCommand(archiveLsCmd)
	archiveCmd.AddCommand(archiveGetCmd)
	archiveCmd.AddCommand(archiveAudioCmd)
	archiveCmd.AddCommand(archiveRmCmd)
}
