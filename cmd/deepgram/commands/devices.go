package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/deepgram-voice/pkg/audio/portaudio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	Long: `List the input and output devices PortAudio can see.

Microphone capture and playback need a binary built with -tags portaudio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isJSONOutput() || jqQuery != "" {
			devices, err := portaudio.Devices()
			if err != nil {
				return err
			}
			return outputResult(devices, getOutputFile())
		}
		return portaudio.PrintDevices(os.Stdout)
	},
}
