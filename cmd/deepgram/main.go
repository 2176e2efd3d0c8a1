// Package main provides the Deepgram CLI tool.
//
// Usage:
//
//	deepgram [flags] <command> [args]
//
// Commands:
//
//	listen      - Live transcription from the microphone or a file
//	transcribe  - One-shot transcription of files or URLs
//	speak       - Speech synthesis, one-shot or streamed
//	agent       - Voice agent conversation
//	read        - Text intelligence (summaries, topics, intents, sentiment)
//	archive     - Stored transcripts and audio
//	cache       - Synthesis cache maintenance
//	devices     - Audio device listing
//	config      - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.giztoy/deepgram/
//	Use 'deepgram config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/deepgram-voice/cmd/deepgram/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
